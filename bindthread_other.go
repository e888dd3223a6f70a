//go:build !linux

package rssl

func setAffinity(cpus []int) error {
	return newError(RetFailure, nil, "0006 Binding threads to CPUs is not supported on this platform")
}
