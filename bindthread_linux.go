//go:build linux

package rssl

import "golang.org/x/sys/unix"

func setAffinity(cpus []int) error {
	var set unix.CPUSet
	for _, n := range cpus {
		set.Set(n)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return newError(RetFailure, err, "0002 Unable to bind thread to CPUs %v", cpus)
	}
	return nil
}
