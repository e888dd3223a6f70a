//go:build !linux

package rssl

func dialSeqMcast(opts *ConnectOptions) (datagramConn, error) {
	return nil, newError(RetFailure, nil, "0006 Sequenced multicast is only supported on Linux")
}
