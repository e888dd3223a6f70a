//go:build !unix

package rssl

import "github.com/pkg/errors"

var errShmemUnsupported = errors.New("shared memory transport requires a unix platform")

func createShmemSegment(name string, maxMsgSize, slots int) (*shmemSegment, error) {
	return nil, errors.WithStack(errShmemUnsupported)
}

func openShmemSegment(name string) (*shmemSegment, error) {
	return nil, errors.WithStack(errShmemUnsupported)
}

func (s *shmemSegment) unmap() error { return nil }

type shmemNotifier struct{}

func createShmemNotifier(segPath string) (*shmemNotifier, error) {
	return nil, errors.WithStack(errShmemUnsupported)
}

func openShmemNotifier(segPath string) (*shmemNotifier, error) {
	return nil, errors.WithStack(errShmemUnsupported)
}

func (n *shmemNotifier) notify() error { return nil }
func (n *shmemNotifier) drain()        {}
func (n *shmemNotifier) FD() int       { return -1 }
func (n *shmemNotifier) close() error  { return nil }
