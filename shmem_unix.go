//go:build unix

package rssl

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// createShmemSegment creates and formats a new segment. It fails if the
// named segment already exists.
func createShmemSegment(name string, maxMsgSize, slots int) (*shmemSegment, error) {
	path := shmemSegmentPath(name)
	_, total := shmemLayout(maxMsgSize, slots)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "create segment %s", path)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}
	if err = file.Truncate(int64(total)); err != nil {
		cleanup()
		return nil, errors.Wrap(err, "resize segment")
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, errors.Wrap(err, "mmap segment")
	}
	s := &shmemSegment{
		mem:        mem,
		path:       path,
		file:       file,
		owner:      true,
		maxMsgSize: maxMsgSize,
		slots:      slots,
		refs:       1,
	}
	s.slotSize, _ = shmemLayout(maxMsgSize, slots)
	s.format()
	return s, nil
}

// openShmemSegment maps an existing segment.
func openShmemSegment(name string) (*shmemSegment, error) {
	path := shmemSegmentPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open segment %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "stat segment")
	}
	if info.Size() < shmemHeaderSize {
		file.Close()
		return nil, errors.Errorf("segment file too small: %d bytes", info.Size())
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "mmap segment")
	}
	s := &shmemSegment{mem: mem, path: path, file: file, refs: 1}
	if err = s.load(); err != nil {
		unix.Munmap(mem)
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *shmemSegment) unmap() (err error) {
	if s.mem != nil {
		err = unix.Munmap(s.mem)
		s.mem = nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if s.owner {
		os.Remove(s.path)
	}
	return errors.WithStack(err)
}

// shmemNotifier is a FIFO next to the segment. The server writes a byte
// when the segment becomes ready; clients may poll the read end.
type shmemNotifier struct {
	fd    int
	path  string
	owner bool
}

func createShmemNotifier(segPath string) (*shmemNotifier, error) {
	path := segPath + ".wake"
	os.Remove(path)
	if err := unix.Mkfifo(path, 0600); err != nil {
		return nil, errors.Wrapf(err, "mkfifo %s", path)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		os.Remove(path)
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &shmemNotifier{fd: fd, path: path, owner: true}, nil
}

func openShmemNotifier(segPath string) (*shmemNotifier, error) {
	path := segPath + ".wake"
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &shmemNotifier{fd: fd, path: path}, nil
}

// notify writes one byte, returning unix.EAGAIN if the FIFO is full.
func (n *shmemNotifier) notify() error {
	_, err := unix.Write(n.fd, []byte{1})
	return err
}

// drain discards pending wake bytes.
func (n *shmemNotifier) drain() {
	var b [64]byte
	for {
		if k, err := unix.Read(n.fd, b[:]); k <= 0 || err != nil {
			return
		}
	}
}

// FD returns the descriptor to poll for readiness.
func (n *shmemNotifier) FD() int {
	return n.fd
}

func (n *shmemNotifier) close() error {
	err := unix.Close(n.fd)
	if n.owner {
		os.Remove(n.path)
	}
	return err
}
