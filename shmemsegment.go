package rssl

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// Shared memory segment layout. The header occupies the first
// shmemHeaderSize bytes, followed by a ring of fixed size slots.
// Each slot starts with the sequence number it was written at (plus one)
// and the payload length.
const (
	shmemMagic           = uint64(0x314d4853_4c535352) // "RSSLSHM1" little-endian
	shmemVersion         = uint32(1)
	shmemHeaderSize      = 64
	shmemSlotHeaderSize  = 16
	shmemFlagInitialized = uint32(0x1)
	shmemFlagShutdown    = uint32(0x2)

	shmemOffMagic      = 0
	shmemOffVersion    = 8
	shmemOffFlags      = 12
	shmemOffMaxMsgSize = 16
	shmemOffSlots      = 20
	shmemOffWriteCount = 24
)

type shmemSegment struct {
	mem        []byte
	path       string
	file       *os.File
	owner      bool
	maxMsgSize int
	slots      int
	slotSize   int
	refs       int32
}

// shmemLayout returns the slot size and total segment size.
func shmemLayout(maxMsgSize, slots int) (slotSize, total int) {
	slotSize = (shmemSlotHeaderSize + maxMsgSize + 7) &^ 7
	total = shmemHeaderSize + slots*slotSize
	return
}

// shmemSegmentPath returns the file backing the named segment.
func shmemSegmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", "rssl_shm_"+name)
	}
	return filepath.Join(os.TempDir(), "rssl_shm_"+name)
}

func (s *shmemSegment) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[off]))
}

func (s *shmemSegment) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[off]))
}

// format writes a fresh header. Only the creator calls this.
func (s *shmemSegment) format() {
	*s.u64(shmemOffMagic) = shmemMagic
	*s.u32(shmemOffVersion) = shmemVersion
	atomic.StoreUint32(s.u32(shmemOffFlags), 0)
	*s.u32(shmemOffMaxMsgSize) = uint32(s.maxMsgSize)
	*s.u32(shmemOffSlots) = uint32(s.slots)
	atomic.StoreUint64(s.u64(shmemOffWriteCount), 0)
}

// load validates the header of an opened segment and picks up its geometry.
func (s *shmemSegment) load() error {
	if len(s.mem) < shmemHeaderSize {
		return errors.Errorf("segment too small: %d bytes", len(s.mem))
	}
	if *s.u64(shmemOffMagic) != shmemMagic {
		return errors.New("bad segment magic")
	}
	if v := *s.u32(shmemOffVersion); v != shmemVersion {
		return errors.Errorf("unsupported segment version %d", v)
	}
	s.maxMsgSize = int(*s.u32(shmemOffMaxMsgSize))
	s.slots = int(*s.u32(shmemOffSlots))
	var total int
	s.slotSize, total = shmemLayout(s.maxMsgSize, s.slots)
	if s.slots < 1 || total > len(s.mem) {
		return errors.Errorf("segment geometry %d x %d does not fit %d bytes", s.slots, s.maxMsgSize, len(s.mem))
	}
	return nil
}

func (s *shmemSegment) flags() uint32 {
	return atomic.LoadUint32(s.u32(shmemOffFlags))
}

func (s *shmemSegment) setFlag(f uint32) {
	p := s.u32(shmemOffFlags)
	for {
		old := atomic.LoadUint32(p)
		if atomic.CompareAndSwapUint32(p, old, old|f) {
			return
		}
	}
}

func (s *shmemSegment) clearFlag(f uint32) {
	p := s.u32(shmemOffFlags)
	for {
		old := atomic.LoadUint32(p)
		if old&f == 0 || atomic.CompareAndSwapUint32(p, old, old&^f) {
			return
		}
	}
}

func (s *shmemSegment) writeCount() uint64 {
	return atomic.LoadUint64(s.u64(shmemOffWriteCount))
}

func (s *shmemSegment) publish(n uint64) {
	atomic.StoreUint64(s.u64(shmemOffWriteCount), n)
}

// slotOffset returns the offset of the slot used by message number n.
func (s *shmemSegment) slotOffset(n uint64) int {
	return shmemHeaderSize + int(n%uint64(s.slots))*s.slotSize
}

func (s *shmemSegment) slot(n uint64) []byte {
	off := s.slotOffset(n)
	return s.mem[off : off+s.slotSize]
}

func (s *shmemSegment) slotSeq(n uint64) uint64 {
	return atomic.LoadUint64(s.u64(s.slotOffset(n)))
}

func (s *shmemSegment) slotLen(n uint64) int {
	return int(atomic.LoadUint32(s.u32(s.slotOffset(n) + 8)))
}

// commit records that message number n holds length bytes and publishes it.
func (s *shmemSegment) commit(n uint64, length int) {
	off := s.slotOffset(n)
	atomic.StoreUint32(s.u32(off+8), uint32(length))
	atomic.StoreUint64(s.u64(off), n+1)
	s.publish(n + 1)
}

func (s *shmemSegment) retain() {
	atomic.AddInt32(&s.refs, 1)
}

// release drops a reference, unmapping the segment when none remain.
func (s *shmemSegment) release() error {
	if atomic.AddInt32(&s.refs, -1) > 0 {
		return nil
	}
	return s.unmap()
}
