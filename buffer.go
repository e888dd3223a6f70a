package rssl

import "fmt"

// Buffer is a handle to transport memory obtained with Channel.GetBuffer.
//
// Data is the writable view. After filling it, shorten Data to the number
// of bytes actually used before calling Write or PackBuffer.
// A Buffer is consumed by a successful Write or by ReleaseBuffer and must
// not be used afterwards.
type Buffer struct {
	Data          []byte
	integrity     byte
	owner         bool // Data was allocated for this handle, not borrowed from the transport
	channel       *Channel
	packingOffset int
	fragID        uint16
	totalLength   int
	priority      WritePriority
	mem           []byte
	info          interface{}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("[Buffer len=%d pack=%d owner=%v valid=%v]", len(b.Data), b.packingOffset, b.owner, b.valid())
}

// Channel returns the Channel the Buffer was obtained from.
func (b *Buffer) Channel() *Channel {
	return b.channel
}

// Length returns the number of bytes in the current view.
func (b *Buffer) Length() int {
	return len(b.Data)
}

// Packable returns true if the Buffer was requested as packable.
func (b *Buffer) Packable() bool {
	return b.packingOffset > 0
}

func (b *Buffer) valid() bool {
	return b.integrity == BufferIntegrity
}

func (b *Buffer) clear() {
	b.Data = nil
	b.integrity = 0
	b.owner = false
	b.channel = nil
	b.packingOffset = 0
	b.fragID = 0
	b.totalLength = 0
	b.priority = PriorityMedium
	b.mem = nil
	b.info = nil
}
