package rssl

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// datagramCursor walks the length prefixed records of one datagram.
// While inProgress is true, records remain and the next Read must
// continue from offset instead of receiving a new datagram.
type datagramCursor struct {
	data       []byte
	offset     int
	header     SeqMcastHeader
	inProgress bool
}

func (c *datagramCursor) reset(data []byte, hdr SeqMcastHeader) {
	c.data = data
	c.header = hdr
	c.offset = int(hdr.HeaderLen)
	c.inProgress = false
}

// next returns the next record and the number of datagram bytes left after it.
func (c *datagramCursor) next() (msg []byte, remaining int, err error) {
	if c.offset+2 > len(c.data) {
		c.inProgress = false
		err = errors.Wrapf(FramingError{}, "record length at %d past datagram end %d", c.offset, len(c.data))
		return
	}
	n := int(binary.BigEndian.Uint16(c.data[c.offset:]))
	start := c.offset + 2
	if start+n > len(c.data) {
		c.inProgress = false
		err = errors.Wrapf(FramingError{}, "record length %d at %d overruns datagram length %d", n, c.offset, len(c.data))
		return
	}
	msg = c.data[start : start+n]
	c.offset = start + n
	remaining = len(c.data) - c.offset
	c.inProgress = remaining > 0
	return
}
