// seqmcastheader.go

// A sequenced multicast datagram starts with a twelve byte header, all
// fields big-endian:
//
//   version(1) flags(1) protocolType(1) headerLength(1)
//   instanceID(2) majorVersion(1) minorVersion(1) sequenceNumber(4)
//
// A datagram holding only the header is a ping. Otherwise the header is
// followed by one or more records of a two byte length and that many
// payload bytes. The headerLength field gives the offset of the first
// record, allowing later versions to extend the header.

package rssl

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// SeqMcastFlag enumerates the header flag bits.
type SeqMcastFlag byte

const (
	// SeqMcastFlagRetransmit marks a datagram that repeats an earlier sequence number.
	SeqMcastFlagRetransmit SeqMcastFlag = 0x02
)

// SeqMcastHeader is the decoded form of a sequenced multicast header.
type SeqMcastHeader struct {
	Version      uint8
	Flags        SeqMcastFlag
	ProtocolType uint8
	HeaderLen    uint8
	InstanceID   uint16
	MajorVersion uint8
	MinorVersion uint8
	SeqNum       uint32
}

// FramingError is returned when a datagram does not hold a valid header or record.
type FramingError struct{}

func (FramingError) Error() string { return "sequenced multicast framing error" }

func (h SeqMcastHeader) String() string {
	var rt string
	if h.IsRetransmit() {
		rt = " R"
	}
	return fmt.Sprintf("[SeqMcastHeader v%d p%d %d.%d inst=%d seq=%d hl=%d%s]",
		h.Version, h.ProtocolType, h.MajorVersion, h.MinorVersion, h.InstanceID, h.SeqNum, h.HeaderLen, rt)
}

// IsRetransmit returns true if the retransmit flag is set.
func (h SeqMcastHeader) IsRetransmit() bool {
	return h.Flags&SeqMcastFlagRetransmit == SeqMcastFlagRetransmit
}

// Encode writes h into the first SeqMcastHeaderSize bytes of b and
// returns the number of bytes written.
func (h SeqMcastHeader) Encode(b []byte) int {
	_ = b[SeqMcastHeaderSize-1]
	b[0] = h.Version
	b[1] = byte(h.Flags)
	b[2] = h.ProtocolType
	b[3] = h.HeaderLen
	binary.BigEndian.PutUint16(b[4:], h.InstanceID)
	b[6] = h.MajorVersion
	b[7] = h.MinorVersion
	binary.BigEndian.PutUint32(b[8:], h.SeqNum)
	return SeqMcastHeaderSize
}

// DecodeSeqMcastHeader parses the header at the start of b.
func DecodeSeqMcastHeader(b []byte) (h SeqMcastHeader, err error) {
	if len(b) < SeqMcastHeaderSize {
		err = errors.Wrapf(FramingError{}, "datagram length %d shorter than header", len(b))
		return
	}
	h.Version = b[0]
	h.Flags = SeqMcastFlag(b[1])
	h.ProtocolType = b[2]
	h.HeaderLen = b[3]
	h.InstanceID = binary.BigEndian.Uint16(b[4:])
	h.MajorVersion = b[6]
	h.MinorVersion = b[7]
	h.SeqNum = binary.BigEndian.Uint32(b[8:])
	if int(h.HeaderLen) < SeqMcastHeaderSize {
		err = errors.Wrapf(FramingError{}, "header length %d too small", h.HeaderLen)
	}
	return
}
