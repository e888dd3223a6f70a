// socketframe.go

// A socket frame starts with a three byte header. The first two bytes are
// the big-endian length of the whole frame including the header, the third
// byte holds the frame flags.
//
// A frame with no flags and no payload is a ping. Control frames carry the
// connection handshake. Data frames carry one message, packed frames carry
// a sequence of two byte length prefixed messages, and messages larger than
// the negotiated fragment size are split into a fragment header frame
// followed by fragment frames sharing a fragment ID.

package rssl

import (
	"encoding/binary"
	"fmt"
)

// SocketFrameHeader is the header of a socket frame.
type SocketFrameHeader []byte

// SocketFrameFlag enumerates the header flag bits.
type SocketFrameFlag byte

const (
	// SocketFrameHeaderSize is the number of bytes in a socket frame header.
	SocketFrameHeaderSize = 3
	// SocketFrameMaxSize is the largest frame, header included.
	SocketFrameMaxSize = 0xffff
	// socketFragHeaderExt is the size of the total length and fragment ID following a fragment header.
	socketFragHeaderExt = 6
	// socketFragmentExt is the size of the fragment ID following a fragment frame header.
	socketFragmentExt = 2
)

const (
	SocketFrameControl    SocketFrameFlag = 0x01
	SocketFrameData       SocketFrameFlag = 0x02
	SocketFrameFragHeader SocketFrameFlag = 0x04
	SocketFrameFragment   SocketFrameFlag = 0x08
	SocketFramePacked     SocketFrameFlag = 0x10
)

var socketFrameFlagTexts = map[SocketFrameFlag]string{
	0:                     "Ping",
	SocketFrameControl:    "Control",
	SocketFrameData:       "Data",
	SocketFrameFragHeader: "FragHeader",
	SocketFrameFragment:   "Fragment",
	SocketFramePacked:     "Packed",
}

func (fh SocketFrameHeader) String() string {
	return fmt.Sprintf("[SocketFrameHeader %s %d (%d)]", socketFrameFlagTexts[fh.Flags()], fh.Size(), len(fh))
}

// Size returns the frame size including the header.
func (fh SocketFrameHeader) Size() int {
	return int(fh[0])<<8 | int(fh[1])
}

// SetSize sets the frame size including the header.
func (fh SocketFrameHeader) SetSize(n int) {
	fh[0] = byte(n >> 8)
	fh[1] = byte(n)
}

// Flags returns the frame flags.
func (fh SocketFrameHeader) Flags() SocketFrameFlag {
	return SocketFrameFlag(fh[2])
}

// SetFlags sets the frame flags.
func (fh SocketFrameHeader) SetFlags(f SocketFrameFlag) {
	fh[2] = byte(f)
}

// IsPing returns true for a header-only frame without flags.
func (fh SocketFrameHeader) IsPing() bool {
	return fh.Size() == SocketFrameHeaderSize && fh.Flags() == 0
}

// socketControlOp enumerates the handshake messages.
type socketControlOp byte

const (
	socketConnectReq socketControlOp = 1
	socketConnectAck socketControlOp = 2
	socketConnectNak socketControlOp = 3
)

// socketConnectReqMsg is sent by the client as the first frame.
type socketConnectReqMsg struct {
	ProtocolType  uint8
	MajorVersion  uint8
	MinorVersion  uint8
	PingTimeout   uint16
	ComponentInfo string
}

// socketConnectAckMsg accepts the connection.
type socketConnectAckMsg struct {
	MaxFragmentSize uint16
	PingTimeout     uint16
	MajorVersion    uint8
	MinorVersion    uint8
}

func appendControlHeader(op socketControlOp, size int) []byte {
	b := make([]byte, SocketFrameHeaderSize+1, SocketFrameHeaderSize+size)
	fh := SocketFrameHeader(b)
	fh.SetFlags(SocketFrameControl)
	b[SocketFrameHeaderSize] = byte(op)
	return b
}

func finishFrame(b []byte) []byte {
	SocketFrameHeader(b).SetSize(len(b))
	return b
}

func (m socketConnectReqMsg) frame() []byte {
	ci := m.ComponentInfo
	if len(ci) > 0xff {
		ci = ci[:0xff]
	}
	b := appendControlHeader(socketConnectReq, 7+len(ci))
	b = append(b, m.ProtocolType, m.MajorVersion, m.MinorVersion)
	b = binary.BigEndian.AppendUint16(b, m.PingTimeout)
	b = append(b, byte(len(ci)))
	b = append(b, ci...)
	return finishFrame(b)
}

func (m socketConnectAckMsg) frame() []byte {
	b := appendControlHeader(socketConnectAck, 7)
	b = binary.BigEndian.AppendUint16(b, m.MaxFragmentSize)
	b = binary.BigEndian.AppendUint16(b, m.PingTimeout)
	b = append(b, m.MajorVersion, m.MinorVersion)
	return finishFrame(b)
}

func socketNakFrame(text string) []byte {
	if len(text) > 0xff {
		text = text[:0xff]
	}
	b := appendControlHeader(socketConnectNak, 2+len(text))
	b = append(b, byte(len(text)))
	b = append(b, text...)
	return finishFrame(b)
}

// parseControlFrame returns the op and body of a control frame.
func parseControlFrame(f []byte) (op socketControlOp, body []byte, err error) {
	if len(f) < SocketFrameHeaderSize+1 || SocketFrameHeader(f).Flags() != SocketFrameControl {
		err = newError(RetFailure, nil, "0002 Expected a handshake frame, got %v", SocketFrameHeader(f))
		return
	}
	return socketControlOp(f[SocketFrameHeaderSize]), f[SocketFrameHeaderSize+1:], nil
}

func parseConnectReq(body []byte) (m socketConnectReqMsg, err error) {
	if len(body) < 6 || len(body) < 6+int(body[5]) {
		err = newError(RetFailure, nil, "0002 Short connect request")
		return
	}
	m.ProtocolType = body[0]
	m.MajorVersion = body[1]
	m.MinorVersion = body[2]
	m.PingTimeout = binary.BigEndian.Uint16(body[3:])
	m.ComponentInfo = string(body[6 : 6+int(body[5])])
	return
}

func parseConnectAck(body []byte) (m socketConnectAckMsg, err error) {
	if len(body) < 6 {
		err = newError(RetFailure, nil, "0002 Short connect ack")
		return
	}
	m.MaxFragmentSize = binary.BigEndian.Uint16(body)
	m.PingTimeout = binary.BigEndian.Uint16(body[2:])
	m.MajorVersion = body[4]
	m.MinorVersion = body[5]
	return
}

func parseConnectNak(body []byte) string {
	if len(body) < 1 || len(body) < 1+int(body[0]) {
		return ""
	}
	return string(body[1 : 1+int(body[0])])
}
