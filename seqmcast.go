package rssl

import (
	"encoding/binary"
	"syscall"

	"github.com/pkg/errors"
)

// datagramConn is the socket beneath a sequenced multicast Channel.
// Implementations return syscall.EAGAIN when a non-blocking operation
// would block and syscall.EINTR when interrupted.
type datagramConn interface {
	recvFrom(p []byte) (n int, from NodeID, err error)
	sendTo(p []byte) error
	setSockBuf(write bool, size int) error
	sockBufSizes() (send, recv int)
	Close() error
}

type seqMcastBackend struct {
	dial func(opts *ConnectOptions) (datagramConn, error)
}

func newSeqMcastBackend() *seqMcastBackend {
	return &seqMcastBackend{dial: dialSeqMcast}
}

// seqMcastChannel is the transportInfo of a sequenced multicast Channel.
type seqMcastChannel struct {
	conn        datagramConn
	maxMsgSize  int
	instanceID  uint16
	writeSeqNum uint32
	pendingSeq  uint32 // sequence number of a write that returned RetWriteCallAgain
	bufferInUse bool
	packedLen   int
	writeMem    []byte
	pingMem     [SeqMcastPingLen]byte
	readMem     []byte
	cursor      datagramCursor
	from        NodeID
	pktSent     uint64
	pktRecv     uint64
}

func (sm *seqMcastChannel) String() string {
	return "seqmcast " + sm.cursor.header.String()
}

func newSeqMcastChannel(conn datagramConn, maxMsgSize int, instanceID uint16) *seqMcastChannel {
	return &seqMcastChannel{
		conn:       conn,
		maxMsgSize: maxMsgSize,
		instanceID: instanceID,
		writeMem:   make([]byte, maxMsgSize+SeqMcastMaxHeaderLen+7),
		readMem:    make([]byte, maxMsgSize+SeqMcastMaxHeaderLen+7),
	}
}

func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

func seqMcastInfo(ch *Channel) *seqMcastChannel {
	sm, _ := ch.transportInfo.(*seqMcastChannel)
	return sm
}

func (b *seqMcastBackend) notImplemented(op string) error {
	return newError(RetFailure, nil, "0006 %s is not implemented for sequenced multicast", op)
}

func (b *seqMcastBackend) Connect(ch *Channel, opts *ConnectOptions) error {
	addr, service := opts.recvEndpoint()
	if addr == "" || service == "" {
		return newError(RetFailure, nil, "0013 Sequenced multicast requires both an address and a service name")
	}
	maxMsgSize := opts.SeqMcast.MaxMsgSize
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultSeqMcastMaxMsgSize
	}
	if maxMsgSize > SeqMcastMaxMsgSize {
		maxMsgSize = SeqMcastMaxMsgSize
	}
	conn, err := b.dial(opts)
	if err != nil {
		return err
	}
	ch.transportInfo = newSeqMcastChannel(conn, maxMsgSize, opts.SeqMcast.InstanceID)
	ch.ConnectionType = ConnTypeSeqMcast
	ch.setState(StateActive)
	return nil
}

func (b *seqMcastBackend) Bind(*Server, *BindOptions) error { return b.notImplemented("Bind") }

func (b *seqMcastBackend) Accept(*Server, *Channel, *AcceptOptions) error {
	return b.notImplemented("Accept")
}

func (b *seqMcastBackend) InitChannel(*Channel) (RetCode, error) { return RetSuccess, nil }

func (sm *seqMcastChannel) fillReadOut(out *ReadOutArgs) {
	h := sm.cursor.header
	out.Flags = ReadOutSeqNum | ReadOutNodeID | ReadOutInstanceID
	if h.IsRetransmit() {
		out.Flags |= ReadOutRetransmit
	}
	out.SeqNum = h.SeqNum
	out.InstanceID = h.InstanceID
	out.NodeID = sm.from
}

func (b *seqMcastBackend) framingFailure(ch *Channel, err error) ([]byte, RetCode, error) {
	ch.setState(StateClosed)
	return nil, RetFailure, newError(RetFailure, err, "0002 Corrupt sequenced multicast datagram")
}

func (b *seqMcastBackend) Read(ch *Channel, out *ReadOutArgs) ([]byte, RetCode, error) {
	sm := seqMcastInfo(ch)
	if !ch.mu.TryLock() {
		return nil, RetReadInProgress, nil
	}
	defer ch.mu.Unlock()

	if !sm.cursor.inProgress {
		n, from, err := sm.conn.recvFrom(sm.readMem)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				return nil, 1, nil
			}
			if wouldBlock(err) {
				return nil, RetReadWouldBlock, nil
			}
			return nil, RetFailure, newError(RetFailure, err, "0002 recvfrom failed")
		}
		sm.pktRecv++
		data := sm.readMem[:n]
		if n < SeqMcastHeaderSize {
			return b.framingFailure(ch, errors.Wrapf(FramingError{}, "datagram length %d shorter than header", n))
		}
		hdr, herr := DecodeSeqMcastHeader(data)
		if hdr.Version != SeqMcastVersion {
			return nil, RetFailure, newError(RetFailure, nil, "0002 Unknown sequenced multicast version %d", hdr.Version)
		}
		if hdr.ProtocolType != ch.ProtocolType {
			return nil, RetFailure, newError(RetFailure, nil, "0002 Protocol type %d does not match channel protocol type %d", hdr.ProtocolType, ch.ProtocolType)
		}
		if herr != nil {
			return b.framingFailure(ch, herr)
		}
		sm.from = from
		sm.cursor.reset(data, hdr)
		if n == SeqMcastPingLen {
			sm.fillReadOut(out)
			return nil, RetReadPing, nil
		}
		msg, remaining, err := sm.cursor.next()
		if err != nil {
			return b.framingFailure(ch, err)
		}
		sm.fillReadOut(out)
		out.BytesRead = n
		out.UncompressedBytesRead = n
		return msg, RetCode(remaining), nil
	}

	msg, remaining, err := sm.cursor.next()
	if err != nil {
		return b.framingFailure(ch, err)
	}
	sm.fillReadOut(out)
	return msg, RetCode(remaining), nil
}

func (b *seqMcastBackend) Write(ch *Channel, buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error) {
	sm := seqMcastInfo(ch)
	hasSeq := in.Flags&WriteInSeqNum != 0
	hasRetransmit := in.Flags&WriteInRetransmit != 0
	if hasRetransmit && !hasSeq {
		return RetFailure, newError(RetFailure, nil, "0012 Retransmit requires a sequence number")
	}
	if hasSeq && !hasRetransmit {
		return RetFailure, newError(RetFailure, nil, "0012 A sequence number can only be given on retransmit")
	}

	hdr := SeqMcastHeader{
		Version:      SeqMcastVersion,
		ProtocolType: ch.ProtocolType,
		HeaderLen:    SeqMcastHeaderSize,
		InstanceID:   sm.instanceID,
		MajorVersion: ch.MajorVersion,
		MinorVersion: ch.MinorVersion,
	}
	if hasSeq {
		hdr.Flags = SeqMcastFlagRetransmit
		hdr.SeqNum = in.SeqNum
	} else if sm.pendingSeq != 0 {
		hdr.SeqNum = sm.pendingSeq
	} else {
		sm.writeSeqNum++
		if sm.writeSeqNum == 0 {
			sm.writeSeqNum++
		}
		hdr.SeqNum = sm.writeSeqNum
	}

	var pktLen int
	if n := len(buf.Data); n != 0 {
		if n > buf.totalLength-(buf.packingOffset-SeqMcastMaxHeaderLen) {
			return RetFailure, newError(RetFailure, nil, "0015 Buffer length %d exceeds the space left in the buffer", n)
		}
		copy(sm.writeMem[buf.packingOffset:], buf.Data)
		binary.BigEndian.PutUint16(sm.writeMem[buf.packingOffset-2:], uint16(n))
		pktLen = buf.packingOffset + n
	} else {
		if buf.packingOffset == SeqMcastMaxHeaderLen {
			return RetFailure, newError(RetFailure, nil, "0009 Cannot write a 0 length buffer")
		}
		pktLen = sm.packedLen
	}
	hdr.Encode(sm.writeMem)

	for {
		err := sm.conn.sendTo(sm.writeMem[:pktLen])
		if err == nil {
			break
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if wouldBlock(err) {
			if !hasSeq {
				sm.pendingSeq = hdr.SeqNum
			}
			return RetWriteCallAgain, nil
		}
		ch.setState(StateClosed)
		return RetFailure, newError(RetFailure, err, "0002 sendto failed")
	}
	if !hasSeq {
		sm.pendingSeq = 0
	}
	sm.pktSent++
	sm.bufferInUse = false
	sm.packedLen = 0
	out.BytesWritten = pktLen
	out.UncompressedBytesWritten = pktLen
	return RetSuccess, nil
}

func (b *seqMcastBackend) Flush(*Channel) (RetCode, error) { return RetSuccess, nil }

func (b *seqMcastBackend) GetBuffer(ch *Channel, size int, packed bool) (*Buffer, error) {
	sm := seqMcastInfo(ch)
	if size > sm.maxMsgSize {
		return nil, newError(RetFailure, nil, "0015 Buffer size %d is larger than the max message size %d", size, sm.maxMsgSize)
	}
	if sm.bufferInUse {
		return nil, newError(RetFailure, nil, "0015 Sequenced multicast does not allow getting multiple buffers")
	}
	buf := ch.buffers.alloc()
	buf.mem = sm.writeMem
	buf.Data = sm.writeMem[SeqMcastMaxHeaderLen : SeqMcastMaxHeaderLen+size]
	buf.packingOffset = SeqMcastMaxHeaderLen
	buf.totalLength = size
	sm.bufferInUse = true
	sm.packedLen = 0
	return buf, nil
}

func (b *seqMcastBackend) ReleaseBuffer(ch *Channel, buf *Buffer) error {
	sm := seqMcastInfo(ch)
	sm.bufferInUse = false
	sm.packedLen = 0
	return nil
}

func (b *seqMcastBackend) PackBuffer(ch *Channel, buf *Buffer) error {
	sm := seqMcastInfo(ch)
	n := len(buf.Data)
	if n > buf.totalLength-(buf.packingOffset-SeqMcastMaxHeaderLen) {
		return newError(RetInvalidArgument, nil, "0015 Packed length %d exceeds the space left in the buffer", n)
	}
	copy(sm.writeMem[buf.packingOffset:], buf.Data)
	binary.BigEndian.PutUint16(sm.writeMem[buf.packingOffset-2:], uint16(n))
	buf.packingOffset += n + 2
	sm.packedLen = buf.packingOffset - 2
	space := buf.totalLength - (buf.packingOffset - SeqMcastMaxHeaderLen)
	if space < 0 {
		space = 0
	}
	buf.Data = sm.writeMem[buf.packingOffset : buf.packingOffset+space]
	return nil
}

func (b *seqMcastBackend) Ping(ch *Channel) error {
	sm := seqMcastInfo(ch)
	hdr := SeqMcastHeader{
		Version:      SeqMcastVersion,
		ProtocolType: ch.ProtocolType,
		HeaderLen:    SeqMcastHeaderSize,
		InstanceID:   sm.instanceID,
		MajorVersion: ch.MajorVersion,
		MinorVersion: ch.MinorVersion,
		SeqNum:       sm.writeSeqNum,
	}
	hdr.Encode(sm.pingMem[:])
	for {
		err := sm.conn.sendTo(sm.pingMem[:])
		if err == nil {
			break
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if wouldBlock(err) {
			return nil
		}
		return newError(RetFailure, err, "0002 ping sendto failed")
	}
	sm.pktSent++
	return nil
}

func (b *seqMcastBackend) Ioctl(ch *Channel, code IoctlCode, value interface{}) error {
	sm := seqMcastInfo(ch)
	switch code {
	case IoctlSystemReadBuffers, IoctlSystemWriteBuffers:
		size, ok := value.(int)
		if !ok || size <= 0 {
			return newError(RetInvalidArgument, nil, "0017 Invalid socket buffer size %v", value)
		}
		if err := sm.conn.setSockBuf(code == IoctlSystemWriteBuffers, size); err != nil {
			return newError(RetFailure, err, "0002 setsockopt failed")
		}
		return nil
	case IoctlMaxNumBuffers, IoctlNumGuaranteedBuffers, IoctlHighWaterMark,
		IoctlRegisterHashID, IoctlUnregisterHashID, IoctlPriorityFlushOrder,
		IoctlServerNumPoolBuffers, IoctlCompressionThreshold, IoctlServerPeakBufReset,
		IoctlDebugFlags:
		return nil
	}
	return newError(RetFailure, nil, "0017 Invalid IOCtl Code %d", int(code))
}

func (b *seqMcastBackend) Info(ch *Channel) (ChannelInfo, error) {
	sm := seqMcastInfo(ch)
	send, recv := sm.conn.sockBufSizes()
	return ChannelInfo{
		MaxFragmentSize:         sm.maxMsgSize,
		MaxOutputBuffers:        1,
		GuaranteedOutputBuffers: 1,
		NumInputBuffers:         1,
		PingTimeout:             ch.PingTimeout,
		SysSendBufSize:          send,
		SysRecvBufSize:          recv,
		MulticastStats: MulticastStats{
			PacketsSent:     sm.pktSent,
			PacketsReceived: sm.pktRecv,
		},
	}, nil
}

func (b *seqMcastBackend) BufferUsage(ch *Channel) (int, error) {
	if seqMcastInfo(ch).bufferInUse {
		return 1, nil
	}
	return 0, nil
}

func (b *seqMcastBackend) CloseChannel(ch *Channel) error {
	if sm := seqMcastInfo(ch); sm != nil && sm.conn != nil {
		return sm.conn.Close()
	}
	return nil
}

func (b *seqMcastBackend) ServerIoctl(*Server, IoctlCode, interface{}) error {
	return b.notImplemented("ServerIoctl")
}

func (b *seqMcastBackend) ServerInfo(*Server) (ServerInfo, error) {
	return ServerInfo{}, b.notImplemented("GetServerInfo")
}

func (b *seqMcastBackend) ServerBufferUsage(*Server) (int, error) {
	return 0, b.notImplemented("ServerBufferUsage")
}

func (b *seqMcastBackend) CloseServer(*Server) error { return nil }
