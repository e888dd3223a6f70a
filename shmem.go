package rssl

import (
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// The unidirectional shared memory transport carries messages from one
// writer Channel, obtained by Accept on the Server, to any number of
// reader Channels in other processes, obtained by Connect.
type shmemBackend struct{}

func newShmemBackend() *shmemBackend {
	return &shmemBackend{}
}

type shmemServer struct {
	seg      *shmemSegment
	notifier *shmemNotifier
	accepted int32
}

type shmemChannel struct {
	seg       *shmemSegment
	notifier  *shmemNotifier
	server    *shmemServer
	writer    bool
	hasBuffer bool
	readCount uint64
	readMem   []byte
}

func (sc *shmemChannel) String() string {
	if sc.writer {
		return "shmem writer " + sc.seg.path
	}
	return "shmem reader " + sc.seg.path
}

func shmemInfo(ch *Channel) *shmemChannel {
	sc, _ := ch.transportInfo.(*shmemChannel)
	return sc
}

func (b *shmemBackend) Bind(srv *Server, opts *BindOptions) error {
	if opts.ServiceName == "" {
		return newError(RetFailure, nil, "0013 Shared memory requires a service name")
	}
	maxMsgSize := DefaultShmemMaxMsgSize
	if opts.MaxFragmentSize > 0 {
		maxMsgSize = opts.MaxFragmentSize
	}
	slots := DefaultShmemSlots
	if opts.ShmemSlots > 0 {
		slots = opts.ShmemSlots
	}
	seg, err := createShmemSegment(opts.ServiceName, maxMsgSize, slots)
	if err != nil {
		return newError(RetFailure, err, "0002 Unable to create shared memory segment %q", opts.ServiceName)
	}
	notifier, err := createShmemNotifier(seg.path)
	if err != nil {
		seg.release()
		return newError(RetFailure, err, "0002 Unable to create shared memory notifier")
	}
	srv.MaxFragmentSize = maxMsgSize
	srv.MaxOutputBuffers = 1
	srv.GuaranteedOutputBuffers = 1
	srv.transportInfo = &shmemServer{seg: seg, notifier: notifier}
	return nil
}

func (b *shmemBackend) Accept(srv *Server, ch *Channel, opts *AcceptOptions) error {
	ss := srv.transportInfo.(*shmemServer)
	if !atomic.CompareAndSwapInt32(&ss.accepted, 0, 1) {
		return newError(RetFailure, nil, "0006 Shared memory server allows only one writer channel")
	}
	// a replacement writer reopens the segment to new readers
	ss.seg.clearFlag(shmemFlagShutdown)
	ss.seg.retain()
	ch.transportInfo = &shmemChannel{seg: ss.seg, notifier: ss.notifier, server: ss, writer: true}
	ch.setState(StateInitializing)
	return nil
}

func (b *shmemBackend) Connect(ch *Channel, opts *ConnectOptions) error {
	name := opts.ServiceName
	if name == "" {
		name = opts.Address
	}
	if name == "" {
		return newError(RetFailure, nil, "0013 Shared memory requires a service name")
	}
	seg, err := openShmemSegment(name)
	if err != nil {
		return newError(RetFailure, err, "0002 Unable to open shared memory segment %q", name)
	}
	sc := &shmemChannel{seg: seg, readMem: make([]byte, seg.maxMsgSize)}
	if n, err := openShmemNotifier(seg.path); err == nil {
		sc.notifier = n
	}
	ch.transportInfo = sc
	ch.setState(StateInitializing)
	if !opts.Blocking {
		return nil
	}
	deadline := time.Now().Add(DefaultConnectTimeout)
	for {
		ret, err := b.InitChannel(ch)
		if err != nil {
			b.CloseChannel(ch)
			return err
		}
		if ret == RetSuccess {
			return nil
		}
		if time.Now().After(deadline) {
			b.CloseChannel(ch)
			return newError(RetFailure, nil, "0002 Timed out waiting for shared memory server")
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *shmemBackend) InitChannel(ch *Channel) (RetCode, error) {
	sc := shmemInfo(ch)
	if sc.writer {
		sc.seg.setFlag(shmemFlagInitialized)
		if err := sc.notifier.notify(); err != nil {
			if wouldBlock(err) {
				return RetChanInitInProgress, nil
			}
			if !errors.Is(err, syscall.EINTR) {
				ch.setState(StateClosed)
				return RetFailure, newError(RetFailure, err, "0002 Unable to signal shared memory readers")
			}
			return RetChanInitInProgress, nil
		}
		ch.setState(StateActive)
		return RetSuccess, nil
	}
	if sc.notifier != nil {
		sc.notifier.drain()
	}
	flags := sc.seg.flags()
	if flags&shmemFlagShutdown != 0 {
		ch.setState(StateClosed)
		return RetFailure, newError(RetFailure, nil, "0002 Shared memory server has shut down")
	}
	if flags&shmemFlagInitialized == 0 {
		return RetChanInitInProgress, nil
	}
	sc.readCount = sc.seg.writeCount()
	ch.setState(StateActive)
	return RetSuccess, nil
}

func (b *shmemBackend) Read(ch *Channel, out *ReadOutArgs) ([]byte, RetCode, error) {
	sc := shmemInfo(ch)
	if sc.writer {
		return nil, RetFailure, newError(RetFailure, nil, "0006 Shared memory writer channels cannot read")
	}
	seg := sc.seg
	wc := seg.writeCount()
	if wc == sc.readCount {
		if seg.flags()&shmemFlagShutdown != 0 {
			ch.setState(StateClosed)
			return nil, RetFailure, newError(RetFailure, nil, "0002 Shared memory server has shut down")
		}
		return nil, RetReadWouldBlock, nil
	}
	// the slot at writeCount may be filled by an open writer buffer,
	// so a reader lagging by a full ring can no longer trust its slot
	if wc-sc.readCount >= uint64(seg.slots) {
		ch.setState(StateClosed)
		return nil, RetSlowReader, newError(RetSlowReader, nil, "0002 Reader fell behind by %d messages", wc-sc.readCount)
	}
	n := seg.slotLen(sc.readCount)
	if n > seg.maxMsgSize {
		ch.setState(StateClosed)
		return nil, RetFailure, newError(RetFailure, nil, "0002 Corrupt shared memory slot length %d", n)
	}
	slot := seg.slot(sc.readCount)
	copy(sc.readMem, slot[shmemSlotHeaderSize:shmemSlotHeaderSize+n])
	if seg.slotSeq(sc.readCount) != sc.readCount+1 || seg.writeCount()-sc.readCount >= uint64(seg.slots) {
		ch.setState(StateClosed)
		return nil, RetSlowReader, newError(RetSlowReader, nil, "0002 Slot overwritten while reading")
	}
	sc.readCount++
	out.BytesRead = n
	out.UncompressedBytesRead = n
	return sc.readMem[:n], RetCode(wc - sc.readCount), nil
}

func (b *shmemBackend) Write(ch *Channel, buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error) {
	sc := shmemInfo(ch)
	if !sc.writer || !sc.hasBuffer {
		return RetFailure, newError(RetFailure, nil, "0006 Buffer was not obtained from the shared memory writer")
	}
	n := len(buf.Data)
	if n > buf.totalLength {
		return RetFailure, newError(RetFailure, nil, "0015 Buffer length %d exceeds the buffer size %d", n, buf.totalLength)
	}
	wc := sc.seg.writeCount()
	copy(buf.mem[shmemSlotHeaderSize:], buf.Data)
	sc.seg.commit(wc, n)
	sc.hasBuffer = false
	out.BytesWritten = n
	out.UncompressedBytesWritten = n
	return RetSuccess, nil
}

func (b *shmemBackend) Flush(*Channel) (RetCode, error) { return RetSuccess, nil }

func (b *shmemBackend) GetBuffer(ch *Channel, size int, packed bool) (*Buffer, error) {
	sc := shmemInfo(ch)
	if !sc.writer {
		return nil, newError(RetFailure, nil, "0006 Shared memory reader channels cannot get buffers")
	}
	if sc.hasBuffer {
		return nil, newError(RetBufferNoBuffers, nil, "0015 Shared memory allows one outstanding buffer")
	}
	if packed {
		return nil, newError(RetFailure, nil, "0006 Packing is not supported on shared memory")
	}
	if size > sc.seg.maxMsgSize {
		return nil, newError(RetFailure, nil, "0015 Buffer size %d is larger than the max message size %d", size, sc.seg.maxMsgSize)
	}
	slot := sc.seg.slot(sc.seg.writeCount())
	buf := ch.buffers.alloc()
	buf.mem = slot
	buf.Data = slot[shmemSlotHeaderSize : shmemSlotHeaderSize+size]
	buf.totalLength = size
	sc.hasBuffer = true
	return buf, nil
}

func (b *shmemBackend) ReleaseBuffer(ch *Channel, buf *Buffer) error {
	shmemInfo(ch).hasBuffer = false
	return nil
}

func (b *shmemBackend) PackBuffer(*Channel, *Buffer) error {
	return newError(RetFailure, nil, "0006 Packing is not supported on shared memory")
}

func (b *shmemBackend) Ping(*Channel) error { return nil }

func (b *shmemBackend) Ioctl(ch *Channel, code IoctlCode, value interface{}) error {
	switch code {
	case IoctlMaxNumBuffers, IoctlNumGuaranteedBuffers, IoctlHighWaterMark,
		IoctlPriorityFlushOrder, IoctlCompressionThreshold, IoctlDebugFlags:
		return nil
	}
	return newError(RetFailure, nil, "0017 Invalid IOCtl Code %d", int(code))
}

func (b *shmemBackend) Info(ch *Channel) (ChannelInfo, error) {
	sc := shmemInfo(ch)
	return ChannelInfo{
		MaxFragmentSize:         sc.seg.maxMsgSize,
		MaxOutputBuffers:        1,
		GuaranteedOutputBuffers: 1,
		NumInputBuffers:         sc.seg.slots,
		PingTimeout:             ch.PingTimeout,
	}, nil
}

func (b *shmemBackend) BufferUsage(ch *Channel) (int, error) {
	if shmemInfo(ch).hasBuffer {
		return 1, nil
	}
	return 0, nil
}

func (b *shmemBackend) CloseChannel(ch *Channel) error {
	sc := shmemInfo(ch)
	if sc == nil {
		return nil
	}
	if sc.writer {
		sc.seg.setFlag(shmemFlagShutdown)
		atomic.StoreInt32(&sc.server.accepted, 0)
	} else if sc.notifier != nil {
		sc.notifier.close()
	}
	return sc.seg.release()
}

func (b *shmemBackend) ServerIoctl(srv *Server, code IoctlCode, value interface{}) error {
	switch code {
	case IoctlServerNumPoolBuffers, IoctlServerPeakBufReset:
		return nil
	}
	return newError(RetFailure, nil, "0017 Invalid IOCtl Code %d", int(code))
}

func (b *shmemBackend) ServerInfo(srv *Server) (ServerInfo, error) {
	return ServerInfo{}, nil
}

func (b *shmemBackend) ServerBufferUsage(srv *Server) (int, error) {
	return 0, nil
}

func (b *shmemBackend) CloseServer(srv *Server) error {
	ss, _ := srv.transportInfo.(*shmemServer)
	if ss == nil {
		return nil
	}
	ss.seg.setFlag(shmemFlagShutdown)
	ss.notifier.close()
	return ss.seg.release()
}
