// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rssl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/pkg/errors"
)

// defaultNumInputBuffers is the number of received frames queued per Channel.
const defaultNumInputBuffers = 64

// frameConn carries whole socket frames.
type frameConn interface {
	// ReadFrame returns the next frame including its header.
	ReadFrame() ([]byte, error)
	// WriteFrame queues a frame. The frame may be reused once WriteFrame returns.
	WriteFrame(f []byte) error
	Flush() error
	// Buffered returns the number of bytes queued but not yet written.
	Buffered() int
	SetBuffers(write bool, size int) error
	RemoteAddr() string
	Close() error
}

// ErrFrameSize is returned when a received frame header has an impossible size.
type ErrFrameSize struct {
	Size int
}

func (e ErrFrameSize) Error() string {
	return fmt.Sprintf("invalid socket frame size %d", e.Size)
}

// streamFrameConn frames a byte stream such as a TCP connection.
type streamFrameConn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
	w    *bufio.Writer
}

func newStreamFrameConn(conn net.Conn) *streamFrameConn {
	return &streamFrameConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, SocketFrameMaxSize),
		w:    bufio.NewWriterSize(conn, SocketFrameMaxSize),
	}
}

func (s *streamFrameConn) ReadFrame() ([]byte, error) {
	var hdr [SocketFrameHeaderSize]byte
	if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
		return nil, err
	}
	n := SocketFrameHeader(hdr[:]).Size()
	if n < SocketFrameHeaderSize {
		return nil, errors.WithStack(ErrFrameSize{Size: n})
	}
	f := make([]byte, n)
	copy(f, hdr[:])
	if _, err := io.ReadFull(s.r, f[SocketFrameHeaderSize:]); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *streamFrameConn) WriteFrame(f []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.w.Write(f)
	return err
}

func (s *streamFrameConn) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Flush()
}

func (s *streamFrameConn) Buffered() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Buffered()
}

func (s *streamFrameConn) SetBuffers(write bool, size int) error {
	tc, ok := s.conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if write {
		return tc.SetWriteBuffer(size)
	}
	return tc.SetReadBuffer(size)
}

func (s *streamFrameConn) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *streamFrameConn) Close() error {
	return s.conn.Close()
}

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// network connections so dead peers eventually go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

type socketBufKind int

const (
	socketBufNormal socketBufKind = iota
	socketBufPacked
	socketBufFragmented
)

// socketPackBase is where the first packed message starts in a packed buffer.
const socketPackBase = SocketFrameHeaderSize + 2

// socketChannel is the transportInfo of socket and WebSocket Channels.
type socketChannel struct {
	fc                frameConn
	server            *socketServer // nil on the client side
	frames            chan []byte
	done              chan struct{}
	closeOnce         sync.Once
	errMu             sync.Mutex
	readErr           error
	maxFragmentSize   int
	maxOutputBuffers  int
	guaranteedBuffers int
	outstanding       int32
	nextFragID        uint16
	scratch           []byte
	packed            []byte
	packedOff         int
	sentReq           bool
	nakMount          bool
	pingsSent         uint64
	pingsRcvd         uint64
}

func (sc *socketChannel) String() string {
	return "socket " + sc.fc.RemoteAddr()
}

func newSocketChannel(fc frameConn, inputBuffers int) *socketChannel {
	if inputBuffers < 1 {
		inputBuffers = defaultNumInputBuffers
	}
	sc := &socketChannel{
		fc:                fc,
		frames:            make(chan []byte, inputBuffers),
		done:              make(chan struct{}),
		maxFragmentSize:   clampFragmentSize(DefaultMaxFragmentSize),
		maxOutputBuffers:  DefaultMaxOutputBuffers,
		guaranteedBuffers: DefaultMaxOutputBuffers,
	}
	gopool.Go(sc.readLoop)
	return sc
}

func clampFragmentSize(n int) int {
	if max := SocketFrameMaxSize - SocketFrameHeaderSize - socketFragHeaderExt; n > max {
		return max
	}
	if n < 2*socketFragHeaderExt {
		return 2 * socketFragHeaderExt
	}
	return n
}

func (sc *socketChannel) readLoop() {
	defer close(sc.frames)
	for {
		f, err := sc.fc.ReadFrame()
		if err != nil {
			sc.errMu.Lock()
			sc.readErr = err
			sc.errMu.Unlock()
			return
		}
		select {
		case sc.frames <- f:
		case <-sc.done:
			return
		}
	}
}

func (sc *socketChannel) err() error {
	sc.errMu.Lock()
	defer sc.errMu.Unlock()
	if sc.readErr == nil {
		return io.EOF
	}
	return sc.readErr
}

// nextFrame returns the next received frame, or nil if none is
// available and block is false.
func (sc *socketChannel) nextFrame(block bool) ([]byte, error) {
	if block {
		f, ok := <-sc.frames
		if !ok {
			return nil, sc.err()
		}
		return f, nil
	}
	select {
	case f, ok := <-sc.frames:
		if !ok {
			return nil, sc.err()
		}
		return f, nil
	default:
		return nil, nil
	}
}

func (sc *socketChannel) send(f []byte, flush bool) (err error) {
	if err = sc.fc.WriteFrame(f); err == nil && flush {
		err = sc.fc.Flush()
	}
	return
}

func (sc *socketChannel) close() (err error) {
	sc.closeOnce.Do(func() {
		close(sc.done)
		err = sc.fc.Close()
		if sc.server != nil {
			sc.server.addUsage(-atomic.SwapInt32(&sc.outstanding, 0))
		}
	})
	return
}

func (sc *socketChannel) addOutstanding(d int32) {
	atomic.AddInt32(&sc.outstanding, d)
	if sc.server != nil {
		sc.server.addUsage(d)
	}
}

// readPacked returns the next message of the packed frame being read.
func (sc *socketChannel) readPacked() (msg []byte, remaining int, err error) {
	p := sc.packed
	if sc.packedOff+2 > len(p) {
		sc.packed = nil
		err = newError(RetFailure, nil, "0002 Packed length at %d past frame end %d", sc.packedOff, len(p))
		return
	}
	n := int(binary.BigEndian.Uint16(p[sc.packedOff:]))
	start := sc.packedOff + 2
	if start+n > len(p) {
		sc.packed = nil
		err = newError(RetFailure, nil, "0002 Packed length %d overruns frame", n)
		return
	}
	msg = p[start : start+n]
	sc.packedOff = start + n
	remaining = len(p) - sc.packedOff
	if remaining == 0 {
		sc.packed = nil
	}
	return
}

// socketServer is the transportInfo of socket and WebSocket Servers.
type socketServer struct {
	conns       chan frameConn
	done        chan struct{}
	closeOnce   sync.Once
	closer      io.Closer
	bufUsage    int32
	peakUsage   int32
	errorsMu    sync.Mutex
	serveErrors map[string]int
}

func newSocketServer() *socketServer {
	return &socketServer{
		conns:       make(chan frameConn, defaultNumInputBuffers),
		done:        make(chan struct{}),
		serveErrors: make(map[string]int),
	}
}

func (ss *socketServer) addUsage(d int32) {
	n := atomic.AddInt32(&ss.bufUsage, d)
	for {
		p := atomic.LoadInt32(&ss.peakUsage)
		if n <= p || atomic.CompareAndSwapInt32(&ss.peakUsage, p, n) {
			return
		}
	}
}

func (ss *socketServer) recordError(err error) {
	ss.errorsMu.Lock()
	defer ss.errorsMu.Unlock()
	ss.serveErrors[err.Error()]++
}

// offer queues an incoming connection for Accept.
func (ss *socketServer) offer(fc frameConn) bool {
	select {
	case ss.conns <- fc:
		return true
	case <-ss.done:
		fc.Close()
		return false
	}
}

// serve accepts connections on l until the server is closed.
func (ss *socketServer) serve(l net.Listener) {
	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		rwc, err := l.Accept()
		if err != nil {
			select {
			case <-ss.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			ss.recordError(err)
			return
		}
		tempDelay = 0
		if !ss.offer(newStreamFrameConn(rwc)) {
			return
		}
	}
}

func (ss *socketServer) close() (err error) {
	ss.closeOnce.Do(func() {
		close(ss.done)
		if ss.closer != nil {
			err = ss.closer.Close()
		}
		for {
			select {
			case fc := <-ss.conns:
				fc.Close()
			default:
				return
			}
		}
	})
	return
}

// ServeErrors returns a copy of the accept errors seen by a socket or
// WebSocket Server.
func (srv *Server) ServeErrors() map[string]int {
	m := make(map[string]int)
	if ss, ok := srv.transportInfo.(*socketServer); ok {
		ss.errorsMu.Lock()
		defer ss.errorsMu.Unlock()
		for k, v := range ss.serveErrors {
			m[k] = v
		}
	}
	return m
}

// socketBackend implements the framed socket protocol over any frameConn.
type socketBackend struct {
	connType ConnectionType
	dial     func(opts *ConnectOptions) (frameConn, error)
	listen   func(ss *socketServer, opts *BindOptions) (net.Addr, error)
}

func newSocketBackend() *socketBackend {
	return &socketBackend{connType: ConnTypeSocket, dial: dialTCP, listen: listenTCP}
}

func dialTCP(opts *ConnectOptions) (frameConn, error) {
	addr := opts.Address
	if addr == "" {
		addr = "localhost"
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, opts.ServiceName), DefaultConnectTimeout)
	if err != nil {
		return nil, err
	}
	return newStreamFrameConn(conn), nil
}

func listenTCP(ss *socketServer, opts *BindOptions) (net.Addr, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(opts.InterfaceName, opts.ServiceName))
	if err != nil {
		return nil, err
	}
	ss.closer = ln
	kl := tcpKeepAliveListener{ln.(*net.TCPListener)}
	gopool.Go(func() { ss.serve(kl) })
	return ln.Addr(), nil
}

func socketInfo(ch *Channel) *socketChannel {
	sc, _ := ch.transportInfo.(*socketChannel)
	return sc
}

func (b *socketBackend) failure(ch *Channel, err error, format string, args ...interface{}) (RetCode, error) {
	ch.setState(StateClosed)
	return RetFailure, newError(RetFailure, err, format, args...)
}

func (b *socketBackend) Connect(ch *Channel, opts *ConnectOptions) error {
	if opts.ServiceName == "" {
		return newError(RetFailure, nil, "0013 %s connections require a service name", b.connType)
	}
	fc, err := b.dial(opts)
	if err != nil {
		return newError(RetFailure, err, "0002 Unable to connect to %s:%s", opts.Address, opts.ServiceName)
	}
	sc := newSocketChannel(fc, opts.NumInputBuffers)
	if opts.GuaranteedOutputBuffers > 0 {
		sc.guaranteedBuffers = opts.GuaranteedOutputBuffers
		if sc.maxOutputBuffers < sc.guaranteedBuffers {
			sc.maxOutputBuffers = sc.guaranteedBuffers
		}
	}
	if opts.SysSendBufSize > 0 {
		fc.SetBuffers(true, opts.SysSendBufSize)
	}
	if opts.SysRecvBufSize > 0 {
		fc.SetBuffers(false, opts.SysRecvBufSize)
	}
	ch.transportInfo = sc
	ch.setState(StateInitializing)
	if !opts.Blocking {
		return nil
	}
	for {
		ret, err := b.InitChannel(ch)
		if err != nil {
			sc.close()
			return err
		}
		if ret == RetSuccess {
			return nil
		}
	}
}

func (b *socketBackend) Bind(srv *Server, opts *BindOptions) error {
	if opts.ServiceName == "" {
		return newError(RetFailure, nil, "0013 %s servers require a service name", b.connType)
	}
	ss := newSocketServer()
	addr, err := b.listen(ss, opts)
	if err != nil {
		return newError(RetFailure, err, "0002 Unable to listen on %s:%s", opts.InterfaceName, opts.ServiceName)
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		srv.PortNumber = tcp.Port
	}
	srv.MaxFragmentSize = clampFragmentSize(srv.MaxFragmentSize)
	srv.transportInfo = ss
	return nil
}

func (b *socketBackend) Accept(srv *Server, ch *Channel, opts *AcceptOptions) error {
	ss := srv.transportInfo.(*socketServer)
	var fc frameConn
	if srv.Blocking {
		select {
		case fc = <-ss.conns:
		case <-ss.done:
			return newError(RetFailure, nil, "0002 Server is closed")
		}
	} else {
		select {
		case fc = <-ss.conns:
		case <-ss.done:
			return newError(RetFailure, nil, "0002 Server is closed")
		default:
			return newError(RetReadWouldBlock, nil, "0002 No connection pending")
		}
	}
	sc := newSocketChannel(fc, defaultNumInputBuffers)
	sc.server = ss
	sc.maxFragmentSize = srv.MaxFragmentSize
	sc.maxOutputBuffers = srv.MaxOutputBuffers
	sc.guaranteedBuffers = srv.GuaranteedOutputBuffers
	sc.nakMount = opts.NakMount
	ch.transportInfo = sc
	ch.setState(StateInitializing)
	return nil
}

func (b *socketBackend) InitChannel(ch *Channel) (RetCode, error) {
	sc := socketInfo(ch)
	if sc.server == nil {
		return b.initClient(ch, sc)
	}
	f, err := sc.nextFrame(ch.Blocking)
	if err != nil {
		return b.failure(ch, err, "0002 Connection closed during handshake")
	}
	if f == nil {
		return RetChanInitInProgress, nil
	}
	op, body, err := parseControlFrame(f)
	if err != nil {
		return b.failure(ch, err, "0002 Handshake failed")
	}
	if op != socketConnectReq {
		return b.failure(ch, nil, "0002 Expected a connect request, got op %d", op)
	}
	req, err := parseConnectReq(body)
	if err != nil {
		return b.failure(ch, err, "0002 Handshake failed")
	}
	var reject string
	switch {
	case sc.nakMount:
		reject = "Connection refused by server"
	case req.ProtocolType != ch.ProtocolType:
		reject = "Protocol type mismatch"
	}
	if reject != "" {
		sc.send(socketNakFrame(reject), true)
		return b.failure(ch, nil, "0002 %s", reject)
	}
	if req.PingTimeout > 0 && int(req.PingTimeout) < ch.PingTimeout {
		ch.PingTimeout = int(req.PingTimeout)
	}
	if req.ComponentInfo != "" {
		ch.componentInfo = req.ComponentInfo
	}
	ack := socketConnectAckMsg{
		MaxFragmentSize: uint16(sc.maxFragmentSize),
		PingTimeout:     uint16(ch.PingTimeout),
		MajorVersion:    ch.MajorVersion,
		MinorVersion:    ch.MinorVersion,
	}
	if err = sc.send(ack.frame(), true); err != nil {
		return b.failure(ch, err, "0002 Unable to send connect ack")
	}
	ch.setState(StateActive)
	return RetSuccess, nil
}

func (b *socketBackend) initClient(ch *Channel, sc *socketChannel) (RetCode, error) {
	if !sc.sentReq {
		req := socketConnectReqMsg{
			ProtocolType:  ch.ProtocolType,
			MajorVersion:  ch.MajorVersion,
			MinorVersion:  ch.MinorVersion,
			PingTimeout:   uint16(ch.PingTimeout),
			ComponentInfo: ch.componentInfo,
		}
		if err := sc.send(req.frame(), true); err != nil {
			return b.failure(ch, err, "0002 Unable to send connect request")
		}
		sc.sentReq = true
	}
	f, err := sc.nextFrame(ch.Blocking)
	if err != nil {
		return b.failure(ch, err, "0002 Connection closed during handshake")
	}
	if f == nil {
		return RetChanInitInProgress, nil
	}
	op, body, err := parseControlFrame(f)
	if err != nil {
		return b.failure(ch, err, "0002 Handshake failed")
	}
	switch op {
	case socketConnectAck:
		ack, err := parseConnectAck(body)
		if err != nil {
			return b.failure(ch, err, "0002 Handshake failed")
		}
		sc.maxFragmentSize = clampFragmentSize(int(ack.MaxFragmentSize))
		ch.PingTimeout = int(ack.PingTimeout)
		ch.MajorVersion = ack.MajorVersion
		ch.MinorVersion = ack.MinorVersion
		ch.setState(StateActive)
		return RetSuccess, nil
	case socketConnectNak:
		return b.failure(ch, nil, "0002 Connection rejected: %s", parseConnectNak(body))
	}
	return b.failure(ch, nil, "0002 Unexpected handshake op %d", op)
}

func (b *socketBackend) Read(ch *Channel, out *ReadOutArgs) ([]byte, RetCode, error) {
	sc := socketInfo(ch)
	if sc.packed != nil {
		msg, remaining, err := sc.readPacked()
		if err != nil {
			ret, err := b.failure(ch, err, "0002 Corrupt packed frame")
			return nil, ret, err
		}
		if remaining == 0 {
			remaining = len(sc.frames)
		}
		return msg, RetCode(remaining), nil
	}
	f, err := sc.nextFrame(ch.Blocking)
	if err != nil {
		ret, err := b.failure(ch, err, "0002 Connection closed")
		return nil, ret, err
	}
	if f == nil {
		return nil, RetReadWouldBlock, nil
	}
	hdr := SocketFrameHeader(f)
	out.BytesRead = len(f)
	out.UncompressedBytesRead = len(f)
	pending := RetCode(len(sc.frames))
	if hdr.IsPing() {
		sc.pingsRcvd++
		return nil, RetReadPing, nil
	}
	switch hdr.Flags() {
	case SocketFrameData:
		return f[SocketFrameHeaderSize:], pending, nil
	case SocketFramePacked:
		sc.packed = f[SocketFrameHeaderSize:]
		sc.packedOff = 0
		msg, remaining, err := sc.readPacked()
		if err != nil {
			ret, err := b.failure(ch, err, "0002 Corrupt packed frame")
			return nil, ret, err
		}
		if remaining == 0 {
			return msg, pending, nil
		}
		return msg, RetCode(remaining), nil
	case SocketFrameFragHeader:
		if len(f) < SocketFrameHeaderSize+socketFragHeaderExt {
			ret, err := b.failure(ch, ErrFrameSize{Size: len(f)}, "0002 Short fragment header")
			return nil, ret, err
		}
		total := int(binary.BigEndian.Uint32(f[SocketFrameHeaderSize:]))
		id := binary.BigEndian.Uint16(f[SocketFrameHeaderSize+4:])
		msg, err := ch.assembly.start(assemblyKey{fragID: id}, total, f[SocketFrameHeaderSize+socketFragHeaderExt:])
		if err != nil {
			ret, err := b.failure(ch, err, "0002 Reassembly failed")
			return nil, ret, err
		}
		return msg, pending, nil
	case SocketFrameFragment:
		if len(f) < SocketFrameHeaderSize+socketFragmentExt {
			ret, err := b.failure(ch, ErrFrameSize{Size: len(f)}, "0002 Short fragment")
			return nil, ret, err
		}
		id := binary.BigEndian.Uint16(f[SocketFrameHeaderSize:])
		msg, err := ch.assembly.add(assemblyKey{fragID: id}, 0, f[SocketFrameHeaderSize+socketFragmentExt:])
		if err != nil {
			ret, err := b.failure(ch, err, "0002 Reassembly failed")
			return nil, ret, err
		}
		return msg, pending, nil
	}
	ret, err := b.failure(ch, nil, "0002 Unexpected frame %v", hdr)
	return nil, ret, err
}

func (b *socketBackend) writeFragmented(sc *socketChannel, data []byte) (written int, err error) {
	sc.nextFragID++
	if sc.nextFragID == 0 {
		sc.nextFragID++
	}
	id := sc.nextFragID
	if len(sc.scratch) < sc.maxFragmentSize+SocketFrameHeaderSize {
		sc.scratch = make([]byte, sc.maxFragmentSize+SocketFrameHeaderSize)
	}
	f := sc.scratch
	first := true
	for first || len(data) > 0 {
		var off int
		fh := SocketFrameHeader(f)
		if first {
			fh.SetFlags(SocketFrameFragHeader)
			binary.BigEndian.PutUint32(f[SocketFrameHeaderSize:], uint32(len(data)))
			binary.BigEndian.PutUint16(f[SocketFrameHeaderSize+4:], id)
			off = SocketFrameHeaderSize + socketFragHeaderExt
			first = false
		} else {
			fh.SetFlags(SocketFrameFragment)
			binary.BigEndian.PutUint16(f[SocketFrameHeaderSize:], id)
			off = SocketFrameHeaderSize + socketFragmentExt
		}
		n := copy(f[off:SocketFrameHeaderSize+sc.maxFragmentSize], data)
		data = data[n:]
		fh.SetSize(off + n)
		if err = sc.fc.WriteFrame(f[:off+n]); err != nil {
			return
		}
		written += off + n
	}
	return
}

func (b *socketBackend) Write(ch *Channel, buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error) {
	sc := socketInfo(ch)
	kind, _ := buf.info.(socketBufKind)
	var written int
	var err error
	switch kind {
	case socketBufFragmented:
		written, err = b.writeFragmented(sc, buf.Data)
	case socketBufPacked:
		end := buf.packingOffset - 2
		if n := len(buf.Data); n != 0 {
			if n > buf.totalLength-(buf.packingOffset-socketPackBase) {
				return RetFailure, newError(RetFailure, nil, "0015 Buffer length %d exceeds the space left in the buffer", n)
			}
			copy(buf.mem[buf.packingOffset:], buf.Data)
			binary.BigEndian.PutUint16(buf.mem[buf.packingOffset-2:], uint16(n))
			end = buf.packingOffset + n
		} else if buf.packingOffset == socketPackBase {
			return RetFailure, newError(RetFailure, nil, "0009 Cannot write a 0 length buffer")
		}
		fh := SocketFrameHeader(buf.mem)
		fh.SetSize(end)
		fh.SetFlags(SocketFramePacked)
		written = end
		err = sc.fc.WriteFrame(buf.mem[:end])
	default:
		n := len(buf.Data)
		if n > buf.totalLength {
			return RetFailure, newError(RetFailure, nil, "0015 Buffer length %d exceeds the buffer size %d", n, buf.totalLength)
		}
		copy(buf.mem[SocketFrameHeaderSize:], buf.Data)
		fh := SocketFrameHeader(buf.mem)
		fh.SetSize(SocketFrameHeaderSize + n)
		fh.SetFlags(SocketFrameData)
		written = SocketFrameHeaderSize + n
		err = sc.fc.WriteFrame(buf.mem[:written])
	}
	if err == nil && (ch.Blocking || in.Priority == PriorityHigh || in.Flags&WriteInDirectSocketWrite != 0) {
		err = sc.fc.Flush()
	}
	if err != nil {
		return b.failure(ch, err, "0002 Write failed")
	}
	sc.addOutstanding(-1)
	out.BytesWritten = written
	out.UncompressedBytesWritten = written
	return RetCode(sc.fc.Buffered()), nil
}

func (b *socketBackend) Flush(ch *Channel) (RetCode, error) {
	sc := socketInfo(ch)
	if err := sc.fc.Flush(); err != nil {
		return b.failure(ch, err, "0002 Flush failed")
	}
	return RetCode(sc.fc.Buffered()), nil
}

func (b *socketBackend) GetBuffer(ch *Channel, size int, packed bool) (*Buffer, error) {
	sc := socketInfo(ch)
	if int(atomic.LoadInt32(&sc.outstanding)) >= sc.maxOutputBuffers {
		return nil, newError(RetBufferNoBuffers, nil, "0015 No output buffers available")
	}
	if packed && size > sc.maxFragmentSize-2 {
		return nil, newError(RetFailure, nil, "0015 Packed buffer size %d exceeds the max fragment size %d", size, sc.maxFragmentSize)
	}
	buf := ch.buffers.alloc()
	switch {
	case packed:
		buf.mem = make([]byte, socketPackBase+size+2)
		buf.Data = buf.mem[socketPackBase : socketPackBase+size]
		buf.packingOffset = socketPackBase
		buf.info = socketBufPacked
	case size > sc.maxFragmentSize:
		buf.mem = make([]byte, size)
		buf.Data = buf.mem
		buf.info = socketBufFragmented
	default:
		buf.mem = make([]byte, SocketFrameHeaderSize+size)
		buf.Data = buf.mem[SocketFrameHeaderSize:]
		buf.info = socketBufNormal
	}
	buf.owner = true
	buf.totalLength = size
	sc.addOutstanding(1)
	return buf, nil
}

func (b *socketBackend) ReleaseBuffer(ch *Channel, buf *Buffer) error {
	socketInfo(ch).addOutstanding(-1)
	return nil
}

func (b *socketBackend) PackBuffer(ch *Channel, buf *Buffer) error {
	n := len(buf.Data)
	if n > buf.totalLength-(buf.packingOffset-socketPackBase) {
		return newError(RetInvalidArgument, nil, "0015 Packed length %d exceeds the space left in the buffer", n)
	}
	copy(buf.mem[buf.packingOffset:], buf.Data)
	binary.BigEndian.PutUint16(buf.mem[buf.packingOffset-2:], uint16(n))
	buf.packingOffset += n + 2
	space := buf.totalLength - (buf.packingOffset - socketPackBase)
	if space < 0 {
		space = 0
	}
	buf.Data = buf.mem[buf.packingOffset : buf.packingOffset+space]
	return nil
}

func (b *socketBackend) Ping(ch *Channel) error {
	sc := socketInfo(ch)
	var f [SocketFrameHeaderSize]byte
	SocketFrameHeader(f[:]).SetSize(SocketFrameHeaderSize)
	if err := sc.send(f[:], true); err != nil {
		_, err = b.failure(ch, err, "0002 Ping failed")
		return err
	}
	sc.pingsSent++
	return nil
}

func ioctlInt(code IoctlCode, value interface{}) (int, error) {
	n, ok := value.(int)
	if !ok || n < 0 {
		return 0, newError(RetInvalidArgument, nil, "0017 Invalid value %v for IOCtl Code %d", value, int(code))
	}
	return n, nil
}

func (b *socketBackend) Ioctl(ch *Channel, code IoctlCode, value interface{}) error {
	sc := socketInfo(ch)
	switch code {
	case IoctlMaxNumBuffers:
		n, err := ioctlInt(code, value)
		if err != nil {
			return err
		}
		if n < sc.guaranteedBuffers {
			n = sc.guaranteedBuffers
		}
		sc.maxOutputBuffers = n
		return nil
	case IoctlNumGuaranteedBuffers:
		n, err := ioctlInt(code, value)
		if err != nil {
			return err
		}
		sc.guaranteedBuffers = n
		if sc.maxOutputBuffers < n {
			sc.maxOutputBuffers = n
		}
		return nil
	case IoctlSystemWriteBuffers, IoctlSystemReadBuffers:
		n, err := ioctlInt(code, value)
		if err != nil {
			return err
		}
		if err = sc.fc.SetBuffers(code == IoctlSystemWriteBuffers, n); err != nil {
			return newError(RetFailure, err, "0002 Unable to set socket buffer size")
		}
		return nil
	case IoctlHighWaterMark, IoctlPriorityFlushOrder, IoctlCompressionThreshold, IoctlDebugFlags:
		return nil
	}
	return newError(RetFailure, nil, "0017 Invalid IOCtl Code %d", int(code))
}

func (b *socketBackend) Info(ch *Channel) (ChannelInfo, error) {
	sc := socketInfo(ch)
	return ChannelInfo{
		MaxFragmentSize:         sc.maxFragmentSize,
		MaxOutputBuffers:        sc.maxOutputBuffers,
		GuaranteedOutputBuffers: sc.guaranteedBuffers,
		NumInputBuffers:         cap(sc.frames),
		PingTimeout:             ch.PingTimeout,
		ComponentInfo:           ch.componentInfo,
	}, nil
}

func (b *socketBackend) BufferUsage(ch *Channel) (int, error) {
	return int(atomic.LoadInt32(&socketInfo(ch).outstanding)), nil
}

func (b *socketBackend) CloseChannel(ch *Channel) error {
	if sc := socketInfo(ch); sc != nil {
		return sc.close()
	}
	return nil
}

func (b *socketBackend) ServerIoctl(srv *Server, code IoctlCode, value interface{}) error {
	ss := srv.transportInfo.(*socketServer)
	switch code {
	case IoctlServerNumPoolBuffers:
		_, err := ioctlInt(code, value)
		return err
	case IoctlServerPeakBufReset:
		atomic.StoreInt32(&ss.peakUsage, atomic.LoadInt32(&ss.bufUsage))
		return nil
	}
	return newError(RetFailure, nil, "0017 Invalid IOCtl Code %d", int(code))
}

func (b *socketBackend) ServerInfo(srv *Server) (ServerInfo, error) {
	ss := srv.transportInfo.(*socketServer)
	return ServerInfo{
		CurrentBufferUsage: int(atomic.LoadInt32(&ss.bufUsage)),
		PeakBufferUsage:    int(atomic.LoadInt32(&ss.peakUsage)),
	}, nil
}

func (b *socketBackend) ServerBufferUsage(srv *Server) (int, error) {
	ss := srv.transportInfo.(*socketServer)
	return int(atomic.LoadInt32(&ss.bufUsage)), nil
}

func (b *socketBackend) CloseServer(srv *Server) error {
	if ss, ok := srv.transportInfo.(*socketServer); ok {
		return ss.close()
	}
	return nil
}
