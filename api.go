package rssl

import (
	"sync/atomic"
)

// Connect opens a client Channel using DefaultSession.
func Connect(opts *ConnectOptions) (*Channel, error) {
	return DefaultSession.Connect(opts)
}

// Bind opens a Server using DefaultSession.
func Bind(opts *BindOptions) (*Server, error) {
	return DefaultSession.Bind(opts)
}

// Connect opens a client Channel of the connection type given in opts.
// Non-blocking Channels start out Initializing and must be driven with
// InitChannel until they become Active.
func (s *Session) Connect(opts *ConnectOptions) (*Channel, error) {
	if !s.Initialized() {
		return nil, errNotInitialized()
	}
	if opts == nil {
		return nil, errNullArgument("connect options")
	}
	backend, err := s.registry.Lookup(opts.ConnectionType)
	if err != nil {
		return nil, err
	}
	ch, err := s.newChannel()
	if err != nil {
		return nil, err
	}
	ch.ConnectionType = opts.ConnectionType
	ch.ProtocolType = opts.ProtocolType
	ch.MajorVersion = opts.MajorVersion
	ch.MinorVersion = opts.MinorVersion
	if opts.PingTimeout > 0 {
		ch.PingTimeout = opts.PingTimeout
	}
	ch.Blocking = opts.Blocking
	ch.UserSpec = opts.UserSpec
	ch.componentInfo = opts.ComponentVersion
	if opts.GuaranteedOutputBuffers > 0 {
		ch.buffers = newBufferPool(opts.GuaranteedOutputBuffers, newLocker(s.locking.channelLocking()))
	}
	ch.backend = backend
	if err = backend.Connect(ch, opts); err != nil {
		ch.setState(StateClosed)
		s.releaseChannel(ch)
		return nil, err
	}
	if ch.netLog {
		ch.logf("CONNECT %v", ch.transportInfo)
	}
	return ch, nil
}

// Bind opens a Server of the connection type given in opts.
func (s *Session) Bind(opts *BindOptions) (*Server, error) {
	if !s.Initialized() {
		return nil, errNotInitialized()
	}
	if opts == nil {
		return nil, errNullArgument("bind options")
	}
	backend, err := s.registry.Lookup(opts.ConnectionType)
	if err != nil {
		return nil, err
	}
	srv, err := s.newServer()
	if err != nil {
		return nil, err
	}
	srv.ConnectionType = opts.ConnectionType
	srv.ProtocolType = opts.ProtocolType
	srv.MajorVersion = opts.MajorVersion
	srv.MinorVersion = opts.MinorVersion
	srv.Blocking = opts.ServerBlocking
	srv.ChannelsBlocking = opts.ChannelsBlocking
	if opts.PingTimeout > 0 {
		srv.PingTimeout = opts.PingTimeout
	}
	if opts.MaxFragmentSize > 0 {
		srv.MaxFragmentSize = opts.MaxFragmentSize
	}
	if opts.MaxOutputBuffers > 0 {
		srv.MaxOutputBuffers = opts.MaxOutputBuffers
	}
	if opts.GuaranteedOutputBuffers > 0 {
		srv.GuaranteedOutputBuffers = opts.GuaranteedOutputBuffers
	}
	if srv.GuaranteedOutputBuffers > srv.MaxOutputBuffers {
		srv.GuaranteedOutputBuffers = srv.MaxOutputBuffers
	}
	srv.UserSpec = opts.UserSpec
	srv.componentInfo = opts.ComponentVersion
	srv.backend = backend
	if err = backend.Bind(srv, opts); err != nil {
		srv.setState(StateClosed)
		s.releaseServer(srv)
		return nil, err
	}
	srv.setState(StateActive)
	return srv, nil
}

// Accept returns the next incoming Channel. The Channel is Initializing
// and must be driven with InitChannel until it becomes Active.
func (srv *Server) Accept(opts *AcceptOptions) (*Channel, error) {
	if err := srv.check(); err != nil {
		return nil, err
	}
	if srv.State() != StateActive {
		return nil, newError(RetFailure, nil, "0007 Server is not in the active state")
	}
	if opts == nil {
		opts = &AcceptOptions{}
	}
	ch, err := srv.session.newChannel()
	if err != nil {
		return nil, err
	}
	ch.ConnectionType = srv.ConnectionType
	ch.ProtocolType = srv.ProtocolType
	ch.MajorVersion = srv.MajorVersion
	ch.MinorVersion = srv.MinorVersion
	ch.PingTimeout = srv.PingTimeout
	ch.Blocking = srv.ChannelsBlocking
	ch.UserSpec = opts.UserSpec
	ch.componentInfo = srv.componentInfo
	ch.buffers = newBufferPool(srv.GuaranteedOutputBuffers, newLocker(srv.session.locking.channelLocking()))
	ch.backend = srv.backend
	ch.netLog = srv.netLog
	if err := srv.backend.Accept(srv, ch, opts); err != nil {
		ch.setState(StateClosed)
		srv.session.releaseChannel(ch)
		return nil, err
	}
	srv.trackChannel(ch)
	if ch.netLog {
		ch.logf("ACCEPT %v", srv)
	}
	return ch, nil
}

// check validates the Channel handle and the Session.
func (ch *Channel) check() error {
	if ch == nil {
		return errNullArgument("channel")
	}
	if ch.session == nil || !ch.session.Initialized() {
		return errNotInitialized()
	}
	if ch.backend == nil {
		return newError(RetFailure, nil, "0002 Channel is closed")
	}
	return nil
}

func (ch *Channel) checkActive(op string) error {
	if err := ch.check(); err != nil {
		return err
	}
	if ch.State() != StateActive {
		return newError(RetFailure, nil, "0007 Only channels in the active state can %s", op)
	}
	return nil
}

func (srv *Server) check() error {
	if srv == nil {
		return errNullArgument("server")
	}
	if srv.session == nil || !srv.session.Initialized() {
		return errNotInitialized()
	}
	if srv.backend == nil {
		return newError(RetFailure, nil, "0002 Server is closed")
	}
	return nil
}

// InitChannel advances connection setup. It returns RetSuccess once the
// Channel is Active and RetChanInitInProgress while setup continues.
func (ch *Channel) InitChannel() (RetCode, error) {
	if err := ch.check(); err != nil {
		return Code(err), err
	}
	switch ch.State() {
	case StateActive:
		return RetSuccess, nil
	case StateInitializing:
	default:
		return RetFailure, newError(RetFailure, nil, "0007 Channel is not in the initializing state")
	}
	ret, err := ch.backend.InitChannel(ch)
	if err != nil {
		return Code(err), err
	}
	return ret, nil
}

// Read returns the next message. See ReadEx.
func (ch *Channel) Read() ([]byte, RetCode, error) {
	var out ReadOutArgs
	return ch.ReadEx(&out)
}

// ReadEx returns the next message and fills in out.
//
// The returned slice is valid until the next call to Read. The RetCode is
// positive when more data is pending, RetReadWouldBlock when nothing was
// available, RetReadPing when a ping arrived and RetReadInProgress when
// another goroutine is reading the Channel. Errors are returned only for
// failures.
func (ch *Channel) ReadEx(out *ReadOutArgs) ([]byte, RetCode, error) {
	if err := ch.checkActive("read"); err != nil {
		return nil, Code(err), err
	}
	if out == nil {
		out = &ReadOutArgs{}
	}
	*out = ReadOutArgs{}
	data, ret, err := ch.backend.Read(ch, out)
	if err != nil {
		if ch.tracer != nil && ch.State() == StateClosed {
			ch.tracer.channelClosed(ch)
		}
		return nil, Code(err), err
	}
	if ret == RetReadPing {
		if ch.tracer != nil {
			ch.tracer.ping(ch, true)
		}
		return nil, ret, nil
	}
	if data != nil {
		atomic.AddInt64(&ch.bytesRead, int64(len(data)))
		ch.session.debug.dumpIn(ch, data)
		if ch.tracer != nil {
			ch.tracer.message(ch, traceIncoming, data)
			ch.tracer.end(ch, RetSuccess)
		}
	}
	return data, ret, nil
}

// Write sends buf, consuming it unless RetWriteCallAgain or an error is
// returned. A positive RetCode is the number of bytes still queued and
// needing Flush.
func (ch *Channel) Write(buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error) {
	if err := ch.checkActive("write"); err != nil {
		return Code(err), err
	}
	if buf == nil {
		return RetFailure, errNullArgument("buffer")
	}
	if len(buf.Data) == 0 && buf.packingOffset == 0 {
		return RetFailure, newError(RetFailure, nil, "0009 Buffer of length zero cannot be written")
	}
	if !buf.valid() {
		return RetBufferTooSmall, newError(RetBufferTooSmall, nil, "0008 Buffer is invalid or was already released")
	}
	if buf.channel != ch {
		return RetFailure, newError(RetFailure, nil, "0018 Buffer does not belong to this channel")
	}
	if in == nil {
		in = &WriteInArgs{Priority: PriorityMedium}
	}
	if out == nil {
		out = &WriteOutArgs{}
	}
	if in.Priority < PriorityHigh || in.Priority > PriorityLow {
		in.Priority = PriorityMedium
	}
	buf.priority = in.Priority
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.session.debug.dumpOut(ch, buf.Data)
	if ch.tracer != nil {
		ch.tracer.message(ch, traceOutgoing, buf.Data)
	}
	ret, err := ch.backend.Write(ch, buf, in, out)
	if ch.tracer != nil {
		ch.tracer.writeResult(ch, ret, err)
	}
	if err != nil {
		return Code(err), err
	}
	if ret == RetWriteCallAgain {
		return ret, nil
	}
	atomic.AddInt64(&ch.bytesWritten, int64(out.BytesWritten))
	ch.buffers.retire(buf)
	return ret, nil
}

// Flush writes any queued output.
func (ch *Channel) Flush() (RetCode, error) {
	if err := ch.checkActive("flush"); err != nil {
		return Code(err), err
	}
	ch.mu.Lock()
	ret, err := ch.backend.Flush(ch)
	ch.mu.Unlock()
	if err != nil {
		return Code(err), err
	}
	return ret, nil
}

// GetBuffer returns a Buffer with room for size bytes. A packed Buffer
// can carry several messages, see PackBuffer.
func (ch *Channel) GetBuffer(size int, packed bool) (*Buffer, error) {
	if err := ch.checkActive("get buffers"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, newError(RetFailure, nil, "0010 Invalid buffer size %d", size)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	buf, err := ch.backend.GetBuffer(ch, size, packed)
	if err != nil {
		return nil, err
	}
	buf.channel = ch
	buf.integrity = BufferIntegrity
	ch.buffers.activate(buf)
	return buf, nil
}

// ReleaseBuffer returns an unwritten Buffer to its Channel.
func ReleaseBuffer(buf *Buffer) error {
	if buf == nil {
		return errNullArgument("buffer")
	}
	if !buf.valid() {
		return newError(RetFailure, nil, "0011 Buffer is invalid or was already released")
	}
	ch := buf.channel
	if err := ch.check(); err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.buffers.isActive(buf) {
		return newError(RetFailure, nil, "0011 Buffer is not active on %s", ch)
	}
	if buf.owner {
		buf.mem = nil
	}
	err := ch.backend.ReleaseBuffer(ch, buf)
	ch.buffers.retire(buf)
	return err
}

// PackBuffer seals the message written into buf and re-points buf.Data
// at the space remaining. Data is empty when the Buffer is full.
func (ch *Channel) PackBuffer(buf *Buffer) (*Buffer, error) {
	if err := ch.checkActive("pack buffers"); err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, errNullArgument("buffer")
	}
	if buf.channel != ch {
		return nil, newError(RetFailure, nil, "0017 Buffer does not belong to this channel")
	}
	if !buf.valid() {
		return nil, newError(RetBufferTooSmall, nil, "0008 Buffer is invalid or was already released")
	}
	if buf.packingOffset == 0 {
		return nil, newError(RetFailure, nil, "0009 Not a packable buffer")
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.tracer != nil {
		ch.tracer.message(ch, tracePack, buf.Data)
	}
	if err := ch.backend.PackBuffer(ch, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Ping sends a heartbeat.
func (ch *Channel) Ping() error {
	if err := ch.checkActive("ping"); err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.tracer != nil {
		ch.tracer.ping(ch, false)
	}
	return ch.backend.Ping(ch)
}

// Ioctl changes a Channel option. IoctlTrace takes a *TraceOptions and
// IoctlDebugFlags a DebugFlag; other values are transport specific.
func (ch *Channel) Ioctl(code IoctlCode, value interface{}) error {
	if err := ch.check(); err != nil {
		return err
	}
	if st := ch.State(); st != StateActive && st != StateInitializing {
		return newError(RetFailure, nil, "0007 Channel is not in the active or initializing state")
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch code {
	case IoctlTrace:
		opts, ok := value.(*TraceOptions)
		if !ok || opts == nil {
			return errNullArgument("trace options")
		}
		return ch.configureTrace(opts)
	case IoctlDebugFlags:
		flags, ok := value.(DebugFlag)
		if !ok {
			return newError(RetInvalidArgument, nil, "0017 Invalid debug flags %v", value)
		}
		ch.debugFlags = flags
	}
	return ch.backend.Ioctl(ch, code, value)
}

// Info returns information about the Channel.
func (ch *Channel) Info() (ChannelInfo, error) {
	if err := ch.checkActive("get channel info"); err != nil {
		return ChannelInfo{}, err
	}
	info, err := ch.backend.Info(ch)
	if err == nil && info.ComponentInfo == "" {
		info.ComponentInfo = ch.componentInfo
	}
	return info, err
}

// BufferUsage returns the number of output buffers in use.
func (ch *Channel) BufferUsage() (int, error) {
	if err := ch.checkActive("get buffer usage"); err != nil {
		return 0, err
	}
	return ch.backend.BufferUsage(ch)
}

// Close closes the Channel and returns it to the pool.
// Outstanding Buffers are released.
func (ch *Channel) Close() error {
	if err := ch.check(); err != nil {
		return err
	}
	if !ch.session.isActiveChannel(ch) {
		return newError(RetFailure, nil, "0002 Channel is not open")
	}
	ch.buffers.drain(func(b *Buffer) {
		_ = ch.backend.ReleaseBuffer(ch, b)
	})
	ch.shutdown()
	return nil
}

// Ioctl changes a Server option.
func (srv *Server) Ioctl(code IoctlCode, value interface{}) error {
	if err := srv.check(); err != nil {
		return err
	}
	return srv.backend.ServerIoctl(srv, code, value)
}

// Info returns buffer usage figures for the Server.
func (srv *Server) Info() (ServerInfo, error) {
	if err := srv.check(); err != nil {
		return ServerInfo{}, err
	}
	return srv.backend.ServerInfo(srv)
}

// BufferUsage returns the number of shared pool buffers in use.
func (srv *Server) BufferUsage() (int, error) {
	if err := srv.check(); err != nil {
		return 0, err
	}
	return srv.backend.ServerBufferUsage(srv)
}

// Close stops listening and returns the Server to the pool.
func (srv *Server) Close() error {
	if err := srv.check(); err != nil {
		return err
	}
	if !srv.session.isActiveServer(srv) {
		return newError(RetFailure, nil, "0002 Server is not open")
	}
	srv.shutdown()
	return nil
}
