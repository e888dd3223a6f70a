package rssl

// TransportBackend is implemented by each connection type.
// The Channel and Server passed in have been validated by the caller;
// backends keep their own state in Channel.transportInfo and
// Server.transportInfo.
type TransportBackend interface {
	// Connect opens a client connection for ch.
	Connect(ch *Channel, opts *ConnectOptions) error
	// Bind opens a listening endpoint for srv.
	Bind(srv *Server, opts *BindOptions) error
	// Accept fills in ch with the next connection on srv.
	Accept(srv *Server, ch *Channel, opts *AcceptOptions) error
	// InitChannel advances connection setup, returning RetChanInitInProgress until done.
	InitChannel(ch *Channel) (RetCode, error)
	// Read returns the next message. A positive RetCode tells more data is pending.
	Read(ch *Channel, out *ReadOutArgs) ([]byte, RetCode, error)
	// Write sends or queues buf. A positive RetCode is the number of bytes still queued.
	Write(ch *Channel, buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error)
	Flush(ch *Channel) (RetCode, error)
	// GetBuffer returns a handle from ch's pool with Data sized for the request.
	GetBuffer(ch *Channel, size int, packed bool) (*Buffer, error)
	ReleaseBuffer(ch *Channel, buf *Buffer) error
	// PackBuffer seals the message in buf and re-points Data at the remaining space.
	PackBuffer(ch *Channel, buf *Buffer) error
	Ping(ch *Channel) error
	Ioctl(ch *Channel, code IoctlCode, value interface{}) error
	Info(ch *Channel) (ChannelInfo, error)
	BufferUsage(ch *Channel) (int, error)
	CloseChannel(ch *Channel) error
	ServerIoctl(srv *Server, code IoctlCode, value interface{}) error
	ServerInfo(srv *Server) (ServerInfo, error)
	ServerBufferUsage(srv *Server) (int, error)
	CloseServer(srv *Server) error
}

// unsupportedBackend fills registry slots for connection types
// that are recognized but not provided.
type unsupportedBackend struct {
	connType ConnectionType
}

func (u unsupportedBackend) fail(op string) error {
	return newError(RetFailure, nil, "0006 %s not supported for connection type %s", op, u.connType)
}

func (u unsupportedBackend) Connect(*Channel, *ConnectOptions) error { return u.fail("Connect") }
func (u unsupportedBackend) Bind(*Server, *BindOptions) error        { return u.fail("Bind") }
func (u unsupportedBackend) Accept(*Server, *Channel, *AcceptOptions) error {
	return u.fail("Accept")
}
func (u unsupportedBackend) InitChannel(*Channel) (RetCode, error) {
	return RetFailure, u.fail("InitChannel")
}
func (u unsupportedBackend) Read(*Channel, *ReadOutArgs) ([]byte, RetCode, error) {
	return nil, RetFailure, u.fail("Read")
}
func (u unsupportedBackend) Write(*Channel, *Buffer, *WriteInArgs, *WriteOutArgs) (RetCode, error) {
	return RetFailure, u.fail("Write")
}
func (u unsupportedBackend) Flush(*Channel) (RetCode, error) { return RetFailure, u.fail("Flush") }
func (u unsupportedBackend) GetBuffer(*Channel, int, bool) (*Buffer, error) {
	return nil, u.fail("GetBuffer")
}
func (u unsupportedBackend) ReleaseBuffer(*Channel, *Buffer) error { return u.fail("ReleaseBuffer") }
func (u unsupportedBackend) PackBuffer(*Channel, *Buffer) error    { return u.fail("PackBuffer") }
func (u unsupportedBackend) Ping(*Channel) error                   { return u.fail("Ping") }
func (u unsupportedBackend) Ioctl(*Channel, IoctlCode, interface{}) error {
	return u.fail("Ioctl")
}
func (u unsupportedBackend) Info(*Channel) (ChannelInfo, error) {
	return ChannelInfo{}, u.fail("GetChannelInfo")
}
func (u unsupportedBackend) BufferUsage(*Channel) (int, error) { return 0, u.fail("BufferUsage") }
func (u unsupportedBackend) CloseChannel(*Channel) error      { return nil }
func (u unsupportedBackend) ServerIoctl(*Server, IoctlCode, interface{}) error {
	return u.fail("ServerIoctl")
}
func (u unsupportedBackend) ServerInfo(*Server) (ServerInfo, error) {
	return ServerInfo{}, u.fail("GetServerInfo")
}
func (u unsupportedBackend) ServerBufferUsage(*Server) (int, error) {
	return 0, u.fail("ServerBufferUsage")
}
func (u unsupportedBackend) CloseServer(*Server) error { return nil }
