package rssl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const leaktestEnabled = true

// fakeBackend records what the public API hands it.
type fakeBackend struct {
	unsupportedBackend
	reads         [][]byte
	written       [][]byte
	callAgain     bool
	released      int
	packed        int
	pings         int
	closed        int
	serversClosed int
	ioctls        []IoctlCode
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{unsupportedBackend: unsupportedBackend{connType: ConnTypeExtLineSocket}}
}

func (fb *fakeBackend) Connect(ch *Channel, opts *ConnectOptions) error {
	if opts.Blocking {
		ch.setState(StateActive)
	} else {
		ch.setState(StateInitializing)
	}
	return nil
}

func (fb *fakeBackend) Bind(srv *Server, opts *BindOptions) error {
	srv.PortNumber = 1234
	return nil
}

func (fb *fakeBackend) Accept(srv *Server, ch *Channel, opts *AcceptOptions) error {
	ch.setState(StateInitializing)
	return nil
}

func (fb *fakeBackend) InitChannel(ch *Channel) (RetCode, error) {
	ch.setState(StateActive)
	return RetSuccess, nil
}

func (fb *fakeBackend) Read(ch *Channel, out *ReadOutArgs) ([]byte, RetCode, error) {
	if len(fb.reads) == 0 {
		return nil, RetReadWouldBlock, nil
	}
	data := fb.reads[0]
	fb.reads = fb.reads[1:]
	out.BytesRead = len(data)
	return data, RetCode(len(fb.reads)), nil
}

func (fb *fakeBackend) Write(ch *Channel, buf *Buffer, in *WriteInArgs, out *WriteOutArgs) (RetCode, error) {
	if fb.callAgain {
		return RetWriteCallAgain, nil
	}
	fb.written = append(fb.written, append([]byte(nil), buf.Data...))
	out.BytesWritten = len(buf.Data)
	return RetSuccess, nil
}

func (fb *fakeBackend) Flush(ch *Channel) (RetCode, error) { return RetSuccess, nil }

func (fb *fakeBackend) GetBuffer(ch *Channel, size int, packed bool) (*Buffer, error) {
	buf := ch.buffers.alloc()
	buf.mem = make([]byte, size+4)
	buf.Data = buf.mem[:size]
	if packed {
		buf.packingOffset = 2
		buf.Data = buf.mem[2 : 2+size]
	}
	buf.owner = true
	buf.totalLength = size
	return buf, nil
}

func (fb *fakeBackend) ReleaseBuffer(ch *Channel, buf *Buffer) error {
	fb.released++
	return nil
}

func (fb *fakeBackend) PackBuffer(ch *Channel, buf *Buffer) error {
	fb.packed++
	buf.packingOffset += len(buf.Data) + 2
	buf.Data = buf.Data[:0]
	return nil
}

func (fb *fakeBackend) Ping(ch *Channel) error {
	fb.pings++
	return nil
}

func (fb *fakeBackend) Ioctl(ch *Channel, code IoctlCode, value interface{}) error {
	fb.ioctls = append(fb.ioctls, code)
	return nil
}

func (fb *fakeBackend) Info(ch *Channel) (ChannelInfo, error) {
	return ChannelInfo{MaxFragmentSize: 100, PingTimeout: ch.PingTimeout}, nil
}

func (fb *fakeBackend) BufferUsage(ch *Channel) (int, error) {
	return ch.buffers.activeCount(), nil
}

func (fb *fakeBackend) CloseChannel(ch *Channel) error {
	fb.closed++
	return nil
}

func (fb *fakeBackend) CloseServer(srv *Server) error {
	fb.serversClosed++
	return nil
}

// newFakeSession returns an initialized Session with a fakeBackend
// registered as ConnTypeExtLineSocket.
func newFakeSession(t *testing.T, locking LockingType) (*Session, *fakeBackend) {
	s := NewSession()
	assert.NoError(t, s.Initialize(InitOptions{Locking: locking}))
	fb := newFakeBackend()
	assert.NoError(t, s.Registry().Register(ConnTypeExtLineSocket, fb))
	return s, fb
}

func connectFake(t *testing.T, s *Session) *Channel {
	ch, err := s.Connect(&ConnectOptions{ConnectionType: ConnTypeExtLineSocket, Blocking: true})
	assert.NoError(t, err)
	assert.NotNil(t, ch)
	return ch
}
