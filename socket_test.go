// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rssl

import (
	"bufio"
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

// socketPair is a connected client and server Channel over loopback.
type socketPair struct {
	t      *testing.T
	s      *Session
	srv    *Server
	client *Channel
	server *Channel
}

func bindLoopback(t *testing.T, s *Session, ct ConnectionType, maxFrag int, blocking bool) *Server {
	srv, err := s.Bind(&BindOptions{
		ConnectionType:   ct,
		InterfaceName:    "127.0.0.1",
		ServiceName:      "0",
		MaxFragmentSize:  maxFrag,
		ProtocolType:     ProtocolRWF,
		MajorVersion:     14,
		MinorVersion:     1,
		PingTimeout:      60,
		ServerBlocking:   blocking,
		ChannelsBlocking: blocking,
	})
	assert.NoError(t, err)
	assert.NotZero(t, srv.PortNumber)
	return srv
}

func loopbackConnectOptions(ct ConnectionType, srv *Server) *ConnectOptions {
	return &ConnectOptions{
		ConnectionType:   ct,
		Address:          "127.0.0.1",
		ServiceName:      strconv.Itoa(srv.PortNumber),
		Blocking:         true,
		ProtocolType:     ProtocolRWF,
		MajorVersion:     14,
		PingTimeout:      30,
		ComponentVersion: "rssl test",
	}
}

// acceptAsync accepts and initializes one server Channel in the background.
func acceptAsync(srv *Server, opts *AcceptOptions) <-chan interface{} {
	result := make(chan interface{}, 1)
	go func() {
		ch, err := srv.Accept(opts)
		if err != nil {
			result <- err
			return
		}
		if _, err = ch.InitChannel(); err != nil {
			result <- err
			return
		}
		result <- ch
	}()
	return result
}

func newSocketPair(t *testing.T, ct ConnectionType, maxFrag int) *socketPair {
	sp := &socketPair{t: t, s: NewSession()}
	assert.NoError(t, sp.s.Initialize(InitOptions{Locking: LockGlobalAndChannel}))
	sp.srv = bindLoopback(t, sp.s, ct, maxFrag, true)
	result := acceptAsync(sp.srv, nil)
	client, err := sp.s.Connect(loopbackConnectOptions(ct, sp.srv))
	assert.NoError(t, err)
	sp.client = client
	select {
	case r := <-result:
		ch, ok := r.(*Channel)
		if !ok {
			t.Fatal(r)
		}
		sp.server = ch
	case <-time.After(5 * time.Second):
		t.Fatal("accept timed out")
	}
	assert.Equal(t, StateActive, sp.client.State())
	assert.Equal(t, StateActive, sp.server.State())
	return sp
}

func (sp *socketPair) Close() {
	assert.NoError(sp.t, sp.s.Uninitialize())
}

func writeMsg(t *testing.T, ch *Channel, data []byte) {
	buf, err := ch.GetBuffer(len(data), false)
	assert.NoError(t, err)
	copy(buf.Data, data)
	ret, err := ch.Write(buf, nil, nil)
	assert.NoError(t, err)
	if ret > 0 {
		_, err = ch.Flush()
		assert.NoError(t, err)
	}
}

// readMsg reads until a whole message arrives, skipping fragments.
func readMsg(t *testing.T, ch *Channel) ([]byte, RetCode) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, ret, err := ch.Read()
		if !assert.NoError(t, err) {
			return nil, ret
		}
		if data != nil || ret == RetReadPing {
			return data, ret
		}
		if ret == RetReadWouldBlock {
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("read timed out")
	return nil, RetFailure
}

func testSocketHandshake(t *testing.T, ct ConnectionType) {
	sp := newSocketPair(t, ct, 0)
	defer sp.Close()

	info, err := sp.client.Info()
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxFragmentSize, info.MaxFragmentSize)
	assert.Equal(t, 30, info.PingTimeout)
	assert.Equal(t, 30, sp.server.PingTimeout)
	assert.Equal(t, uint8(1), sp.client.MinorVersion)

	info, err = sp.server.Info()
	assert.NoError(t, err)
	assert.Equal(t, "rssl test", info.ComponentInfo)
}

func testSocketMessages(t *testing.T, ct ConnectionType) {
	sp := newSocketPair(t, ct, 100)
	defer sp.Close()

	writeMsg(t, sp.client, []byte("hello"))
	data, _ := readMsg(t, sp.server)
	assert.Equal(t, "hello", string(data))

	big := bytes.Repeat([]byte("0123456789abcdef"), 64)
	writeMsg(t, sp.server, big)
	data, _ = readMsg(t, sp.client)
	assert.Equal(t, big, data)

	buf, err := sp.client.GetBuffer(90, true)
	assert.NoError(t, err)
	for _, s := range []string{"one", "two"} {
		buf.Data = buf.Data[:copy(buf.Data, s)]
		buf, err = sp.client.PackBuffer(buf)
		assert.NoError(t, err)
	}
	buf.Data = buf.Data[:copy(buf.Data, "three")]
	_, err = sp.client.Write(buf, &WriteInArgs{Priority: PriorityHigh}, nil)
	assert.NoError(t, err)

	data, ret := readMsg(t, sp.server)
	assert.Equal(t, "one", string(data))
	assert.True(t, ret > 0)
	data, _ = readMsg(t, sp.server)
	assert.Equal(t, "two", string(data))
	data, ret = readMsg(t, sp.server)
	assert.Equal(t, "three", string(data))
	assert.Equal(t, RetSuccess, ret)

	_, err = sp.client.GetBuffer(99, true)
	assert.Error(t, err)
	assert.True(t, sp.client.BytesWritten() > 0)
	assert.True(t, sp.server.BytesRead() > 0)
}

func testSocketPing(t *testing.T, ct ConnectionType) {
	sp := newSocketPair(t, ct, 0)
	defer sp.Close()
	assert.NoError(t, sp.client.Ping())
	data, ret := readMsg(t, sp.server)
	assert.Nil(t, data)
	assert.Equal(t, RetReadPing, ret)
	assert.Equal(t, uint64(1), socketInfo(sp.server).pingsRcvd)
}

func testSocketPeerClose(t *testing.T, ct ConnectionType) {
	sp := newSocketPair(t, ct, 0)
	defer sp.Close()
	assert.NoError(t, sp.client.Close())
	_, _, err := sp.server.Read()
	assert.Error(t, err)
	assert.Equal(t, StateClosed, sp.server.State())
}

func testSocketNak(t *testing.T, ct ConnectionType) {
	s := NewSession()
	assert.NoError(t, s.Initialize(InitOptions{Locking: LockGlobalAndChannel}))
	defer s.Uninitialize()
	srv := bindLoopback(t, s, ct, 0, true)

	result := acceptAsync(srv, &AcceptOptions{NakMount: true})
	_, err := s.Connect(loopbackConnectOptions(ct, srv))
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "refused")
	}
	_, isErr := (<-result).(error)
	assert.True(t, isErr)

	result = acceptAsync(srv, nil)
	opts := loopbackConnectOptions(ct, srv)
	opts.ProtocolType = ProtocolJSON
	_, err = s.Connect(opts)
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "mismatch")
	}
	_, isErr = (<-result).(error)
	assert.True(t, isErr)
}

func testSocketNonBlocking(t *testing.T, ct ConnectionType) {
	s := NewSession()
	assert.NoError(t, s.Initialize(InitOptions{Locking: LockGlobal}))
	defer s.Uninitialize()
	srv := bindLoopback(t, s, ct, 0, false)

	_, err := srv.Accept(nil)
	assert.Error(t, err)
	assert.Equal(t, RetReadWouldBlock, Code(err))

	opts := loopbackConnectOptions(ct, srv)
	opts.Blocking = false
	client, err := s.Connect(opts)
	assert.NoError(t, err)
	assert.Equal(t, StateInitializing, client.State())

	var server *Channel
	deadline := time.Now().Add(5 * time.Second)
	for server == nil && time.Now().Before(deadline) {
		if server, err = srv.Accept(nil); err != nil {
			assert.Equal(t, RetReadWouldBlock, Code(err))
			time.Sleep(time.Millisecond)
		}
	}
	if server == nil {
		t.Fatal("accept timed out")
	}
	for (client.State() != StateActive || server.State() != StateActive) && time.Now().Before(deadline) {
		for _, ch := range []*Channel{client, server} {
			if ch.State() == StateInitializing {
				ret, err := ch.InitChannel()
				assert.NoError(t, err)
				assert.True(t, ret == RetSuccess || ret == RetChanInitInProgress)
			}
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateActive, client.State())
	assert.Equal(t, StateActive, server.State())

	_, ret, err := server.Read()
	assert.NoError(t, err)
	assert.Equal(t, RetReadWouldBlock, ret)

	writeMsg(t, client, []byte("non-blocking"))
	data, _ := readMsg(t, server)
	assert.Equal(t, "non-blocking", string(data))
}

func testSocketBuffers(t *testing.T, ct ConnectionType) {
	sp := newSocketPair(t, ct, 0)
	defer sp.Close()

	assert.NoError(t, sp.client.Ioctl(IoctlNumGuaranteedBuffers, 1))
	assert.NoError(t, sp.client.Ioctl(IoctlMaxNumBuffers, 1))
	assert.Error(t, sp.client.Ioctl(IoctlMaxNumBuffers, "many"))
	assert.Error(t, sp.client.Ioctl(IoctlCode(9999), 0))
	b1, err := sp.client.GetBuffer(10, false)
	assert.NoError(t, err)
	_, err = sp.client.GetBuffer(10, false)
	assert.Equal(t, RetBufferNoBuffers, Code(err))
	assert.NoError(t, ReleaseBuffer(b1))
	n, err := sp.client.BufferUsage()
	assert.NoError(t, err)
	assert.Zero(t, n)

	b1, err = sp.server.GetBuffer(10, false)
	assert.NoError(t, err)
	_, err = sp.server.GetBuffer(10, false)
	assert.NoError(t, err)
	n, err = sp.srv.BufferUsage()
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, ReleaseBuffer(b1))
	si, err := sp.srv.Info()
	assert.NoError(t, err)
	assert.Equal(t, 1, si.CurrentBufferUsage)
	assert.Equal(t, 2, si.PeakBufferUsage)
	assert.NoError(t, sp.srv.Ioctl(IoctlServerPeakBufReset, nil))
	si, _ = sp.srv.Info()
	assert.Equal(t, 1, si.PeakBufferUsage)

	assert.NoError(t, sp.server.Close())
	n, _ = sp.srv.BufferUsage()
	assert.Zero(t, n)
}

func Test_Socket_handshake(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	testSocketHandshake(t, ConnTypeSocket)
}

func Test_Socket_messages(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	testSocketMessages(t, ConnTypeSocket)
}

func Test_Socket_Ping(t *testing.T) {
	testSocketPing(t, ConnTypeSocket)
}

func Test_Socket_peer_close(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	testSocketPeerClose(t, ConnTypeSocket)
}

func Test_Socket_nak(t *testing.T) {
	testSocketNak(t, ConnTypeSocket)
}

func Test_Socket_non_blocking(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	testSocketNonBlocking(t, ConnTypeSocket)
}

func Test_Socket_buffers(t *testing.T) {
	testSocketBuffers(t, ConnTypeSocket)
}

func Test_Socket_Connect_errors(t *testing.T) {
	s := NewSession()
	assert.NoError(t, s.Initialize(InitOptions{Locking: LockGlobalAndChannel}))
	defer s.Uninitialize()
	_, err := s.Connect(&ConnectOptions{ConnectionType: ConnTypeSocket})
	assert.Error(t, err)
	_, err = s.Bind(&BindOptions{ConnectionType: ConnTypeSocket})
	assert.Error(t, err)
	srv := bindLoopback(t, s, ConnTypeSocket, 0, true)
	port := srv.PortNumber
	assert.NoError(t, srv.Close())
	_, err = s.Connect(&ConnectOptions{ConnectionType: ConnTypeSocket, Address: "127.0.0.1", ServiceName: strconv.Itoa(port)})
	assert.Error(t, err)
}

func Test_clampFragmentSize(t *testing.T) {
	assert.Equal(t, 12, clampFragmentSize(0))
	assert.Equal(t, 100, clampFragmentSize(100))
	assert.Equal(t, SocketFrameMaxSize-SocketFrameHeaderSize-socketFragHeaderExt, clampFragmentSize(1<<20))
}

func Test_streamFrameConn_bad_size(t *testing.T) {
	fc := &streamFrameConn{r: bufioReader([]byte{0, 1, 0})}
	_, err := fc.ReadFrame()
	assert.Error(t, err)
	fc = &streamFrameConn{r: bufioReader([]byte{0, 5, 2, 'h', 'i'})}
	f, err := fc.ReadFrame()
	assert.NoError(t, err)
	assert.Equal(t, "hi", string(f[SocketFrameHeaderSize:]))
}

func bufioReader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}

func Test_Socket_stress(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	iterations := 2000
	if raceEnabled || testing.Short() {
		iterations = 200
	}
	sp := newSocketPair(t, ConnTypeSocket, 512)
	defer sp.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			size := 1 + i%1500
			buf, err := sp.client.GetBuffer(size, false)
			if !assert.NoError(t, err) {
				return
			}
			for j := range buf.Data {
				buf.Data[j] = byte(i)
			}
			if _, err = sp.client.Write(buf, nil, nil); !assert.NoError(t, err) {
				return
			}
		}
	}()
	for i := 0; i < iterations; i++ {
		data, _ := readMsg(t, sp.server)
		if !assert.Len(t, data, 1+i%1500) {
			break
		}
		assert.Equal(t, byte(i), data[len(data)-1])
	}
	<-done
}
