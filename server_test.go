package rssl

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

// srvTester accepts a fixed number of Channels on a loopback socket Server.
type srvTester struct {
	t           *testing.T
	s           *Session
	srv         *Server
	acceptCount int64
	acceptDone  chan struct{}
	acceptErr   error
}

func newSrvTester(t *testing.T, n int) *srvTester {
	st := &srvTester{t: t, s: NewSession(), acceptDone: make(chan struct{})}
	assert.NoError(t, st.s.Initialize(InitOptions{Locking: LockGlobalAndChannel}))
	st.srv = bindLoopback(t, st.s, ConnTypeSocket, 0, true)
	go st.acceptLoop(n)
	return st
}

func (st *srvTester) acceptLoop(n int) {
	defer close(st.acceptDone)
	for i := 0; i < n; i++ {
		ch, err := st.srv.Accept(nil)
		if err != nil {
			st.acceptErr = err
			return
		}
		if _, err = ch.InitChannel(); err == nil {
			atomic.AddInt64(&st.acceptCount, 1)
		}
	}
}

func (st *srvTester) waitForAccepted(n int64) bool {
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for ticks := 0; ticks < 100; ticks++ {
		if atomic.LoadInt64(&st.acceptCount) >= n {
			return true
		}
		<-ticker.C
	}
	return false
}

func (st *srvTester) Close() {
	timer := time.NewTimer(time.Second * 5)
	defer timer.Stop()
	select {
	case <-st.acceptDone:
		assert.NoError(st.t, st.acceptErr)
	case <-timer.C:
		assert.NoError(st.t, errors.New("server_test: Timeout waiting for accept loop to stop"))
	}
	assert.NoError(st.t, st.srv.Close())
	assert.NoError(st.t, st.s.Uninitialize())
}

func Test_Server_accept_loop(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	st := newSrvTester(t, 3)
	var clients []*Channel
	for i := 0; i < 3; i++ {
		ch, err := st.s.Connect(loopbackConnectOptions(ConnTypeSocket, st.srv))
		assert.NoError(t, err)
		clients = append(clients, ch)
	}
	assert.True(t, st.waitForAccepted(3))
	assert.Equal(t, 3, st.srv.ActiveChannels())
	assert.Empty(t, st.srv.ServeErrors())
	assert.Contains(t, st.srv.String(), "Socket")
	st.Close()
	for _, ch := range clients {
		assert.Equal(t, StateInactive, ch.State())
	}
}

func Test_Server_Close_keeps_channels(t *testing.T) {
	if leaktestEnabled {
		defer leaktest.Check(t)()
	}
	sp := newSocketPair(t, ConnTypeSocket, 0)
	defer sp.Close()
	assert.Equal(t, 1, sp.srv.ActiveChannels())
	assert.NoError(t, sp.srv.Close())
	assert.Nil(t, sp.server.server)

	writeMsg(t, sp.client, []byte("still here"))
	data, _ := readMsg(t, sp.server)
	assert.Equal(t, "still here", string(data))

	_, err := sp.srv.Accept(nil)
	assert.Error(t, err)
	assert.Error(t, sp.srv.Close())
}

func Test_Server_channel_close_untracks(t *testing.T) {
	sp := newSocketPair(t, ConnTypeSocket, 0)
	defer sp.Close()
	sp.srv.NetLog(false)
	assert.NoError(t, sp.server.Close())
	assert.Zero(t, sp.srv.ActiveChannels())
	assert.Equal(t, 1, sp.srv.peakChannels)
}
