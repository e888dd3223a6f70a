// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rssl

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Server is a listening endpoint created with Bind.
type Server struct {
	ID                      uuid.UUID
	ConnectionType          ConnectionType
	ProtocolType            uint8
	MajorVersion            uint8
	MinorVersion            uint8
	PortNumber              int
	Blocking                bool
	ChannelsBlocking        bool
	PingTimeout             int
	MaxFragmentSize         int
	MaxOutputBuffers        int
	GuaranteedOutputBuffers int
	UserSpec                interface{}
	state                   int32
	session                 *Session
	backend                 TransportBackend
	mu                      sync.Mutex
	activeChannels          map[*Channel]struct{}
	peakChannels            int
	transportInfo           interface{}
	componentInfo           string
	netLog                  bool
}

func (srv *Server) String() string {
	return fmt.Sprintf("[Server %s %s :%d %s]", shortID(srv.ID), srv.ConnectionType, srv.PortNumber, srv.State())
}

func (srv *Server) init(s *Session) {
	srv.ID = uuid.New()
	srv.ConnectionType = ConnTypeInit
	srv.ProtocolType = 0
	srv.MajorVersion = 0
	srv.MinorVersion = 0
	srv.PortNumber = 0
	srv.Blocking = false
	srv.ChannelsBlocking = false
	srv.PingTimeout = DefaultPingTimeout
	srv.MaxFragmentSize = DefaultMaxFragmentSize
	srv.MaxOutputBuffers = DefaultMaxOutputBuffers
	srv.GuaranteedOutputBuffers = DefaultMaxOutputBuffers
	srv.UserSpec = nil
	atomic.StoreInt32(&srv.state, int32(StateInactive))
	srv.session = s
	srv.backend = nil
	srv.mu.Lock()
	srv.activeChannels = make(map[*Channel]struct{})
	srv.peakChannels = 0
	srv.mu.Unlock()
	srv.transportInfo = nil
	srv.componentInfo = ""
	srv.netLog = s.netLog
}

func (srv *Server) reset() {
	srv.mu.Lock()
	srv.activeChannels = nil
	srv.mu.Unlock()
	srv.transportInfo = nil
	srv.componentInfo = ""
	srv.backend = nil
	srv.UserSpec = nil
	atomic.StoreInt32(&srv.state, int32(StateInactive))
}

// shutdown closes the listener and returns srv to the Session pool.
// Accepted Channels stay open.
func (srv *Server) shutdown() {
	if srv.backend != nil {
		if err := srv.backend.CloseServer(srv); err != nil && srv.netLog {
			srv.logf("CLOSE %v", err)
		}
	}
	srv.setState(StateClosed)
	srv.mu.Lock()
	for ch := range srv.activeChannels {
		ch.server = nil
	}
	srv.mu.Unlock()
	srv.session.releaseServer(srv)
}

// State returns the current ChannelState of the Server.
func (srv *Server) State() ChannelState {
	return ChannelState(atomic.LoadInt32(&srv.state))
}

func (srv *Server) setState(state ChannelState) {
	old := ChannelState(atomic.SwapInt32(&srv.state, int32(state)))
	if srv.netLog && old != state {
		srv.logf("STATE %s -> %s", old, state)
	}
}

// NetLog enables or disables logging of accepted Channels and state changes.
func (srv *Server) NetLog(state bool) {
	srv.netLog = state
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for ch := range srv.activeChannels {
		if ch != nil {
			ch.NetLog(state)
		}
	}
}

// ActiveChannels returns the number of accepted Channels still open.
func (srv *Server) ActiveChannels() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.activeChannels)
}

func (srv *Server) trackChannel(ch *Channel) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.activeChannels == nil {
		srv.activeChannels = make(map[*Channel]struct{})
	}
	ch.server = srv
	srv.activeChannels[ch] = struct{}{}
	if n := len(srv.activeChannels); n > srv.peakChannels {
		srv.peakChannels = n
	}
}

func (srv *Server) untrackChannel(ch *Channel) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.activeChannels, ch)
}

func (srv *Server) logf(format string, args ...interface{}) {
	muNetLog.Lock()
	defer muNetLog.Unlock()
	log.Print(srv, " ", fmt.Sprintf(format, args...))
}
