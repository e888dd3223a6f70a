package rssl

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// muNetLog serializes network logging output.
var muNetLog sync.Mutex

// Channel is a connection over one of the transports.
type Channel struct {
	ID             uuid.UUID
	ConnectionType ConnectionType
	ProtocolType   uint8
	MajorVersion   uint8
	MinorVersion   uint8
	PingTimeout    int
	Blocking       bool
	UserSpec       interface{}
	state          int32
	session        *Session
	backend        TransportBackend
	server         *Server
	mu             locker
	buffers        *bufferPool
	assembly       *assemblyTable
	tracer         *tracer
	debugFlags     DebugFlag
	componentInfo  string
	transportInfo  interface{}
	bytesRead      int64
	bytesWritten   int64
	netLog         bool
}

func (ch *Channel) String() string {
	return fmt.Sprintf("[Channel %s %s %s]", shortID(ch.ID), ch.ConnectionType, ch.State())
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}

func (ch *Channel) init(s *Session) {
	ch.ID = uuid.New()
	ch.ConnectionType = ConnTypeInit
	ch.ProtocolType = 0
	ch.MajorVersion = 0
	ch.MinorVersion = 0
	ch.PingTimeout = DefaultPingTimeout
	ch.Blocking = false
	ch.UserSpec = nil
	atomic.StoreInt32(&ch.state, int32(StateInactive))
	ch.session = s
	ch.backend = nil
	ch.server = nil
	ch.mu = newLocker(s.locking.channelLocking())
	ch.buffers = newBufferPool(DefaultMaxOutputBuffers, newLocker(s.locking.channelLocking()))
	ch.assembly = newAssemblyTable()
	ch.tracer = nil
	ch.debugFlags = 0
	ch.componentInfo = ""
	ch.transportInfo = nil
	atomic.StoreInt64(&ch.bytesRead, 0)
	atomic.StoreInt64(&ch.bytesWritten, 0)
	ch.netLog = s.netLog
}

// reset drops all transport memory held by ch.
func (ch *Channel) reset() {
	if ch.tracer != nil {
		ch.tracer.close()
	}
	if ch.buffers != nil {
		ch.buffers.drain(nil)
	}
	ch.assembly = nil
	ch.tracer = nil
	ch.componentInfo = ""
	ch.transportInfo = nil
	ch.backend = nil
	ch.server = nil
	ch.UserSpec = nil
	atomic.StoreInt32(&ch.state, int32(StateInactive))
}

// shutdown closes the transport and returns ch to the Session pool.
func (ch *Channel) shutdown() {
	if ch.backend != nil {
		if err := ch.backend.CloseChannel(ch); err != nil && ch.netLog {
			ch.logf("CLOSE %v", err)
		}
	}
	ch.setState(StateClosed)
	if ch.tracer != nil {
		ch.tracer.channelClosed(ch)
	}
	if ch.server != nil {
		ch.server.untrackChannel(ch)
	}
	ch.session.releaseChannel(ch)
}

// State returns the current ChannelState.
func (ch *Channel) State() ChannelState {
	return ChannelState(atomic.LoadInt32(&ch.state))
}

func (ch *Channel) setState(state ChannelState) {
	old := ChannelState(atomic.SwapInt32(&ch.state, int32(state)))
	if ch.netLog && old != state {
		ch.logf("STATE %s -> %s", old, state)
	}
}

// BytesRead returns the number of payload bytes read.
func (ch *Channel) BytesRead() int64 {
	return atomic.LoadInt64(&ch.bytesRead)
}

// BytesWritten returns the number of payload bytes written.
func (ch *Channel) BytesWritten() int64 {
	return atomic.LoadInt64(&ch.bytesWritten)
}

// NetLog enables or disables logging for this Channel.
func (ch *Channel) NetLog(state bool) {
	ch.netLog = state
}

func (ch *Channel) logf(format string, args ...interface{}) {
	muNetLog.Lock()
	defer muNetLog.Unlock()
	log.Print(ch, " ", fmt.Sprintf(format, args...))
}
