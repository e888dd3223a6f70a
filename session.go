package rssl

import (
	"log"
	"sync"
	"sync/atomic"
)

// freeListSize bounds how many released Channels or Servers are kept for reuse.
const freeListSize = 256

// Session is the process-wide transport context. It owns the transport
// Registry and the Channel and Server pools.
type Session struct {
	mu             sync.Mutex // serializes Initialize and Uninitialize
	poolMu         locker
	initCount      int32
	locking        LockingType
	registry       *Registry
	freeChannels   chan *Channel
	freeServers    chan *Server
	activeChannels map[*Channel]struct{}
	activeServers  map[*Server]struct{}
	netLog         bool
	debug          debugFuncs
}

// DefaultSession is used by the package level functions.
var DefaultSession = NewSession()

// NewSession returns an uninitialized Session.
func NewSession() *Session {
	return &Session{poolMu: noLock{}}
}

// Initialize initializes DefaultSession.
func Initialize(locking LockingType) error {
	return DefaultSession.Initialize(InitOptions{Locking: locking})
}

// InitializeEx initializes DefaultSession with options.
func InitializeEx(opts InitOptions) error {
	return DefaultSession.Initialize(opts)
}

// Uninitialize uninitializes DefaultSession.
func Uninitialize() error {
	return DefaultSession.Uninitialize()
}

// Initialize prepares the Session for use. Calls nest and must be balanced
// by Uninitialize. The locking type is fixed by the first call; later calls
// must pass the same one.
func (s *Session) Initialize(opts InitOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.initCount) > 0 {
		if opts.Locking != s.locking {
			return newError(RetFailure, nil, "0004 Cannot change mutex locking type from %s to %s", s.locking, opts.Locking)
		}
		atomic.AddInt32(&s.initCount, 1)
		return nil
	}
	if !opts.Locking.valid() {
		return newError(RetFailure, nil, "0004 Invalid mutex locking type %d", int(opts.Locking))
	}
	s.locking = opts.Locking
	s.netLog = opts.NetLog
	s.poolMu = newLocker(opts.Locking.globalLocking())
	s.registry = NewRegistry()
	s.registry.registerDefaults()
	s.freeChannels = make(chan *Channel, freeListSize)
	s.freeServers = make(chan *Server, freeListSize)
	s.activeChannels = make(map[*Channel]struct{})
	s.activeServers = make(map[*Server]struct{})
	for i := 0; i < PoolPreallocSize; i++ {
		s.freeChannels <- &Channel{}
		s.freeServers <- &Server{}
	}
	if s.netLog {
		log.Print("INIT ", s.locking, " ", cpuSummary())
	}
	atomic.StoreInt32(&s.initCount, 1)
	return nil
}

// Uninitialize balances one Initialize call. When the last one is balanced,
// all open Channels and Servers are closed and the pools are dropped.
func (s *Session) Uninitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := atomic.AddInt32(&s.initCount, -1)
	if n < 0 {
		atomic.StoreInt32(&s.initCount, 0)
		return errNotInitialized()
	}
	if n > 0 {
		return nil
	}
	s.poolMu.Lock()
	channels := make([]*Channel, 0, len(s.activeChannels))
	for ch := range s.activeChannels {
		channels = append(channels, ch)
	}
	servers := make([]*Server, 0, len(s.activeServers))
	for srv := range s.activeServers {
		servers = append(servers, srv)
	}
	s.poolMu.Unlock()
	for _, ch := range channels {
		ch.shutdown()
	}
	for _, srv := range servers {
		srv.shutdown()
	}
	if s.netLog {
		log.Print("UNINIT")
	}
	s.poolMu.Lock()
	s.freeChannels = nil
	s.freeServers = nil
	s.activeChannels = nil
	s.activeServers = nil
	s.poolMu.Unlock()
	s.registry = nil
	return nil
}

// Initialized returns true if Initialize has been called more times than Uninitialize.
func (s *Session) Initialized() bool {
	return atomic.LoadInt32(&s.initCount) > 0
}

// Locking returns the locking type in effect.
func (s *Session) Locking() LockingType {
	return s.locking
}

// Registry returns the transport Registry, or nil if not initialized.
func (s *Session) Registry() *Registry {
	return s.registry
}

// NetLog enables or disables logging of Channel state changes and traffic
// for Channels created after the call.
func (s *Session) NetLog(state bool) {
	s.poolMu.Lock()
	s.netLog = state
	s.poolMu.Unlock()
}

// ActiveChannels returns the number of Channels in use.
func (s *Session) ActiveChannels() (n int) {
	s.poolMu.Lock()
	n = len(s.activeChannels)
	s.poolMu.Unlock()
	return
}

// ActiveServers returns the number of Servers in use.
func (s *Session) ActiveServers() (n int) {
	s.poolMu.Lock()
	n = len(s.activeServers)
	s.poolMu.Unlock()
	return
}

// newChannel takes a Channel from the free list, or allocates one.
func (s *Session) newChannel() (*Channel, error) {
	var ch *Channel
	s.poolMu.Lock()
	free := s.freeChannels
	s.poolMu.Unlock()
	select {
	case ch = <-free:
	default:
		ch = &Channel{}
	}
	ch.init(s)
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	// the final Uninitialize may have dropped the pools since the caller checked
	if s.activeChannels == nil {
		return nil, errNotInitialized()
	}
	s.activeChannels[ch] = struct{}{}
	return ch, nil
}

// releaseChannel resets ch and moves it from the active set to the free list.
func (s *Session) releaseChannel(ch *Channel) {
	ch.reset()
	s.poolMu.Lock()
	delete(s.activeChannels, ch)
	free := s.freeChannels
	s.poolMu.Unlock()
	if free != nil {
		select {
		case free <- ch:
		default:
		}
	}
}

func (s *Session) newServer() (*Server, error) {
	var srv *Server
	s.poolMu.Lock()
	free := s.freeServers
	s.poolMu.Unlock()
	select {
	case srv = <-free:
	default:
		srv = &Server{}
	}
	srv.init(s)
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	// the final Uninitialize may have dropped the pools since the caller checked
	if s.activeServers == nil {
		return nil, errNotInitialized()
	}
	s.activeServers[srv] = struct{}{}
	return srv, nil
}

func (s *Session) releaseServer(srv *Server) {
	srv.reset()
	s.poolMu.Lock()
	delete(s.activeServers, srv)
	free := s.freeServers
	s.poolMu.Unlock()
	if free != nil {
		select {
		case free <- srv:
		default:
		}
	}
}

func (s *Session) isActiveChannel(ch *Channel) (ok bool) {
	s.poolMu.Lock()
	_, ok = s.activeChannels[ch]
	s.poolMu.Unlock()
	return
}

func (s *Session) isActiveServer(srv *Server) (ok bool) {
	s.poolMu.Lock()
	_, ok = s.activeServers[srv]
	s.poolMu.Unlock()
	return
}
