package rssl

import "sync"

// Registry maps connection types to their TransportBackend.
type Registry struct {
	mu       sync.RWMutex
	backends [MaxTransports]TransportBackend
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs b for ct, replacing any earlier registration.
func (r *Registry) Register(ct ConnectionType, b TransportBackend) error {
	if ct < 0 || int(ct) >= MaxTransports {
		return newError(RetFailure, nil, "0005 Unknown connection type %d", int(ct))
	}
	if b == nil {
		return errNullArgument("transport backend")
	}
	r.mu.Lock()
	r.backends[ct] = b
	r.mu.Unlock()
	return nil
}

// Lookup returns the backend registered for ct.
func (r *Registry) Lookup(ct ConnectionType) (TransportBackend, error) {
	if ct < 0 || int(ct) >= MaxTransports {
		return nil, newError(RetFailure, nil, "0005 Unknown connection type %d", int(ct))
	}
	r.mu.RLock()
	b := r.backends[ct]
	r.mu.RUnlock()
	if b == nil {
		return nil, newError(RetFailure, nil, "0005 Connection type %s is not registered", ct)
	}
	return b, nil
}

// registerDefaults installs the backends provided by this package.
func (r *Registry) registerDefaults() {
	r.backends[ConnTypeSocket] = newSocketBackend()
	r.backends[ConnTypeUnidirShmem] = newShmemBackend()
	r.backends[ConnTypeReliableMcast] = unsupportedBackend{connType: ConnTypeReliableMcast}
	r.backends[ConnTypeSeqMcast] = newSeqMcastBackend()
	r.backends[ConnTypeWebSocket] = newWebSocketBackend()
}
