package rssl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Registry_Register_range(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(ConnTypeInit, newFakeBackend()))
	assert.Error(t, r.Register(ConnectionType(MaxTransports), newFakeBackend()))
	assert.Error(t, r.Register(ConnTypeSocket, nil))
	assert.NoError(t, r.Register(ConnTypeSocket, newFakeBackend()))
}

func Test_Registry_Lookup(t *testing.T) {
	r := NewRegistry()
	b, err := r.Lookup(ConnTypeSocket)
	assert.Nil(t, b)
	assert.Error(t, err)
	fb := newFakeBackend()
	assert.NoError(t, r.Register(ConnTypeSocket, fb))
	b, err = r.Lookup(ConnTypeSocket)
	assert.NoError(t, err)
	assert.Equal(t, fb, b)
	_, err = r.Lookup(ConnectionType(-2))
	assert.Error(t, err)
}

func Test_Registry_defaults(t *testing.T) {
	r := NewRegistry()
	r.registerDefaults()
	for _, ct := range []ConnectionType{ConnTypeSocket, ConnTypeUnidirShmem, ConnTypeReliableMcast, ConnTypeSeqMcast, ConnTypeWebSocket} {
		b, err := r.Lookup(ct)
		assert.NoError(t, err, ct.String())
		assert.NotNil(t, b, ct.String())
	}
	for _, ct := range []ConnectionType{ConnTypeEncrypted, ConnTypeHTTP, ConnTypeExtLineSocket} {
		_, err := r.Lookup(ct)
		assert.Error(t, err, ct.String())
	}
}

func Test_Registry_unsupported_fails(t *testing.T) {
	s := NewSession()
	assert.NoError(t, s.Initialize(InitOptions{}))
	defer s.Uninitialize()
	ch, err := s.Connect(&ConnectOptions{ConnectionType: ConnTypeReliableMcast})
	assert.Nil(t, ch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "0006")
	assert.Zero(t, s.ActiveChannels())
	_, err = s.Connect(&ConnectOptions{ConnectionType: ConnTypeHTTP})
	assert.Error(t, err)
}
