package rssl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

const testConfig = `
init:
  locking: GlobalAndChannel
  netlog: true
connect:
  conntype: seqmcast
  address: 239.1.1.1
  service: "30001"
  blocking: true
  seqmcast:
    maxmsgsize: 1500
    instanceid: 7
bind:
  conntype: 3
  service: rssl_feed
  shmemslots: 16
trace:
  flags: 0x13
  filename: /tmp/rssl_
`

func Test_LoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(testConfig))
	assert.NoError(t, err)
	assert.Equal(t, LockGlobalAndChannel, cfg.Init.Locking)
	assert.True(t, cfg.Init.NetLog)
	assert.Equal(t, ConnTypeSeqMcast, cfg.Connect.ConnectionType)
	assert.Equal(t, "30001", cfg.Connect.ServiceName)
	assert.Equal(t, 1500, cfg.Connect.SeqMcast.MaxMsgSize)
	assert.Equal(t, uint16(7), cfg.Connect.SeqMcast.InstanceID)
	assert.Equal(t, DefaultPingTimeout, cfg.Connect.PingTimeout)
	assert.Equal(t, ConnTypeUnidirShmem, cfg.Bind.ConnectionType)
	assert.Equal(t, 16, cfg.Bind.ShmemSlots)
	assert.Equal(t, DefaultMaxFragmentSize, cfg.Bind.MaxFragmentSize)
	assert.Equal(t, TraceRead|TraceWrite|TraceToFile, cfg.Trace.Flags)
}

func Test_LoadConfig_empty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxOutputBuffers, cfg.Bind.MaxOutputBuffers)
}

func Test_LoadConfig_errors(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("connect:\n  conntype: carrierpigeon\n"))
	assert.Error(t, err)
	_, err = LoadConfig(strings.NewReader("init:\n  locking: sometimes\n"))
	assert.Error(t, err)
	_, err = LoadConfig(strings.NewReader("unknown: 1\n"))
	assert.Error(t, err)
	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func Test_LoadConfigFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "rssl.yaml")
	assert.NoError(t, os.WriteFile(name, []byte(testConfig), 0644))
	cfg, err := LoadConfigFile(name)
	assert.NoError(t, err)
	assert.Equal(t, "rssl_feed", cfg.Bind.ServiceName)
}

func Test_ConnectionType_MarshalYAML(t *testing.T) {
	b, err := yaml.Marshal(BindOptions{ConnectionType: ConnTypeWebSocket})
	assert.NoError(t, err)
	assert.Contains(t, string(b), "conntype: WebSocket")
}
