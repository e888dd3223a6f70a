package rssl

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a YAML document holding the options for a process using one
// Channel or Server.
type Config struct {
	Init    InitOptions    `yaml:"init"`
	Connect ConnectOptions `yaml:"connect"`
	Bind    BindOptions    `yaml:"bind"`
	Trace   TraceOptions   `yaml:"trace"`
}

// LoadConfig parses a Config, applying defaults for omitted values.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := &Config{
		Connect: ConnectOptions{PingTimeout: DefaultPingTimeout},
		Bind: BindOptions{
			PingTimeout:      DefaultPingTimeout,
			MaxFragmentSize:  DefaultMaxFragmentSize,
			MaxOutputBuffers: DefaultMaxOutputBuffers,
		},
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// LoadConfigFile parses the Config in the named file.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// UnmarshalYAML accepts either a connection type name or its number.
func (ct *ConnectionType) UnmarshalYAML(value *yaml.Node) error {
	for k, v := range connTypeTexts {
		if strings.EqualFold(v, value.Value) {
			*ct = k
			return nil
		}
	}
	var n int
	if err := value.Decode(&n); err != nil {
		return errors.Errorf("line %d: unknown connection type %q", value.Line, value.Value)
	}
	*ct = ConnectionType(n)
	return nil
}

// MarshalYAML writes the connection type name.
func (ct ConnectionType) MarshalYAML() (interface{}, error) {
	return ct.String(), nil
}

// UnmarshalYAML accepts either a locking type name or its number.
func (lt *LockingType) UnmarshalYAML(value *yaml.Node) error {
	for _, v := range []LockingType{LockNone, LockGlobalAndChannel, LockGlobal} {
		if strings.EqualFold(v.String(), value.Value) {
			*lt = v
			return nil
		}
	}
	var n int
	if err := value.Decode(&n); err != nil {
		return errors.Errorf("line %d: unknown locking type %q", value.Line, value.Value)
	}
	*lt = LockingType(n)
	return nil
}
