package rssl

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func traceWrite(t *testing.T, ch *Channel, payload string) {
	buf, err := ch.GetBuffer(len(payload), false)
	assert.NoError(t, err)
	copy(buf.Data, payload)
	_, err = ch.Write(buf, nil, nil)
	assert.NoError(t, err)
}

func Test_Trace_file_name_required(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	assert.Error(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceRead | TraceToFile}))
	assert.Nil(t, ch.tracer)
	assert.Error(t, ch.Ioctl(IoctlTrace, nil))
}

func Test_Trace_unsupported_protocol(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	ch.ProtocolType = 5
	assert.Error(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceToStdout}))
}

func Test_Trace_to_file(t *testing.T) {
	s, fb := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	base := filepath.Join(t.TempDir(), "trace_")
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceRead | TraceWrite | TraceToFile, FileName: base}))
	name := ch.tracer.fileNameInUse()
	assert.True(t, strings.HasPrefix(name, base))
	assert.True(t, strings.HasSuffix(name, ".xml"))

	traceWrite(t, ch, "hello")
	fb.reads = [][]byte{[]byte("world")}
	_, _, err := ch.Read()
	assert.NoError(t, err)
	assert.NoError(t, ch.Close())

	b, err := os.ReadFile(name)
	assert.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, "<!-- Outgoing Message (Channel "+shortID(ch.ID)+") -->")
	assert.Contains(t, text, "<!-- Incoming Message")
	assert.Contains(t, text, "<!-- rwf Major Ver: 0 Minor Ver: 0 -->")
	assert.Contains(t, text, "<!-- Length 5 -->")
	assert.Contains(t, text, "68 65 6c 6c 6f")
	assert.Contains(t, text, "77 6f 72 6c 64")
	assert.Contains(t, text, "<!-- End Message")
	assert.Contains(t, text, "<!-- Channel Closed")
}

func Test_Trace_JSON_to_stdout(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	ch.ProtocolType = ProtocolJSON
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceWrite | TraceToStdout}))
	var out bytes.Buffer
	ch.tracer.stdout = &out

	traceWrite(t, ch, `{"a":"--"}`)
	assert.Contains(t, out.String(), "<!-- json Major Ver")
	assert.Contains(t, out.String(), `<!-- {"a":"- -"} -->`)
	assert.NotContains(t, out.String(), "7b 22")

	out.Reset()
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceWrite | TraceToStdout | TraceHex}))
	traceWrite(t, ch, `{}`)
	assert.Contains(t, out.String(), "7b 7d")

	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{}))
	assert.Nil(t, ch.tracer)
}

func Test_Trace_rotation(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	dir := t.TempDir()
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{
		Flags:       TraceWrite | TraceToFile | TraceToMultipleFiles,
		FileName:    filepath.Join(dir, "rot_"),
		MaxFileSize: 10,
	}))
	first := ch.tracer.fileNameInUse()
	traceWrite(t, ch, "one")
	traceWrite(t, ch, "two")
	assert.NotEqual(t, first, ch.tracer.fileNameInUse())
	files, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.True(t, len(files) >= 2)
}

func Test_Trace_stops_at_max_size(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	dir := t.TempDir()
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{
		Flags:       TraceWrite | TraceToFile,
		FileName:    filepath.Join(dir, "max_"),
		MaxFileSize: 10,
	}))
	assert.NotEmpty(t, ch.tracer.fileNameInUse())
	traceWrite(t, ch, "one")
	assert.Empty(t, ch.tracer.fileNameInUse())
	traceWrite(t, ch, "two")
	files, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, files, 1)
}

func Test_Trace_ping_only(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TracePingOnly | TraceToStdout}))
	var out bytes.Buffer
	ch.tracer.stdout = &out
	traceWrite(t, ch, "quiet")
	assert.Zero(t, out.Len())
	assert.NoError(t, ch.Ping())
	assert.Contains(t, out.String(), "Outgoing Ping")
}

func Test_Trace_ping_needs_direction(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TracePing | TraceRead | TraceToStdout}))
	var out bytes.Buffer
	ch.tracer.stdout = &out
	assert.NoError(t, ch.Ping())
	assert.Zero(t, out.Len())
	ch.tracer.ping(ch, true)
	assert.Contains(t, out.String(), "Incoming Ping")
}

func Test_Channel_DumpBuffer(t *testing.T) {
	s, _ := newFakeSession(t, LockNone)
	defer s.Uninitialize()
	ch := connectFake(t, s)
	assert.NoError(t, ch.DumpBuffer(ProtocolRWF, []byte("x")))
	assert.NoError(t, ch.Ioctl(IoctlTrace, &TraceOptions{Flags: TraceDump | TraceToStdout}))
	var out bytes.Buffer
	ch.tracer.stdout = &out
	assert.Error(t, ch.DumpBuffer(ProtocolRWF, nil))
	assert.NoError(t, ch.DumpBuffer(ProtocolJSON, []byte(`{"dump":1}`)))
	assert.Contains(t, out.String(), "<!-- Dump Message")
	assert.Contains(t, out.String(), `{"dump":1}`)
}

func Test_protocolName(t *testing.T) {
	assert.Equal(t, "rwf", protocolName(ProtocolRWF))
	assert.Equal(t, "json", protocolName(ProtocolJSON))
	assert.Equal(t, "protocol 7", protocolName(7))
}
