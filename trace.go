package rssl

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TraceFlag selects what IoctlTrace records.
type TraceFlag uint32

const (
	TraceRead            TraceFlag = 0x001
	TraceWrite           TraceFlag = 0x002
	TracePing            TraceFlag = 0x004
	TraceHex             TraceFlag = 0x008
	TraceToFile          TraceFlag = 0x010
	TraceToMultipleFiles TraceFlag = 0x020
	TraceToStdout        TraceFlag = 0x040
	TraceDump            TraceFlag = 0x080
	TracePingOnly        TraceFlag = 0x100
)

type traceKind int

const (
	traceIncoming traceKind = iota
	traceOutgoing
	tracePack
	traceDump
)

var traceKindTexts = map[traceKind]string{
	traceIncoming: "Incoming",
	traceOutgoing: "Outgoing",
	tracePack:     "Pack",
	traceDump:     "Dump",
}

func (k traceKind) String() string {
	return traceKindTexts[k]
}

// tracer writes XML comment traces of a Channel's traffic.
type tracer struct {
	mu          sync.Mutex
	flags       TraceFlag
	fileName    string
	maxFileSize int64
	file        *os.File
	lastStamp   int64
	pos         int64
	stdout      io.Writer
}

func newTracer() *tracer {
	return &tracer{stdout: os.Stdout}
}

func (ch *Channel) configureTrace(opts *TraceOptions) error {
	if ch.ProtocolType != ProtocolRWF && ch.ProtocolType != ProtocolJSON {
		return newError(RetFailure, nil, "0006 Tracing is not supported for protocol type %d", ch.ProtocolType)
	}
	t := ch.tracer
	if t == nil {
		t = newTracer()
	}
	if err := t.configure(opts); err != nil {
		return err
	}
	if opts.Flags == 0 {
		t.close()
		ch.tracer = nil
		return nil
	}
	ch.tracer = t
	return nil
}

func (t *tracer) configure(opts *TraceOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if opts.Flags&TraceToFile == 0 {
		t.closeFile()
		t.fileName = ""
	} else {
		if opts.FileName == "" && t.fileName == "" {
			return newError(RetFailure, nil, "0002 Trace file name required")
		}
		if opts.FileName != "" && opts.FileName != t.fileName {
			t.closeFile()
			t.fileName = opts.FileName
			if err := t.openFile(); err != nil {
				t.fileName = ""
				return err
			}
		}
	}
	t.flags = opts.Flags
	t.maxFileSize = opts.MaxFileSize
	return nil
}

// openFile opens a new trace file named after the base name and the current time.
func (t *tracer) openFile() error {
	stamp := time.Now().UnixMilli()
	if stamp <= t.lastStamp {
		stamp = t.lastStamp + 1
	}
	t.lastStamp = stamp
	name := t.fileName + strconv.FormatInt(stamp, 10) + ".xml"
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return newError(RetFailure, err, "0002 Unable to open trace file %q", name)
	}
	t.pos = 0
	if fi, err := f.Stat(); err == nil {
		t.pos = fi.Size()
	}
	t.file = f
	return nil
}

func (t *tracer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

func (t *tracer) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeFile()
}

// fileNameInUse returns the name of the open trace file, if any.
func (t *tracer) fileNameInUse() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return ""
	}
	return t.file.Name()
}

func (t *tracer) write(s string) {
	if t.flags&TraceToStdout != 0 {
		io.WriteString(t.stdout, s)
	}
	if t.file == nil {
		return
	}
	if t.maxFileSize > 0 && t.pos >= t.maxFileSize {
		t.closeFile()
		if t.flags&TraceToMultipleFiles == 0 {
			return
		}
		if err := t.openFile(); err != nil {
			log.Print("TRACE ", err)
			return
		}
	}
	n, err := t.file.WriteString(s)
	t.pos += int64(n)
	if err != nil {
		log.Print("TRACE ", err)
		t.closeFile()
	}
}

func (t *tracer) traces(kind traceKind) bool {
	if t.flags&TracePingOnly != 0 {
		return false
	}
	switch kind {
	case traceIncoming:
		return t.flags&TraceRead != 0
	case traceDump:
		return t.flags&TraceDump != 0
	}
	return t.flags&TraceWrite != 0
}

func (t *tracer) message(ch *Channel, kind traceKind, data []byte) {
	t.record(ch, kind, ch.ProtocolType, data)
}

func (t *tracer) record(ch *Channel, kind traceKind, protocolType uint8, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.traces(kind) {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n<!-- %s Message (Channel %s) -->\n", kind, shortID(ch.ID))
	fmt.Fprintf(&sb, "<!-- %s -->\n", time.Now().Format("2006/01/02 15:04:05.000"))
	fmt.Fprintf(&sb, "<!-- %s Major Ver: %d Minor Ver: %d -->\n", protocolName(protocolType), ch.MajorVersion, ch.MinorVersion)
	fmt.Fprintf(&sb, "<!-- Length %d -->\n", len(data))
	if protocolType == ProtocolJSON {
		sb.WriteString("<!-- ")
		sb.WriteString(strings.ReplaceAll(string(data), "--", "- -"))
		sb.WriteString(" -->\n")
	}
	if protocolType != ProtocolJSON || t.flags&TraceHex != 0 {
		sb.WriteString(BufferToHexDump(data))
	}
	t.write(sb.String())
}

func protocolName(protocolType uint8) string {
	switch protocolType {
	case ProtocolRWF:
		return "rwf"
	case ProtocolJSON:
		return "json"
	}
	return "protocol " + strconv.Itoa(int(protocolType))
}

func (t *tracer) end(ch *Channel, ret RetCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.traces(traceIncoming) {
		t.write(fmt.Sprintf("<!-- End Message (Channel %s) -->\n", shortID(ch.ID)))
	}
}

func (t *tracer) writeResult(ch *Channel, ret RetCode, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.traces(traceOutgoing) {
		return
	}
	switch {
	case err != nil:
		t.write(fmt.Sprintf("<!-- Write failed (Channel %s): %v -->\n", shortID(ch.ID), err))
	case ret == RetWriteCallAgain:
		t.write(fmt.Sprintf("<!-- Write call again (Channel %s) -->\n", shortID(ch.ID)))
	default:
		t.write(fmt.Sprintf("<!-- End Message (Channel %s) -->\n", shortID(ch.ID)))
	}
}

func (t *tracer) ping(ch *Channel, incoming bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flags&TracePingOnly == 0 {
		if t.flags&TracePing == 0 {
			return
		}
		if incoming && t.flags&TraceRead == 0 {
			return
		}
		if !incoming && t.flags&TraceWrite == 0 {
			return
		}
	}
	dir := "Outgoing"
	if incoming {
		dir = "Incoming"
	}
	t.write(fmt.Sprintf("\n<!-- %s Ping (Channel %s) %s -->\n", dir, shortID(ch.ID), time.Now().Format("2006/01/02 15:04:05.000")))
}

func (t *tracer) channelClosed(ch *Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flags&(TraceRead|TraceWrite|TracePingOnly) != 0 {
		t.write(fmt.Sprintf("\n<!-- Channel Closed (Channel %s) -->\n", shortID(ch.ID)))
	}
}
