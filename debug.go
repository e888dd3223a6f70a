package rssl

import "sync"

// DebugFlag is set on a Channel with IoctlDebugFlags.
type DebugFlag uint32

const (
	// DebugDumpIn passes read messages to the registered in function.
	DebugDumpIn DebugFlag = 0x1
	// DebugDumpOut passes written messages to the registered out function.
	DebugDumpOut DebugFlag = 0x2
)

// DumpFunc receives the payload of a message read from or written to ch.
// The data must not be retained after it returns.
type DumpFunc func(ch *Channel, data []byte)

type debugFuncs struct {
	mu  sync.RWMutex
	in  map[uint8]DumpFunc
	out map[uint8]DumpFunc
}

func (d *debugFuncs) set(protocolType uint8, in, out DumpFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.in == nil {
		d.in = make(map[uint8]DumpFunc)
		d.out = make(map[uint8]DumpFunc)
	}
	if in == nil {
		delete(d.in, protocolType)
	} else {
		d.in[protocolType] = in
	}
	if out == nil {
		delete(d.out, protocolType)
	} else {
		d.out[protocolType] = out
	}
}

func (d *debugFuncs) dumpIn(ch *Channel, data []byte) {
	if ch.debugFlags&DebugDumpIn == 0 {
		return
	}
	d.mu.RLock()
	fn := d.in[ch.ProtocolType]
	d.mu.RUnlock()
	if fn != nil {
		fn(ch, data)
	}
}

func (d *debugFuncs) dumpOut(ch *Channel, data []byte) {
	if ch.debugFlags&DebugDumpOut == 0 {
		return
	}
	d.mu.RLock()
	fn := d.out[ch.ProtocolType]
	d.mu.RUnlock()
	if fn != nil {
		fn(ch, data)
	}
}

// SetDebugFunctions registers dump functions for a protocol type on
// DefaultSession. A nil function removes the registration.
func SetDebugFunctions(protocolType uint8, in, out DumpFunc) error {
	return DefaultSession.SetDebugFunctions(protocolType, in, out)
}

// SetDebugFunctions registers dump functions for a protocol type.
func (s *Session) SetDebugFunctions(protocolType uint8, in, out DumpFunc) error {
	if !s.Initialized() {
		return errNotInitialized()
	}
	s.debug.set(protocolType, in, out)
	return nil
}

// DumpBuffer writes data to the Channel trace as a dump message if
// tracing was enabled with TraceDump.
func (ch *Channel) DumpBuffer(protocolType uint8, data []byte) error {
	if err := ch.check(); err != nil {
		return err
	}
	if data == nil {
		return errNullArgument("buffer")
	}
	if ch.tracer != nil {
		ch.tracer.record(ch, traceDump, protocolType, data)
	}
	return nil
}
