package rssl

import "sync"

// assemblyInitialCap bounds the up front allocation for a fragmented
// message. The buffer grows as fragments arrive, so a peer must send the
// bytes it announces before they are held in memory.
const assemblyInitialCap = 64 * 1024

// assemblyKey identifies a fragmented message in progress.
type assemblyKey struct {
	fragID uint16
	node   NodeID
}

// assemblyBuffer accumulates the fragments of one message.
type assemblyBuffer struct {
	data    []byte
	total   int
	lastSeq uint32
	node    NodeID
}

type assemblyTable struct {
	mu   sync.Mutex
	bufs map[assemblyKey]*assemblyBuffer
}

func newAssemblyTable() *assemblyTable {
	return &assemblyTable{bufs: make(map[assemblyKey]*assemblyBuffer)}
}

// start begins a message of total bytes with its first fragment. It returns
// the message if the first fragment already completes it. A message in
// progress with the same key is discarded.
func (t *assemblyTable) start(key assemblyKey, total int, chunk []byte) ([]byte, error) {
	if total < 0 || len(chunk) > total {
		return nil, newError(RetFailure, nil, "0002 Fragment of %d bytes exceeds message length %d", len(chunk), total)
	}
	if len(chunk) == total {
		return chunk, nil
	}
	capacity := total
	if capacity > assemblyInitialCap {
		capacity = assemblyInitialCap
	}
	ab := &assemblyBuffer{data: make([]byte, 0, capacity), total: total, node: key.node}
	ab.data = append(ab.data, chunk...)
	t.mu.Lock()
	t.bufs[key] = ab
	t.mu.Unlock()
	return nil, nil
}

// add appends a fragment, returning the message once complete.
func (t *assemblyTable) add(key assemblyKey, seq uint32, chunk []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ab, ok := t.bufs[key]
	if !ok {
		return nil, newError(RetFailure, nil, "0002 Fragment for unknown fragment id %d", key.fragID)
	}
	if len(ab.data)+len(chunk) > ab.total {
		delete(t.bufs, key)
		return nil, newError(RetFailure, nil, "0002 Fragment overruns message length %d", ab.total)
	}
	ab.data = append(ab.data, chunk...)
	ab.lastSeq = seq
	if len(ab.data) < ab.total {
		return nil, nil
	}
	delete(t.bufs, key)
	return ab.data, nil
}

func (t *assemblyTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bufs)
}
