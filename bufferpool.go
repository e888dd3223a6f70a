package rssl

// bufferPool holds the Buffer handles of one Channel.
// Handles are either queued in free or present in active, never both.
type bufferPool struct {
	mu     locker
	free   chan *Buffer
	active map[*Buffer]struct{}
}

func newBufferPool(size int, mu locker) *bufferPool {
	if size < 1 {
		size = 1
	}
	return &bufferPool{
		mu:     mu,
		free:   make(chan *Buffer, size),
		active: make(map[*Buffer]struct{}),
	}
}

// alloc returns a cleared handle, reusing a free one when possible.
func (bp *bufferPool) alloc() *Buffer {
	select {
	case b := <-bp.free:
		return b
	default:
		return &Buffer{priority: PriorityMedium}
	}
}

// activate marks b as handed out.
func (bp *bufferPool) activate(b *Buffer) {
	bp.mu.Lock()
	bp.active[b] = struct{}{}
	bp.mu.Unlock()
}

// retire removes b from the active set, clears it and queues it for reuse.
// Returns false if b was not active.
func (bp *bufferPool) retire(b *Buffer) bool {
	bp.mu.Lock()
	_, ok := bp.active[b]
	delete(bp.active, b)
	bp.mu.Unlock()
	if ok {
		b.clear()
		select {
		case bp.free <- b:
		default:
		}
	}
	return ok
}

func (bp *bufferPool) isActive(b *Buffer) (ok bool) {
	bp.mu.Lock()
	_, ok = bp.active[b]
	bp.mu.Unlock()
	return
}

func (bp *bufferPool) activeCount() (n int) {
	bp.mu.Lock()
	n = len(bp.active)
	bp.mu.Unlock()
	return
}

// drain retires every active handle, calling fn on each first.
func (bp *bufferPool) drain(fn func(b *Buffer)) {
	bp.mu.Lock()
	list := make([]*Buffer, 0, len(bp.active))
	for b := range bp.active {
		list = append(list, b)
	}
	bp.mu.Unlock()
	for _, b := range list {
		if fn != nil {
			fn(b)
		}
		bp.retire(b)
	}
}
