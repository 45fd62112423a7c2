package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed    = errors.New("reference arena closed")
	ErrDuplicate = errors.New("reference already tracked")
	ErrInvalid   = errors.New("invalid reference key")
)

// backend stores liveness records keyed by registry reference.
type backend struct {
	entries map[Handle]*entry
	mu      sync.RWMutex
	closed  bool
}

type entry struct {
	value       any
	kind        Kind
	borrowCount uint32
	dropPending bool
}

func newBackend() *backend {
	return &backend{entries: make(map[Handle]*entry, 64)}
}

func (b *backend) create(h Handle, kind Kind, value any) error {
	if h <= 0 {
		return ErrInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, ok := b.entries[h]; ok {
		return ErrDuplicate
	}
	b.entries[h] = &entry{kind: kind, value: value}
	return nil
}

func (b *backend) get(h Handle) (*entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[h]
	return e, ok
}

// drop releases the owner. It returns the entry when the reference is
// released now; an owner drop with outstanding borrows is deferred until the
// last borrow returns.
func (b *backend) drop(h Handle) (*entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok || e.dropPending {
		return nil, false
	}
	if e.borrowCount > 0 {
		e.dropPending = true
		return nil, false
	}
	delete(b.entries, h)
	return e, true
}

func (b *backend) borrow(h Handle) (*entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok {
		return nil, false
	}
	e.borrowCount++
	return e, true
}

// returnBorrow gives back one borrow. The second result reports whether the
// deferred owner drop completed and the reference must be released.
func (b *backend) returnBorrow(h Handle) (*entry, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok || e.borrowCount == 0 {
		return nil, false, false
	}
	e.borrowCount--
	if e.dropPending && e.borrowCount == 0 {
		delete(b.entries, h)
		return e, true, true
	}
	return e, false, true
}

func (b *backend) close() map[Handle]*entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	entries := b.entries
	b.entries = make(map[Handle]*entry)
	return entries
}

func (b *backend) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *backend) each(fn func(Handle, *entry) bool) {
	b.mu.RLock()
	snapshot := make(map[Handle]*entry, len(b.entries))
	for h, e := range b.entries {
		snapshot[h] = e
	}
	b.mu.RUnlock()

	for h, e := range snapshot {
		if !fn(h, e) {
			return
		}
	}
}
