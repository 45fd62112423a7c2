package resource

import (
	"slices"
	"sync"
)

// Table tracks the liveness of registry references held by the host.
//
// Each reference has one owner and any number of borrowers (non-owning
// aliases). The owner's Drop releases the reference exactly once; while
// borrows are outstanding the release is deferred to the last ReturnBorrow.
// Whoever receives true from Drop or ReturnBorrow must free the registry
// slot.
type Table struct {
	b         *backend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty arena.
func NewTable() *Table {
	return &Table{b: newBackend()}
}

// Own starts tracking h on behalf of its owner.
func (t *Table) Own(h Handle, kind Kind, value any) error {
	if err := t.b.create(h, kind, value); err != nil {
		return err
	}
	t.notify(Event{Type: EventCreated, Handle: h, Kind: kind, Value: value})
	return nil
}

// Live reports whether h is tracked and not yet released.
func (t *Table) Live(h Handle) bool {
	_, ok := t.b.get(h)
	return ok
}

// Kind returns the kind h was registered with.
func (t *Table) Kind(h Handle) (Kind, bool) {
	e, ok := t.b.get(h)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Get returns the value h was registered with.
func (t *Table) Get(h Handle) (any, bool) {
	e, ok := t.b.get(h)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Borrow registers an alias of h.
func (t *Table) Borrow(h Handle) bool {
	e, ok := t.b.borrow(h)
	if !ok {
		return false
	}
	t.notify(Event{Type: EventBorrowed, Handle: h, Kind: e.kind, Value: e.value})
	return true
}

// ReturnBorrow gives back an alias of h. It reports true when this completed
// a deferred owner drop.
func (t *Table) ReturnBorrow(h Handle) bool {
	e, release, ok := t.b.returnBorrow(h)
	if !ok {
		return false
	}
	t.notify(Event{Type: EventBorrowReturned, Handle: h, Kind: e.kind, Value: e.value})
	if release {
		t.dropped(h, e)
	}
	return release
}

// Drop releases the owner of h. It reports true at most once per Own, and
// false while borrows are outstanding.
func (t *Table) Drop(h Handle) bool {
	e, ok := t.b.drop(h)
	if !ok {
		return false
	}
	t.dropped(h, e)
	return true
}

func (t *Table) dropped(h Handle, e *entry) {
	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, Kind: e.kind, Value: e.value})
}

// Len returns the number of live references.
func (t *Table) Len() int {
	return t.b.len()
}

// Each iterates over live references.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.b.each(func(h Handle, e *entry) bool {
		return fn(h, e.kind, e.value)
	})
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close invalidates every live reference and stops accepting new ones. It
// returns the invalidated keys in ascending order; later calls return nil.
func (t *Table) Close() []Handle {
	entries := t.b.close()
	if len(entries) == 0 {
		return nil
	}

	handles := make([]Handle, 0, len(entries))
	for h := range entries {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	for _, h := range handles {
		e := entries[h]
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
		t.notify(Event{Type: EventInvalidated, Handle: h, Kind: e.kind, Value: e.value})
	}
	return handles
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
