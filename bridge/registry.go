package bridge

import (
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luabridge/errors"
)

// Registry maps VM handles to the states hosting them. Lookups are safe from
// any goroutine, including callbacks running on threads the VM created.
type Registry struct {
	states sync.Map // *lua.LState -> *State
	roots  sync.Map // *lua.Global -> *State
	count  atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// states is the process-wide registry used by every State.
var states = NewRegistry()

// Lookup returns the state hosting L, or nil.
func Lookup(L *lua.LState) *State {
	return states.Find(L)
}

// Register records s as the host of L. Root states are also indexed by
// their VM so that callbacks on unknown threads of the same VM resolve.
func (r *Registry) Register(L *lua.LState, s *State) error {
	if L == nil {
		return errors.NilPointer(errors.PhaseState, "*lua.LState")
	}
	if s == nil {
		return errors.NilPointer(errors.PhaseState, "*bridge.State")
	}
	if _, loaded := r.states.LoadOrStore(L, s); loaded {
		return errors.AlreadyHosted()
	}
	r.count.Add(1)
	if s.parent == nil {
		r.roots.Store(L.G, s)
	}
	return nil
}

// Find returns the state registered for L, or nil.
func (r *Registry) Find(L *lua.LState) *State {
	if L == nil {
		return nil
	}
	v, ok := r.states.Load(L)
	if !ok {
		return nil
	}
	return v.(*State)
}

// Root returns the root state hosting the VM g, or nil.
func (r *Registry) Root(g *lua.Global) *State {
	if g == nil {
		return nil
	}
	v, ok := r.roots.Load(g)
	if !ok {
		return nil
	}
	return v.(*State)
}

// Unregister removes L if it is still registered to s.
func (r *Registry) Unregister(L *lua.LState, s *State) {
	if L == nil {
		return
	}
	if r.states.CompareAndDelete(L, s) {
		r.count.Add(-1)
	}
	if s != nil && s.parent == nil {
		r.roots.CompareAndDelete(L.G, s)
	}
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
