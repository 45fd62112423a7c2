package native

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// CFunction is a function callable by the VM through the native ABI.
// It receives the state it runs on and returns the number of results it
// left on top of the stack.
type CFunction func(s *State) int

// Options configures a new VM.
type Options struct {
	// OpenLibs opens the standard libraries.
	OpenLibs bool

	// CallStackSize bounds the call depth. Zero uses the VM default.
	CallStackSize int

	// RegistrySize is the initial value stack size. Zero uses the VM default.
	RegistrySize int
}

// global is the data shared by a VM's main state and all its threads.
type global struct {
	mu      sync.Mutex
	main    *lua.LState
	orig    func(*lua.LState)
	panicFn CFunction
	states  map[*lua.LState]*State
}

var globals sync.Map // *lua.Global -> *global

// State is a VM handle viewed through the native ABI.
type State struct {
	L *lua.LState
	g *global
}

// NewState creates a VM and returns its main state.
func NewState(opts Options) *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  !opts.OpenLibs,
		CallStackSize: opts.CallStackSize,
		RegistrySize:  opts.RegistrySize,
	})
	s := Wrap(L)
	Logger().Debug("vm created", zap.Bool("libs", opts.OpenLibs))
	return s
}

// Wrap returns the native view of an existing handle. The first handle
// wrapped for a VM is treated as its main state. Wrapping installs the panic
// dispatcher on the handle.
func Wrap(L *lua.LState) *State {
	if L == nil {
		return nil
	}

	g := &global{main: L, orig: L.Panic, states: make(map[*lua.LState]*State)}
	if actual, loaded := globals.LoadOrStore(L.G, g); loaded {
		g = actual.(*global)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[L]; ok {
		return s
	}
	s := &State{L: L, g: g}
	g.states[L] = s
	L.Panic = g.dispatch
	return s
}

// state returns the wrapper for L, or a transient one for threads the
// native layer never created.
func (g *global) state(L *lua.LState) *State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[L]; ok {
		return s
	}
	return &State{L: L, g: g}
}

// Adopt returns the native view of a thread of the same VM, such as a
// coroutine created by a script. Unlike Wrap it leaves the thread's panic
// handling alone. It returns nil for handles of other VMs.
func (s *State) Adopt(L *lua.LState) *State {
	if L == nil || L.G != s.L.G {
		return nil
	}
	return s.g.state(L)
}

// IsMain reports whether s is the main state of its VM.
func (s *State) IsMain() bool {
	return s.L == s.g.main
}

// Main returns the main state of the VM s belongs to.
func (s *State) Main() *State {
	return s.g.state(s.g.main)
}

// SameVM reports whether s and other share a VM.
func (s *State) SameVM(other *State) bool {
	return other != nil && s.g == other.g
}

// NewThread creates a thread sharing the VM, pushes it and returns it.
func (s *State) NewThread() *State {
	th, _ := s.L.NewThread()
	th.Panic = s.g.dispatch

	t := &State{L: th, g: s.g}
	s.g.mu.Lock()
	s.g.states[th] = t
	s.g.mu.Unlock()

	s.L.Push(th)
	return t
}

// Close releases the handle. Closing the main state closes the VM; closing a
// thread only forgets it.
func (s *State) Close() {
	s.g.mu.Lock()
	delete(s.g.states, s.L)
	main := s.L == s.g.main
	if main {
		s.g.states = make(map[*lua.LState]*State)
	}
	s.g.mu.Unlock()

	if !main {
		return
	}
	globals.Delete(s.L.G)
	s.L.Close()
	Logger().Debug("vm closed")
}

// Release detaches the native layer from a VM it does not own. Every
// wrapped handle gets its original panic function back and the VM is
// forgotten, so a later Wrap starts afresh. The handles stay open.
func (s *State) Release() {
	g := s.g
	g.mu.Lock()
	for L := range g.states {
		L.Panic = g.orig
	}
	s.L.Panic = g.orig
	g.states = make(map[*lua.LState]*State)
	g.panicFn = nil
	g.mu.Unlock()

	globals.CompareAndDelete(s.L.G, g)
	Logger().Debug("vm released")
}
