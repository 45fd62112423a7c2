package bridge

import (
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
	"github.com/wippyai/luabridge/resource"
)

// hostedKey marks a VM registry as hosted by a bridge.
const hostedKey = "luabridge.hosted"

// Config configures a new State.
type Config struct {
	// Logger receives the state's diagnostics. Nil uses the package Logger.
	Logger *zap.Logger

	// Extension is an optional host-extension service. Its capabilities are
	// discovered by type assertion (Pusher, Converter, TableProvider,
	// UserDataProvider, FunctionProvider).
	Extension any

	// SkipOpenLibs leaves the standard libraries closed.
	SkipOpenLibs bool

	// CallStackSize bounds the call depth. 0 uses the VM default.
	CallStackSize int

	// RegistrySize is the initial value stack size. 0 uses the VM default.
	RegistrySize int
}

// State hosts one VM handle: a root state or a thread of it.
type State struct {
	n      *native.State
	sh     *shared
	parent *State
	owned  bool
	closed atomic.Bool
}

// shared is the per-VM data of a root state and all its threads.
type shared struct {
	root  *State
	log   *zap.Logger
	ext   any
	funcs *funcCache
	refs  *resource.Table

	getFn *lua.LFunction
	setFn *lua.LFunction

	hookMu    sync.Mutex
	hooks     []PanicHook
	unwinding atomic.Bool

	childMu  sync.Mutex
	children map[*State]struct{}

	// active counts bridge calls and callbacks running on the VM. A root
	// closed while it is non-zero keeps its handle until the outermost
	// bridge call returns.
	active      atomic.Int32
	closeQueued atomic.Bool

	closed atomic.Bool
}

// New creates a VM with the standard libraries open and hosts it.
func New() (*State, error) {
	return NewWithConfig(nil)
}

// NewWithConfig creates a VM configured by cfg and hosts it.
func NewWithConfig(cfg *Config) (*State, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	n := native.NewState(native.Options{
		OpenLibs:      !cfg.SkipOpenLibs,
		CallStackSize: cfg.CallStackSize,
		RegistrySize:  cfg.RegistrySize,
	})
	s, err := attach(n, true, cfg)
	if err != nil {
		n.Close()
		return nil, err
	}
	return s, nil
}

// Attach hosts an existing VM handle. An owned handle is closed with the
// state; a borrowed one is left open and unmarked. A handle can be hosted by
// one state at a time.
func Attach(L *lua.LState, owned bool) (*State, error) {
	return AttachWithConfig(L, owned, nil)
}

// AttachWithConfig is Attach with a configuration. Library and size options
// are ignored since the VM already exists.
func AttachWithConfig(L *lua.LState, owned bool, cfg *Config) (*State, error) {
	if L == nil {
		return nil, errors.NilPointer(errors.PhaseState, "*lua.LState")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return attach(native.Wrap(L), owned, cfg)
}

func attach(n *native.State, owned bool, cfg *Config) (*State, error) {
	if hosted(n) {
		return nil, errors.AlreadyHosted()
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	sh := &shared{
		log:      log,
		ext:      cfg.Extension,
		funcs:    newFuncCache(),
		refs:     resource.NewTable(),
		children: make(map[*State]struct{}),
	}
	s := &State{n: n, sh: sh, owned: owned}
	sh.root = s

	if err := states.Register(n.L, s); err != nil {
		return nil, err
	}

	sh.getFn = n.NewFunction(getTable)
	sh.setFn = n.NewFunction(setTable)
	setHosted(n, true)
	n.AtPanic(sh.onPanic)

	log.Debug("state attached", zap.Bool("owned", owned))
	return s, nil
}

func hosted(n *native.State) bool {
	n.PushString(hostedKey)
	n.GetTable(native.RegistryIndex)
	ok := n.ToBoolean(-1)
	n.Pop(1)
	return ok
}

func setHosted(n *native.State, on bool) {
	n.PushString(hostedKey)
	if on {
		n.PushBoolean(true)
	} else {
		n.PushNil()
	}
	n.SetTable(native.RegistryIndex)
}

// NewThread creates a thread of the VM with its own stack. The thread is
// closed with its root.
func (s *State) NewThread() (*State, error) {
	if err := s.check(errors.PhaseState); err != nil {
		return nil, err
	}

	tn := s.n.NewThread()
	s.n.Pop(1)

	t := &State{n: tn, sh: s.sh, parent: s.sh.root, owned: true}
	if err := states.Register(tn.L, t); err != nil {
		tn.Close()
		return nil, err
	}
	s.sh.childMu.Lock()
	s.sh.children[t] = struct{}{}
	s.sh.childMu.Unlock()
	return t, nil
}

// adopt returns a borrowed view of a thread the VM created on its own, such
// as a coroutine calling back into Go. The view is not registered.
func (s *State) adopt(n *native.State) *State {
	s.sh.log.Debug("adopting foreign thread")
	return &State{n: n, sh: s.sh, parent: s.sh.root}
}

// resolve finds the live state for a native handle, adopting unknown threads
// of a hosted VM.
func resolve(n *native.State) *State {
	if n == nil {
		return nil
	}
	if s := states.Find(n.L); s != nil {
		if s.IsClosed() {
			return nil
		}
		return s
	}
	root := states.Root(n.L.G)
	if root == nil || root.IsClosed() {
		return nil
	}
	return root.adopt(n)
}

// Close releases the state. Closing a root closes every thread and
// invalidates every reference; closing again is a no-op. A root closed from
// inside a callback reports disposed at once, but its handle is closed only
// when the outermost bridge call returns.
func (s *State) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.parent != nil {
		s.sh.childMu.Lock()
		delete(s.sh.children, s)
		s.sh.childMu.Unlock()
		states.Unregister(s.n.L, s)
		if s.owned && !s.sh.closed.Load() {
			s.n.Close()
		}
		return nil
	}

	sh := s.sh
	sh.closed.Store(true)

	sh.childMu.Lock()
	children := sh.children
	sh.children = make(map[*State]struct{})
	sh.childMu.Unlock()
	for c := range children {
		c.closed.Store(true)
		states.Unregister(c.n.L, c)
	}

	if leaked := sh.refs.Close(); len(leaked) > 0 {
		sh.log.Warn("references outstanding at close", zap.Int("count", len(leaked)))
	}
	sh.funcs.clear()
	states.Unregister(s.n.L, s)

	if sh.active.Load() > 0 {
		sh.closeQueued.Store(true)
		sh.log.Debug("state close deferred until running calls return")
		return nil
	}
	s.closeHandle()
	return nil
}

// closeHandle closes an owned VM, or hands a borrowed one back unmarked.
func (s *State) closeHandle() {
	if s.owned {
		s.n.Close()
	} else {
		setHosted(s.n, false)
		s.n.Release()
	}
	s.sh.log.Debug("state closed", zap.Bool("owned", s.owned))
}

// enter marks a bridge call as running on the VM.
func (sh *shared) enter() {
	sh.active.Add(1)
}

// leave ends a bridge call. The last one out finishes a queued close.
func (sh *shared) leave() {
	if sh.active.Add(-1) == 0 && sh.closeQueued.CompareAndSwap(true, false) {
		sh.root.closeHandle()
	}
}

// leaveCallback ends a callback. The VM is still running its caller, so a
// queued close is left to the enclosing bridge call.
func (sh *shared) leaveCallback() {
	if sh.active.Add(-1) == 0 && sh.closeQueued.Load() {
		sh.log.Warn("state closed inside a callback not run by the bridge, handle left open")
	}
}

// IsClosed reports whether the state, or the root it belongs to, is closed.
func (s *State) IsClosed() bool {
	return s.closed.Load() || s.sh.closed.Load()
}

// IsThread reports whether the state is a thread of another state.
func (s *State) IsThread() bool {
	return s.parent != nil
}

// Root returns the root state of the VM.
func (s *State) Root() *State {
	return s.sh.root
}

// Owned reports whether the state closes its handle.
func (s *State) Owned() bool {
	return s.owned
}

// Extension returns the host-extension service the state was created with.
func (s *State) Extension() any {
	return s.sh.ext
}

// Handle returns the VM handle.
func (s *State) Handle() (*lua.LState, error) {
	if err := s.check(errors.PhaseState); err != nil {
		return nil, err
	}
	return s.n.L, nil
}

// Native returns the native ABI view of the handle.
func (s *State) Native() (*native.State, error) {
	if err := s.check(errors.PhaseState); err != nil {
		return nil, err
	}
	return s.n, nil
}

// References returns the number of live references held by the host.
func (s *State) References() int {
	return s.sh.refs.Len()
}

// Subscribe adds an observer of reference lifecycle events.
func (s *State) Subscribe(o resource.Observer) {
	s.sh.refs.Subscribe(o)
}

// Unsubscribe removes an observer.
func (s *State) Unsubscribe(o resource.Observer) {
	s.sh.refs.Unsubscribe(o)
}

func (s *State) check(phase errors.Phase) error {
	if s == nil {
		return errors.NilPointer(phase, "*bridge.State")
	}
	if s.IsClosed() {
		return errors.Disposed(phase, "state")
	}
	return nil
}

func (s *State) sameVM(o *State) bool {
	return o != nil && o.sh == s.sh
}
