package bridge

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
	"github.com/wippyai/luabridge/resource"
)

// NewRef pops the top value into the registry and returns its key, or
// native.RefNil for nil. The key is not tracked: release it with Unref.
func (s *State) NewRef() (int, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return native.NoRef, err
	}
	return s.n.Ref(native.RegistryIndex), nil
}

// PushRef pushes the value registered under key. The registration stays.
func (s *State) PushRef(key int) error {
	if err := s.check(errors.PhaseRef); err != nil {
		return err
	}
	if key < 0 {
		s.n.PushNil()
		return nil
	}
	s.n.RawGetI(native.RegistryIndex, key)
	return nil
}

// Unref releases a key obtained from NewRef.
func (s *State) Unref(key int) error {
	if err := s.check(errors.PhaseRef); err != nil {
		return err
	}
	s.n.Unref(native.RegistryIndex, key)
	return nil
}

// Reference pins a VM value in the registry on behalf of the host. An owning
// reference releases the registry slot on Close; an alias only gives back
// its borrow. Close is idempotent.
type Reference struct {
	state    *State
	key      int
	kind     resource.Kind
	owned    bool
	released atomic.Bool
}

// Ref pins the value at idx and returns an owning reference to it.
func (s *State) Ref(idx int) (*Reference, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	return s.newRef(idx, resource.KindValue)
}

func (s *State) newRef(idx int, kind resource.Kind) (*Reference, error) {
	root := s.sh.root
	s.n.PushValue(idx)
	key := s.n.Ref(native.RegistryIndex)
	if key == native.RefNil {
		return nil, errors.InvalidInput(errors.PhaseRef, "cannot reference nil")
	}
	if err := s.sh.refs.Own(resource.Handle(key), kind, nil); err != nil {
		s.n.Unref(native.RegistryIndex, key)
		return nil, errors.Wrap(errors.PhaseRef, errors.KindInvalidData, err, "track reference")
	}

	r := &Reference{state: root, key: key, kind: kind, owned: true}
	log := s.sh.log
	runtime.SetFinalizer(r, func(r *Reference) {
		if !r.released.Load() && !r.state.IsClosed() {
			log.Warn("reference leaked", zap.Int("key", r.key), zap.Stringer("kind", r.kind))
		}
	})
	return r, nil
}

// Key returns the registry key.
func (r *Reference) Key() int {
	return r.key
}

// Host returns the root state the reference belongs to.
func (r *Reference) Host() *State {
	return r.state
}

// Owned reports whether closing the reference releases the registry slot.
func (r *Reference) Owned() bool {
	return r.owned
}

// Valid reports whether the reference can still be used.
func (r *Reference) Valid() bool {
	return r.check() == nil
}

func (r *Reference) check() error {
	if r == nil {
		return errors.NilPointer(errors.PhaseRef, "*bridge.Reference")
	}
	if r.state.IsClosed() {
		return errors.Disposed(errors.PhaseRef, "state")
	}
	if r.released.Load() || !r.state.sh.refs.Live(resource.Handle(r.key)) {
		return errors.Disposed(errors.PhaseRef, "reference")
	}
	return nil
}

// Push pushes the referenced value onto s.
func (r *Reference) Push(s *State) error {
	if err := s.check(errors.PhasePush); err != nil {
		return err
	}
	return s.pushRef(r)
}

func (s *State) pushRef(r *Reference) error {
	if r == nil {
		s.n.PushNil()
		return nil
	}
	if !s.sameVM(r.state) {
		return errors.ForeignState(errors.PhasePush, "*bridge.Reference")
	}
	if err := r.check(); err != nil {
		return err
	}
	s.n.RawGetI(native.RegistryIndex, r.key)
	return nil
}

// Alias returns a non-owning reference to the same value. The registry slot
// stays pinned until both the owner and every alias are closed.
func (r *Reference) Alias() (*Reference, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if !r.state.sh.refs.Borrow(resource.Handle(r.key)) {
		return nil, errors.Disposed(errors.PhaseRef, "reference")
	}
	return &Reference{state: r.state, key: r.key, kind: r.kind}, nil
}

// Close releases the reference. Closing twice, or after the state closed,
// is a no-op.
func (r *Reference) Close() error {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(r, nil)

	refs := r.state.sh.refs
	h := resource.Handle(r.key)
	var release bool
	if r.owned {
		release = refs.Drop(h)
	} else {
		release = refs.ReturnBorrow(h)
	}
	if release && !r.state.IsClosed() {
		r.state.n.Unref(native.RegistryIndex, r.key)
	}
	return nil
}

// ToTable returns a proxy for the table at idx, or nil if it is not a table.
func (s *State) ToTable(idx int) (*TableHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	return s.toTable(idx)
}

func (s *State) toTable(idx int) (*TableHandle, error) {
	if s.n.Type(idx) != native.TypeTable {
		return nil, nil
	}
	if p, ok := s.sh.ext.(TableProvider); ok {
		if t, ok := p.ProvideTable(s, s.n.AbsIndex(idx)); ok {
			return t, nil
		}
	}
	r, err := s.newRef(idx, resource.KindTable)
	if err != nil {
		return nil, err
	}
	return &TableHandle{r}, nil
}

// ToUserData returns a proxy for the userdata at idx, or nil if it is not a
// full userdata.
func (s *State) ToUserData(idx int) (*UserDataHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	return s.toUserData(idx)
}

func (s *State) toUserData(idx int) (*UserDataHandle, error) {
	if s.n.Type(idx) != native.TypeUserdata {
		return nil, nil
	}
	if p, ok := s.sh.ext.(UserDataProvider); ok {
		if u, ok := p.ProvideUserData(s, s.n.AbsIndex(idx)); ok {
			return u, nil
		}
	}
	r, err := s.newRef(idx, resource.KindUserData)
	if err != nil {
		return nil, err
	}
	return &UserDataHandle{r}, nil
}

// ToFunction returns a proxy for the function at idx, or nil if it is not a
// function.
func (s *State) ToFunction(idx int) (*FunctionHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	return s.toFunction(idx)
}

func (s *State) toFunction(idx int) (*FunctionHandle, error) {
	if s.n.Type(idx) != native.TypeFunction {
		return nil, nil
	}
	if p, ok := s.sh.ext.(FunctionProvider); ok {
		if f, ok := p.ProvideFunction(s, s.n.AbsIndex(idx)); ok {
			return f, nil
		}
	}
	r, err := s.newRef(idx, resource.KindFunction)
	if err != nil {
		return nil, err
	}
	return &FunctionHandle{r}, nil
}

// ToThread returns a proxy for the thread at idx, or nil if it is not a
// thread.
func (s *State) ToThread(idx int) (*ThreadHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	return s.toThread(idx)
}

func (s *State) toThread(idx int) (*ThreadHandle, error) {
	if s.n.Type(idx) != native.TypeThread {
		return nil, nil
	}
	r, err := s.newRef(idx, resource.KindThread)
	if err != nil {
		return nil, err
	}
	return &ThreadHandle{r}, nil
}

// NewTable creates an empty table and returns a proxy for it.
func (s *State) NewTable() (*TableHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	s.n.NewTable()
	defer s.n.Pop(1)
	r, err := s.newRef(-1, resource.KindTable)
	if err != nil {
		return nil, err
	}
	return &TableHandle{r}, nil
}

// NewUserData boxes v in a full userdata and returns a proxy for it.
func (s *State) NewUserData(v any) (*UserDataHandle, error) {
	if err := s.check(errors.PhaseRef); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.InvalidInput(errors.PhaseRef, "userdata payload must not be nil")
	}
	s.n.NewUserdata(v)
	defer s.n.Pop(1)
	r, err := s.newRef(-1, resource.KindUserData)
	if err != nil {
		return nil, err
	}
	return &UserDataHandle{r}, nil
}
