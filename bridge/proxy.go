package bridge

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// TableHandle is a proxy for a table held by reference.
type TableHandle struct {
	*Reference
}

// UserDataHandle is a proxy for a full userdata held by reference.
type UserDataHandle struct {
	*Reference
}

// FunctionHandle is a proxy for a function held by reference.
type FunctionHandle struct {
	*Reference
}

// ThreadHandle is a proxy for a thread held by reference.
type ThreadHandle struct {
	*Reference
}

// getTable and setTable run inside a protected call so that metamethod
// errors come back as call errors.
func getTable(n *native.State) int {
	n.PushValue(2)
	n.GetTable(1)
	return 1
}

func setTable(n *native.State) int {
	n.SetTable(1)
	return 0
}

// Get returns t[key], honouring metamethods. Tables and functions come back
// as owning proxies.
func (r *Reference) Get(key any) (any, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	s := r.state
	n := s.n
	top0 := n.GetTop()

	n.PushGoFunction(s.sh.getFn)
	n.RawGetI(native.RegistryIndex, r.key)
	if err := s.push(key); err != nil {
		n.SetTop(top0)
		return nil, err
	}
	s.sh.enter()
	defer s.sh.leave()
	defer n.SetTop(top0)

	st := n.PCall(2, 1, 0)
	if s.IsClosed() {
		return nil, errors.Disposed(errors.PhaseRef, "state")
	}
	if st != native.OK {
		return nil, s.callError(st, top0)
	}
	return s.toValue(-1)
}

// Set assigns t[key] = value, honouring metamethods.
func (r *Reference) Set(key, value any) error {
	if err := r.check(); err != nil {
		return err
	}
	s := r.state
	n := s.n
	top0 := n.GetTop()

	n.PushGoFunction(s.sh.setFn)
	n.RawGetI(native.RegistryIndex, r.key)
	if err := s.push(key); err != nil {
		n.SetTop(top0)
		return err
	}
	if err := s.push(value); err != nil {
		n.SetTop(top0)
		return err
	}
	s.sh.enter()
	defer s.sh.leave()
	defer n.SetTop(top0)

	st := n.PCall(3, 0, 0)
	if s.IsClosed() {
		return errors.Disposed(errors.PhaseRef, "state")
	}
	if st != native.OK {
		return s.callError(st, top0)
	}
	return nil
}

// Field returns t[name].
func (r *Reference) Field(name string) (any, error) {
	return r.Get(name)
}

// SetField assigns t[name] = value.
func (r *Reference) SetField(name string, value any) error {
	return r.Set(name, value)
}

// Index returns t[i].
func (r *Reference) Index(i int) (any, error) {
	return r.Get(i)
}

// SetIndex assigns t[i] = value.
func (r *Reference) SetIndex(i int, value any) error {
	return r.Set(i, value)
}

// Alias returns a non-owning proxy for the same table.
func (t *TableHandle) Alias() (*TableHandle, error) {
	r, err := t.Reference.Alias()
	if err != nil {
		return nil, err
	}
	return &TableHandle{r}, nil
}

// Len returns the length of the table's sequence part.
func (t *TableHandle) Len() (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	n := t.state.n
	n.RawGetI(native.RegistryIndex, t.key)
	defer n.Pop(1)
	return n.ObjLen(-1), nil
}

// ForEach calls fn for every key-value pair, in the table's own order,
// until fn returns an error. Table and function keys or values are passed
// as proxies which fn must close if it keeps them.
func (t *TableHandle) ForEach(fn func(key, value any) error) error {
	if err := t.check(); err != nil {
		return err
	}
	s := t.state
	n := s.n
	top0 := n.GetTop()
	defer n.SetTop(top0)

	n.RawGetI(native.RegistryIndex, t.key)
	tbl := n.AbsIndex(-1)
	n.PushNil()
	for n.Next(tbl) {
		k, err := s.toValue(-2)
		if err != nil {
			return err
		}
		v, err := s.toValue(-1)
		if err != nil {
			return err
		}
		n.Pop(1)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Alias returns a non-owning proxy for the same userdata.
func (u *UserDataHandle) Alias() (*UserDataHandle, error) {
	r, err := u.Reference.Alias()
	if err != nil {
		return nil, err
	}
	return &UserDataHandle{r}, nil
}

// Value returns the Go payload bound to the userdata.
func (u *UserDataHandle) Value() (any, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	n := u.state.n
	n.RawGetI(native.RegistryIndex, u.key)
	defer n.Pop(1)
	return n.ToUserdata(-1), nil
}

// Alias returns a non-owning proxy for the same function.
func (f *FunctionHandle) Alias() (*FunctionHandle, error) {
	r, err := f.Reference.Alias()
	if err != nil {
		return nil, err
	}
	return &FunctionHandle{r}, nil
}

// Call calls the function in protected mode and returns its results.
func (f *FunctionHandle) Call(args ...any) ([]any, error) {
	return f.CallTyped(nil, args...)
}

// CallTyped calls the function and coerces results to types positionally.
func (f *FunctionHandle) CallTyped(types []reflect.Type, args ...any) ([]any, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	s := f.state
	top0 := s.n.GetTop()
	s.n.RawGetI(native.RegistryIndex, f.key)
	return s.call(top0, types, args)
}

// Native returns the function value.
func (f *FunctionHandle) Native() (*lua.LFunction, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	n := f.state.n
	n.RawGetI(native.RegistryIndex, f.key)
	defer n.Pop(1)
	fn, _ := n.ToLValue(-1).(*lua.LFunction)
	return fn, nil
}

// Alias returns a non-owning proxy for the same thread.
func (t *ThreadHandle) Alias() (*ThreadHandle, error) {
	r, err := t.Reference.Alias()
	if err != nil {
		return nil, err
	}
	return &ThreadHandle{r}, nil
}

// State returns the state hosting the thread. Threads the bridge did not
// create are returned as borrowed views.
func (t *ThreadHandle) State() (*State, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	n := t.state.n
	n.RawGetI(native.RegistryIndex, t.key)
	th := n.ToThread(-1)
	n.Pop(1)
	if th == nil {
		return nil, errors.InvalidData(errors.PhaseRef, nil, "reference no longer holds a thread")
	}
	if s := states.Find(th); s != nil {
		return s, nil
	}
	return t.state.adopt(n.Adopt(th)), nil
}
