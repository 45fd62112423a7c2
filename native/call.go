package native

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luabridge/errors"
)

// GetTable pushes t[k], where t is the value at idx and k the value at the
// top. The key is popped. Metamethods apply.
func (s *State) GetTable(idx int) Type {
	obj := s.ToLValue(idx)
	key := s.ToLValue(-1)
	s.Pop(1)
	v := s.L.GetTable(obj, key)
	s.L.Push(v)
	return typeOf(v)
}

// SetTable does t[k] = v, where t is the value at idx, v the top and k the
// value below it. Both are popped. Metamethods apply.
func (s *State) SetTable(idx int) {
	obj := s.ToLValue(idx)
	key := s.ToLValue(-2)
	val := s.ToLValue(-1)
	s.Pop(2)
	s.L.SetTable(obj, key, val)
}

// GetField pushes t[k] for the string key k.
func (s *State) GetField(idx int, k string) Type {
	v := s.L.GetField(s.ToLValue(idx), k)
	s.L.Push(v)
	return typeOf(v)
}

// SetField does t[k] = v with v popped from the top.
func (s *State) SetField(idx int, k string) {
	obj := s.ToLValue(idx)
	val := s.ToLValue(-1)
	s.Pop(1)
	s.L.SetField(obj, k, val)
}

// RawGetI pushes t[n] without metamethods.
func (s *State) RawGetI(idx int, n int) Type {
	tb := s.table(idx)
	v := tb.RawGetInt(n)
	s.L.Push(v)
	return typeOf(v)
}

// RawSetI does t[n] = v without metamethods, v popped from the top.
func (s *State) RawSetI(idx int, n int) {
	tb := s.table(idx)
	val := s.ToLValue(-1)
	s.Pop(1)
	tb.RawSetInt(n, val)
}

// Next pops a key and pushes the next key-value pair of the table at idx.
// It returns false, pushing nothing, when the traversal is over.
func (s *State) Next(idx int) bool {
	tb := s.table(idx)
	key := s.ToLValue(-1)
	s.Pop(1)
	k, v := tb.Next(key)
	if k == lua.LNil {
		return false
	}
	s.L.Push(k)
	s.L.Push(v)
	return true
}

// GetGlobal pushes the global name.
func (s *State) GetGlobal(name string) Type {
	v := s.L.GetGlobal(name)
	s.L.Push(v)
	return typeOf(v)
}

// SetGlobal pops a value and assigns it to the global name.
func (s *State) SetGlobal(name string) {
	val := s.ToLValue(-1)
	s.Pop(1)
	s.L.SetGlobal(name, val)
}

func (s *State) table(idx int) *lua.LTable {
	tb, ok := s.value(idx).(*lua.LTable)
	if !ok {
		s.L.RaiseError("table expected, got %s", s.Type(idx))
	}
	return tb
}

// freeListKey holds the head of the released-key list. Key 0 is outside the
// array part, so it is read and written through the hash part.
var freeListKey = lua.LNumber(0)

// Ref pops the top value and stores it in the table at t under a fresh
// integer key, which it returns. Nil is never stored and yields RefNil.
// Released keys are reused through a free list kept at t[0].
func (s *State) Ref(t int) int {
	t = s.AbsIndex(t)
	v := lua.LValue(lua.LNil)
	if s.L.GetTop() > 0 {
		v = s.L.Get(-1)
		s.Pop(1)
	}
	if v == lua.LNil {
		return RefNil
	}

	tb := s.table(t)
	var ref int
	if free, ok := tb.RawGetH(freeListKey).(lua.LNumber); ok && free > 0 {
		ref = int(free)
		tb.RawSetH(freeListKey, tb.RawGetInt(ref))
	} else {
		ref = tb.Len() + 1
	}
	tb.RawSetInt(ref, v)
	return ref
}

// Unref releases ref from the table at t. Negative references are ignored.
func (s *State) Unref(t int, ref int) {
	if ref < 0 {
		return
	}
	tb := s.table(t)
	tb.RawSetInt(ref, tb.RawGetH(freeListKey))
	tb.RawSetH(freeListKey, lua.LNumber(ref))
}

// Call calls a function in unprotected mode. The function and nargs
// arguments are popped and nresults results pushed. Errors go to the panic
// function.
func (s *State) Call(nargs, nresults int) {
	s.L.Call(nargs, nresults)
}

// PCall calls a function in protected mode. On error the error object is
// left on the stack in place of the function and arguments. A non-zero
// msgh is the stack index of a message handler.
func (s *State) PCall(nargs, nresults, msgh int) Status {
	var handler *lua.LFunction
	if msgh != 0 {
		handler, _ = s.value(msgh).(*lua.LFunction)
	}
	err := s.L.PCall(nargs, nresults, handler)
	if err == nil {
		return OK
	}
	st := s.pushError(err)
	if handler != nil && st == ErrErr {
		st = ErrRun
	}
	return st
}

// Error raises the value at the top as an error. It never returns normally.
func (s *State) Error() int {
	v := lua.LValue(lua.LNil)
	if s.L.GetTop() > 0 {
		v = s.L.Get(-1)
		s.Pop(1)
	}
	s.L.Error(v, 0)
	return 0
}

// LoadString compiles a chunk and pushes it as a function. On failure the
// error message is pushed instead.
func (s *State) LoadString(src, chunkname string) Status {
	if chunkname == "" {
		chunkname = "<string>"
	}
	fn, err := s.L.Load(strings.NewReader(src), chunkname)
	if err != nil {
		return s.pushError(err)
	}
	s.L.Push(fn)
	return OK
}

// LoadFile compiles a file and pushes it as a function.
func (s *State) LoadFile(path string) Status {
	fn, err := s.L.LoadFile(path)
	if err != nil {
		return s.pushError(err)
	}
	s.L.Push(fn)
	return OK
}

func (s *State) pushError(err error) Status {
	if apiErr, ok := err.(*lua.ApiError); ok {
		if apiErr.Object != nil {
			s.L.Push(apiErr.Object)
		} else {
			s.L.Push(lua.LString(apiErr.Error()))
		}
		return statusOf(apiErr.Type)
	}
	s.L.Push(lua.LString(err.Error()))
	return ErrRun
}

// AtPanic installs fn as the panic function of the VM and returns the
// previous one. A nil fn restores the VM's own behaviour. The panic function
// runs with the error object on top of the stack when an error escapes every
// protected call. If it returns, the host is aborted with an
// errors.PanicError.
func (s *State) AtPanic(fn CFunction) CFunction {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	prev := s.g.panicFn
	s.g.panicFn = fn
	return prev
}

func (g *global) dispatch(L *lua.LState) {
	g.mu.Lock()
	fn := g.panicFn
	g.mu.Unlock()

	if fn == nil {
		g.orig(L)
		return
	}

	s := g.state(L)
	fn(s)
	msg, _ := s.ToString(-1)
	panic(errors.Abort(msg))
}
