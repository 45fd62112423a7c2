package bridge

import (
	"reflect"

	"github.com/wippyai/luabridge/bridge/internal/coerce"
	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// CallFunction calls a host function through the VM in protected mode and
// returns its results converted with ToValue.
func (s *State) CallFunction(fn Function, args ...any) ([]any, error) {
	return s.CallFunctionTyped(fn, nil, args...)
}

// CallFunctionTyped is CallFunction with results coerced to types. Exactly
// len(types) results are returned: missing or unconvertible results are the
// zero value of their type. An empty types list returns every result
// unconverted, like CallFunction.
func (s *State) CallFunctionTyped(fn Function, types []reflect.Type, args ...any) ([]any, error) {
	if err := s.check(errors.PhaseCall); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "function must not be nil")
	}
	top0 := s.n.GetTop()
	if err := s.pushFunction(fn); err != nil {
		s.n.SetTop(top0)
		return nil, err
	}
	return s.call(top0, types, args)
}

// CallValue calls the value registered under key.
func (s *State) CallValue(key int, args ...any) ([]any, error) {
	return s.CallValueTyped(key, nil, args...)
}

// CallValueTyped calls the value registered under key and coerces the results
// like CallFunctionTyped.
func (s *State) CallValueTyped(key int, types []reflect.Type, args ...any) ([]any, error) {
	if err := s.check(errors.PhaseCall); err != nil {
		return nil, err
	}
	top0 := s.n.GetTop()
	if key < 0 {
		s.n.PushNil()
	} else {
		s.n.RawGetI(native.RegistryIndex, key)
	}
	return s.call(top0, types, args)
}

// call runs the function at top0+1 with args. The stack is back at top0 when
// it returns.
func (s *State) call(top0 int, types []reflect.Type, args []any) ([]any, error) {
	n := s.n
	for _, a := range args {
		if err := s.push(a); err != nil {
			n.SetTop(top0)
			return nil, err
		}
	}

	s.sh.enter()
	defer s.sh.leave()
	defer n.SetTop(top0)

	st := n.PCall(len(args), native.MultiReturns, 0)
	if s.IsClosed() {
		return nil, errors.Disposed(errors.PhaseCall, "state")
	}
	if st != native.OK {
		return nil, s.callError(st, top0)
	}

	nres := n.GetTop() - top0
	if len(types) > 0 {
		return s.typedResults(top0, nres, types)
	}

	out := make([]any, nres)
	for i := range out {
		v, err := s.toValue(top0 + 1 + i)
		if err != nil {
			closeAll(out[:i])
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *State) typedResults(top0, nres int, types []reflect.Type) ([]any, error) {
	out := make([]any, len(types))
	for i, t := range types {
		var v any
		if i < nres {
			var err error
			if v, err = s.toValue(top0 + 1 + i); err != nil {
				closeAll(out[:i])
				return nil, err
			}
		}
		rv, ok := coerce.To(v, t)
		if !ok {
			closeAll([]any{v})
		}
		out[i] = rv.Interface()
	}
	return out, nil
}

func closeAll(vs []any) {
	for _, v := range vs {
		if c, ok := v.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// callError turns the error object left by a failed protected call into a
// LuaError and restores the stack to top0.
func (s *State) callError(st native.Status, top0 int) error {
	n := s.n
	msg := errors.UnknownLuaError
	if str, ok := n.ToString(-1); ok {
		msg = str
	}
	v, _ := s.toObject(-1)
	n.SetTop(top0)
	return &errors.LuaError{Message: msg, Status: int(st), Value: v}
}

// LoadString compiles chunk without running it and returns the resulting
// function. An empty name is reported as "<string>" in messages.
func (s *State) LoadString(chunk, name string) (*FunctionHandle, error) {
	if err := s.check(errors.PhaseLoad); err != nil {
		return nil, err
	}
	top0 := s.n.GetTop()
	if st := s.n.LoadString(chunk, name); st != native.OK {
		return nil, s.callError(st, top0)
	}
	defer s.n.SetTop(top0)
	return s.toFunction(-1)
}

// LoadFile compiles the file at path without running it.
func (s *State) LoadFile(path string) (*FunctionHandle, error) {
	if err := s.check(errors.PhaseLoad); err != nil {
		return nil, err
	}
	top0 := s.n.GetTop()
	if st := s.n.LoadFile(path); st != native.OK {
		return nil, s.callError(st, top0)
	}
	defer s.n.SetTop(top0)
	return s.toFunction(-1)
}

// DoString compiles and runs chunk, returning its results.
func (s *State) DoString(chunk string) ([]any, error) {
	if err := s.check(errors.PhaseLoad); err != nil {
		return nil, err
	}
	top0 := s.n.GetTop()
	if st := s.n.LoadString(chunk, "script"); st != native.OK {
		return nil, s.callError(st, top0)
	}
	return s.call(top0, nil, nil)
}

// DoFile compiles and runs the file at path, returning its results.
func (s *State) DoFile(path string) ([]any, error) {
	if err := s.check(errors.PhaseLoad); err != nil {
		return nil, err
	}
	top0 := s.n.GetTop()
	if st := s.n.LoadFile(path); st != native.OK {
		return nil, s.callError(st, top0)
	}
	return s.call(top0, nil, nil)
}
