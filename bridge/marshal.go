package bridge

import (
	"fmt"
	"unsafe"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// Push pushes a Go value onto the stack.
//
//	nil                         nil
//	bool                        boolean
//	integers, floats            number
//	string, []byte              string
//	Function, func(*State) int  function (wrapped, see WrapFunction)
//	*lua.LFunction, lua.LValue  as is
//	*State, *lua.LState         thread (same VM only)
//	proxies, *Reference         the referenced value (same VM only)
//	unsafe.Pointer              light userdata
//
// Other values go to the extension's Pusher; without one they are rejected.
// Raw tables and functions carry no VM identity and are pushed unchecked.
func (s *State) Push(v any) error {
	if err := s.check(errors.PhasePush); err != nil {
		return err
	}
	return s.push(v)
}

func (s *State) push(v any) error {
	n := s.n
	switch v := v.(type) {
	case nil:
		n.PushNil()
	case bool:
		n.PushBoolean(v)
	case int:
		n.PushInteger(int64(v))
	case int8:
		n.PushInteger(int64(v))
	case int16:
		n.PushInteger(int64(v))
	case int32:
		n.PushInteger(int64(v))
	case int64:
		n.PushInteger(v)
	case uint:
		n.PushNumber(float64(v))
	case uint8:
		n.PushInteger(int64(v))
	case uint16:
		n.PushInteger(int64(v))
	case uint32:
		n.PushInteger(int64(v))
	case uint64:
		n.PushNumber(float64(v))
	case uintptr:
		n.PushNumber(float64(v))
	case float32:
		n.PushNumber(float64(v))
	case float64:
		n.PushNumber(v)
	case string:
		n.PushString(v)
	case []byte:
		n.PushString(string(v))
	case Function:
		return s.pushFunction(v)
	case func(*State) int:
		return s.pushFunction(v)
	case *lua.LFunction:
		n.PushGoFunction(v)
	case *State:
		if v == nil {
			n.PushNil()
			return nil
		}
		if !s.sameVM(v) {
			return errors.ForeignState(errors.PhasePush, "*bridge.State")
		}
		if v.IsClosed() {
			return errors.Disposed(errors.PhasePush, "thread")
		}
		n.PushLValue(v.n.L)
	case *Reference:
		return s.pushRef(v)
	case *TableHandle:
		if v == nil {
			n.PushNil()
			return nil
		}
		return s.pushRef(v.Reference)
	case *UserDataHandle:
		if v == nil {
			n.PushNil()
			return nil
		}
		return s.pushRef(v.Reference)
	case *FunctionHandle:
		if v == nil {
			n.PushNil()
			return nil
		}
		return s.pushRef(v.Reference)
	case *ThreadHandle:
		if v == nil {
			n.PushNil()
			return nil
		}
		return s.pushRef(v.Reference)
	case unsafe.Pointer:
		n.PushLightUserdata(v)
	case *lua.LState:
		if v == nil {
			n.PushNil()
			return nil
		}
		if v.G != n.L.G {
			return errors.ForeignState(errors.PhasePush, "*lua.LState")
		}
		n.PushLValue(v)
	case lua.LValue:
		n.PushLValue(v)
	default:
		if p, ok := s.sh.ext.(Pusher); ok {
			handled, err := p.Push(s, v)
			if err != nil {
				return err
			}
			if handled {
				return nil
			}
		}
		return errors.New(errors.PhasePush, errors.KindUnsupported).
			GoType(fmt.Sprintf("%T", v)).
			Detail("no Lua representation").
			Build()
	}
	return nil
}

func (s *State) pushFunction(f Function) error {
	if f == nil {
		s.n.PushNil()
		return nil
	}
	fn, err := s.WrapFunction(f)
	if err != nil {
		return err
	}
	s.n.PushGoFunction(fn)
	return nil
}

// ToObject converts the value at idx without creating references.
//
//	none, nil        nil
//	boolean          bool
//	number           float64
//	string           string
//	light userdata   unsafe.Pointer
//	userdata         its payload
//
// Tables, functions, threads and channels are handed to the extension's
// Converter; without one they are unsupported. Use ToValue or the typed
// accessors for proxies.
func (s *State) ToObject(idx int) (any, error) {
	if err := s.check(errors.PhaseConvert); err != nil {
		return nil, err
	}
	return s.toObject(idx)
}

func (s *State) toObject(idx int) (any, error) {
	n := s.n
	tp := n.Type(idx)
	switch tp {
	case native.TypeNone, native.TypeNil:
		return nil, nil
	case native.TypeBoolean:
		return n.ToBoolean(idx), nil
	case native.TypeNumber:
		f, _ := n.ToNumberX(idx)
		return f, nil
	case native.TypeString:
		str, _ := n.ToString(idx)
		return str, nil
	case native.TypeLightUserdata:
		return n.ToUserdata(idx), nil
	}

	if v, ok, err := s.convertExt(idx, tp); ok || err != nil {
		return v, err
	}
	if tp == native.TypeUserdata {
		return n.ToUserdata(idx), nil
	}
	return nil, errors.New(errors.PhaseConvert, errors.KindUnsupported).
		LuaType(tp.String()).
		Detail("no direct Go representation, use a typed accessor").
		Build()
}

func (s *State) convertExt(idx int, tp native.Type) (any, bool, error) {
	c, ok := s.sh.ext.(Converter)
	if !ok {
		return nil, false, nil
	}
	return c.Convert(s, s.n.AbsIndex(idx), tp)
}

// ToValue converts the value at idx, creating owning proxies for tables,
// functions, threads and bound userdata. The extension's Converter is asked
// first. Proxies must be closed by the caller.
func (s *State) ToValue(idx int) (any, error) {
	if err := s.check(errors.PhaseConvert); err != nil {
		return nil, err
	}
	return s.toValue(idx)
}

func (s *State) toValue(idx int) (any, error) {
	n := s.n
	tp := n.Type(idx)
	switch tp {
	case native.TypeTable, native.TypeFunction, native.TypeThread, native.TypeUserdata:
		if v, ok, err := s.convertExt(idx, tp); ok || err != nil {
			return v, err
		}
	}

	switch tp {
	case native.TypeTable:
		return nilIfErr(s.toTable(idx))
	case native.TypeFunction:
		return nilIfErr(s.toFunction(idx))
	case native.TypeThread:
		return nilIfErr(s.toThread(idx))
	case native.TypeUserdata:
		if n.IsUserdata(idx) {
			return nilIfErr(s.toUserData(idx))
		}
	}
	return s.toObject(idx)
}

func nilIfErr[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}
