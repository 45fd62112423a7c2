package native

import (
	"fmt"
	"unsafe"

	lua "github.com/yuin/gopher-lua"
)

// Pseudo-indices and sentinels of the native ABI. These are fixed by the VM
// and must not be computed.
const (
	// FirstPseudoIndex is the largest pseudo-index; every index at or below
	// it addresses a location that is not a stack slot.
	FirstPseudoIndex = lua.RegistryIndex

	// RegistryIndex is the pseudo-index of the registry table.
	RegistryIndex = lua.RegistryIndex

	// EnvironIndex is the pseudo-index of the running function's environment.
	EnvironIndex = lua.EnvironIndex

	// GlobalsIndex is the pseudo-index of the globals table.
	GlobalsIndex = lua.GlobalsIndex

	// MultiReturns is the result-count sentinel meaning "all results".
	MultiReturns = lua.MultRet

	// MinStack is the number of slots a native function may always push.
	MinStack = 20

	// RefNil is the reference returned for a nil value.
	RefNil = -1

	// NoRef is a reference that never refers to anything.
	NoRef = -2

	// Version is the language version implemented by the VM (5.1).
	Version = 501
)

// Type is the dynamic type tag of a stack value.
type Type int

const (
	TypeNone          Type = -1
	TypeNil           Type = 0
	TypeBoolean       Type = 1
	TypeLightUserdata Type = 2
	TypeNumber        Type = 3
	TypeString        Type = 4
	TypeTable         Type = 5
	TypeFunction      Type = 6
	TypeUserdata      Type = 7
	TypeThread        Type = 8
	// TypeChannel is the VM's channel extension; it has no C counterpart.
	TypeChannel Type = 9
)

// String returns the name of the type as Lua's type() would report it.
func (tp Type) String() string {
	switch tp {
	case TypeNone:
		return "no value"
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeLightUserdata, TypeUserdata:
		return "userdata"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeThread:
		return "thread"
	case TypeChannel:
		return "channel"
	default:
		return fmt.Sprintf("Type(%d)", int(tp))
	}
}

// Status is the result code of calls and loads.
type Status int

const (
	OK        Status = 0
	Yield     Status = 1
	ErrRun    Status = 2
	ErrSyntax Status = 3
	ErrMem    Status = 4
	ErrGCMM   Status = 5
	ErrErr    Status = 6
	ErrFile   Status = 7
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Yield:
		return "yield"
	case ErrRun:
		return "runtime error"
	case ErrSyntax:
		return "syntax error"
	case ErrMem:
		return "memory error"
	case ErrGCMM:
		return "gc metamethod error"
	case ErrErr:
		return "error handler error"
	case ErrFile:
		return "file error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func statusOf(t lua.ApiErrorType) Status {
	switch t {
	case lua.ApiErrorSyntax:
		return ErrSyntax
	case lua.ApiErrorFile:
		return ErrFile
	case lua.ApiErrorError:
		return ErrErr
	default:
		return ErrRun
	}
}

// lightUserdata tags a raw pointer pushed as light userdata.
type lightUserdata struct {
	p unsafe.Pointer
}

func typeOf(v lua.LValue) Type {
	switch v.Type() {
	case lua.LTNil:
		return TypeNil
	case lua.LTBool:
		return TypeBoolean
	case lua.LTNumber:
		return TypeNumber
	case lua.LTString:
		return TypeString
	case lua.LTTable:
		return TypeTable
	case lua.LTFunction:
		return TypeFunction
	case lua.LTUserData:
		if ud, ok := v.(*lua.LUserData); ok {
			if _, light := ud.Value.(lightUserdata); light {
				return TypeLightUserdata
			}
		}
		return TypeUserdata
	case lua.LTThread:
		return TypeThread
	case lua.LTChannel:
		return TypeChannel
	default:
		return TypeNone
	}
}
