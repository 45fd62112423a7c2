package native

import (
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	lua "github.com/yuin/gopher-lua"
)

// GetTop returns the index of the top element, which is also the number of
// elements on the stack.
func (s *State) GetTop() int {
	return s.L.GetTop()
}

// SetTop sets the stack top. Negative indices count from the top, new slots
// are filled with nil.
func (s *State) SetTop(idx int) {
	s.L.SetTop(idx)
}

// Pop removes n elements.
func (s *State) Pop(n int) {
	if n <= 0 {
		return
	}
	s.L.SetTop(-n - 1)
}

// AbsIndex converts a relative index to an absolute one.
func (s *State) AbsIndex(idx int) int {
	if idx > 0 || idx <= FirstPseudoIndex {
		return idx
	}
	return s.L.GetTop() + idx + 1
}

func (s *State) valid(idx int) bool {
	switch {
	case idx == RegistryIndex, idx == EnvironIndex, idx == GlobalsIndex:
		return true
	case idx > 0:
		return idx <= s.L.GetTop()
	case idx < 0 && idx > FirstPseudoIndex:
		return -idx <= s.L.GetTop()
	}
	return false
}

func (s *State) value(idx int) lua.LValue {
	if !s.valid(idx) {
		return nil
	}
	return s.L.Get(idx)
}

// PushValue pushes a copy of the element at idx.
func (s *State) PushValue(idx int) {
	s.L.Push(s.ToLValue(idx))
}

// PushNil pushes nil.
func (s *State) PushNil() {
	s.L.Push(lua.LNil)
}

// PushBoolean pushes a boolean.
func (s *State) PushBoolean(b bool) {
	s.L.Push(lua.LBool(b))
}

// PushInteger pushes an integer. The VM stores every number as a float.
func (s *State) PushInteger(n int64) {
	s.L.Push(lua.LNumber(n))
}

// PushNumber pushes a number.
func (s *State) PushNumber(n float64) {
	s.L.Push(lua.LNumber(n))
}

// PushString pushes a string. Strings are byte sequences and may hold
// embedded zeros.
func (s *State) PushString(str string) {
	s.L.Push(lua.LString(str))
}

// PushLightUserdata pushes a raw pointer as light userdata.
func (s *State) PushLightUserdata(p unsafe.Pointer) {
	ud := s.L.NewUserData()
	ud.Value = lightUserdata{p: p}
	s.L.Push(ud)
}

// PushGoFunction pushes a function value.
func (s *State) PushGoFunction(fn *lua.LFunction) {
	if fn == nil {
		s.L.Push(lua.LNil)
		return
	}
	s.L.Push(fn)
}

// PushThread pushes the state's own thread and reports whether it is the
// main thread.
func (s *State) PushThread() bool {
	s.L.Push(s.L)
	return s.IsMain()
}

// PushLValue pushes a VM value as is.
func (s *State) PushLValue(v lua.LValue) {
	if v == nil {
		v = lua.LNil
	}
	s.L.Push(v)
}

// NewTable pushes a new empty table.
func (s *State) NewTable() {
	s.L.Push(s.L.NewTable())
}

// CreateTable pushes a new table with preallocated space.
func (s *State) CreateTable(narr, nrec int) {
	s.L.Push(s.L.CreateTable(narr, nrec))
}

// NewUserdata pushes a new full userdata bound to payload and returns it.
// A nil payload leaves the userdata unbound.
func (s *State) NewUserdata(payload any) *lua.LUserData {
	ud := s.L.NewUserData()
	ud.Value = payload
	s.L.Push(ud)
	return ud
}

// NewFunction creates a function value that runs fn on whichever state
// calls it.
func (s *State) NewFunction(fn CFunction) *lua.LFunction {
	g := s.g
	return s.L.NewFunction(func(L *lua.LState) int {
		return fn(g.state(L))
	})
}

// PushCFunction creates a function value for fn and pushes it.
func (s *State) PushCFunction(fn CFunction) {
	s.L.Push(s.NewFunction(fn))
}

// Type returns the type tag at idx, TypeNone for a non-valid index.
func (s *State) Type(idx int) Type {
	v := s.value(idx)
	if v == nil {
		return TypeNone
	}
	return typeOf(v)
}

// TypeName returns the name of the type tag tp.
func (s *State) TypeName(tp Type) string {
	return tp.String()
}

func (s *State) IsNone(idx int) bool      { return s.Type(idx) == TypeNone }
func (s *State) IsNil(idx int) bool       { return s.Type(idx) == TypeNil }
func (s *State) IsNoneOrNil(idx int) bool { return s.Type(idx) <= TypeNil }
func (s *State) IsBoolean(idx int) bool   { return s.Type(idx) == TypeBoolean }
func (s *State) IsTable(idx int) bool     { return s.Type(idx) == TypeTable }
func (s *State) IsFunction(idx int) bool  { return s.Type(idx) == TypeFunction }
func (s *State) IsThread(idx int) bool    { return s.Type(idx) == TypeThread }

func (s *State) IsLightUserdata(idx int) bool {
	return s.Type(idx) == TypeLightUserdata
}

// IsNumber reports whether the value is a number or a string convertible to
// one.
func (s *State) IsNumber(idx int) bool {
	_, ok := s.ToNumberX(idx)
	return ok
}

// IsString reports whether the value is a string or a number.
func (s *State) IsString(idx int) bool {
	tp := s.Type(idx)
	return tp == TypeString || tp == TypeNumber
}

// IsUserdata reports whether the value is userdata (full or light) with a
// bound payload. A full userdata created without a payload is not yet
// usable from the host and reports false.
func (s *State) IsUserdata(idx int) bool {
	ud, ok := s.value(idx).(*lua.LUserData)
	return ok && ud.Value != nil
}

// IsGoFunction reports whether the value is a function implemented in Go.
func (s *State) IsGoFunction(idx int) bool {
	fn, ok := s.value(idx).(*lua.LFunction)
	return ok && fn.IsG
}

// ToBoolean follows Lua truthiness: only nil and false are false.
func (s *State) ToBoolean(idx int) bool {
	v := s.value(idx)
	if v == nil {
		return false
	}
	return lua.LVAsBool(v)
}

// ToNumberX converts the value to a number. Strings holding a numeral are
// converted.
func (s *State) ToNumberX(idx int) (float64, bool) {
	switch v := s.value(idx).(type) {
	case lua.LNumber:
		return float64(v), true
	case lua.LString:
		return parseNumber(string(v))
	}
	return 0, false
}

// ToIntegerX converts the value to an integer, truncating fractions.
func (s *State) ToIntegerX(idx int) (int64, bool) {
	n, ok := s.ToNumberX(idx)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// ToString converts the value to a string. Numbers are formatted, the stack
// slot is left untouched.
func (s *State) ToString(idx int) (string, bool) {
	switch v := s.value(idx).(type) {
	case lua.LString:
		return string(v), true
	case lua.LNumber:
		return v.String(), true
	}
	return "", false
}

// ToUserdata returns the payload of a full userdata or the pointer of a
// light userdata, nil otherwise.
func (s *State) ToUserdata(idx int) any {
	ud, ok := s.value(idx).(*lua.LUserData)
	if !ok {
		return nil
	}
	if light, ok := ud.Value.(lightUserdata); ok {
		return light.p
	}
	return ud.Value
}

// ToPointer returns an identity for reference values, zero for others.
func (s *State) ToPointer(idx int) uintptr {
	switch v := s.value(idx).(type) {
	case *lua.LUserData:
		if light, ok := v.Value.(lightUserdata); ok {
			return uintptr(light.p)
		}
		return reflect.ValueOf(v).Pointer()
	case *lua.LTable, *lua.LFunction, *lua.LState, lua.LChannel:
		return reflect.ValueOf(v).Pointer()
	}
	return 0
}

// ToThread returns the thread at idx, nil if the value is not a thread.
func (s *State) ToThread(idx int) *lua.LState {
	th, _ := s.value(idx).(*lua.LState)
	return th
}

// ToGoFunction returns the function at idx if it is implemented in Go.
func (s *State) ToGoFunction(idx int) *lua.LFunction {
	fn, ok := s.value(idx).(*lua.LFunction)
	if !ok || !fn.IsG {
		return nil
	}
	return fn
}

// ToLValue returns the VM value at idx, nil for a non-valid index.
func (s *State) ToLValue(idx int) lua.LValue {
	v := s.value(idx)
	if v == nil {
		return lua.LNil
	}
	return v
}

// RawEqual compares two values without metamethods. Two light userdata are
// equal when their pointers are.
func (s *State) RawEqual(a, b int) bool {
	va, vb := s.value(a), s.value(b)
	if va == nil || vb == nil {
		return false
	}
	ua, oka := va.(*lua.LUserData)
	ub, okb := vb.(*lua.LUserData)
	if oka && okb {
		la, lighta := ua.Value.(lightUserdata)
		lb, lightb := ub.Value.(lightUserdata)
		if lighta && lightb {
			return la.p == lb.p
		}
	}
	return va == vb
}

// ObjLen returns the length of the value at idx.
func (s *State) ObjLen(idx int) int {
	v := s.value(idx)
	if v == nil {
		return 0
	}
	switch v := v.(type) {
	case lua.LString:
		return len(v)
	case *lua.LTable:
		return v.Len()
	}
	return 0
}

func parseNumber(str string) (float64, bool) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, false
	}
	if n, err := strconv.ParseFloat(str, 64); err == nil {
		return n, true
	}
	if n, err := strconv.ParseInt(str, 0, 64); err == nil {
		return float64(n), true
	}
	return 0, false
}
