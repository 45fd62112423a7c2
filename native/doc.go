// Package native exposes a gopher-lua VM through a C-style stack ABI.
//
// The bridge never touches gopher-lua values directly for anything but
// identity. Every exchange happens through a State: values are pushed onto
// the VM stack, inspected by index, and popped. Indices follow the usual
// convention:
//
//	 1 .. n     absolute slots, bottom up
//	-1 .. -n    relative slots, top down
//	<= FirstPseudoIndex
//	            RegistryIndex, EnvironIndex, GlobalsIndex
//
// # Differences from the C API
//
// The VM stores every number as a float64, so PushInteger and ToIntegerX
// round-trip through float64. Light userdata is represented by a userdata
// value carrying the pointer; two light userdata compare RawEqual when their
// pointers are equal.
//
// PCall leaves the error object on the stack on failure, as lua_pcall does.
//
// # Panic Function
//
// Each VM has one panic function shared by its main state and threads. It
// runs when an error escapes every protected call:
//
//	s.AtPanic(func(s *native.State) int {
//		msg, _ := s.ToString(-1)
//		panic(msg)
//	})
//
// A panic function that returns aborts the host with an errors.PanicError.
// Without one, the VM's own behaviour (a *lua.ApiError panic) applies.
package native
