// Package bridge hosts Lua VMs and moves values and calls between them and Go.
//
// A State wraps one VM handle. Root states own (or borrow) a VM; threads made
// with NewThread share its globals, registry, function cache and panic
// hooks. Every handle is recorded in a process-wide registry so that native
// callbacks find their State again, including on coroutines the VM created by
// itself.
//
// # Values
//
// Push and ToObject convert primitives directly. Tables, functions, threads
// and userdata cross as proxies holding a registry reference:
//
//	s.DoString(`config = { name = "svc", port = 8080 }`)
//	v, _ := s.GetGlobal("config")
//	tbl := v.(*bridge.TableHandle)
//	defer tbl.Close()
//	port, _ := tbl.Field("port") // float64(8080)
//
// Proxies must be closed. A proxy that is garbage collected while still open
// is logged as a leak; closing the root State invalidates all of them.
//
// # Functions
//
// Go functions are exposed with WrapFunction, or simply pushed. Wrapping the
// same function twice yields the same native function:
//
//	s.SetGlobal("add", bridge.Function(func(s *bridge.State) int {
//		a, _ := s.ToObject(1)
//		b, _ := s.ToObject(2)
//		s.Push(a.(float64) + b.(float64))
//		return 1
//	}))
//
// A panic escaping a Go function is recovered and logged, and the function
// returns no results. Lua errors raised with RaiseError or Errorf unwind
// normally.
//
// # Calls
//
// CallFunction, CallValue and the handle Call methods run in protected mode.
// A failure is returned as *errors.LuaError carrying the error message; the
// stack is left as it was. The typed variants coerce results positionally
// and always return one value per declared type.
//
// # Panics
//
// An error that escapes every protected call goes to the VM's panic hook.
// The default hook panics with *errors.PanicError, which Protect turns back
// into an error:
//
//	err := s.Protect(func() error {
//		return s.Errorf("fatal: %d", 42)
//	})
//
// AtPanic stacks a custom hook and returns the one it replaces so that hooks
// can chain.
//
// # Extensions
//
// Config.Extension adds conversions for values the bridge has no mapping for.
// See Pusher, Converter and the provider interfaces.
package bridge
