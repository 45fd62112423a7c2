// Package luabridge hosts Lua virtual machines in Go programs.
//
// It moves values across the boundary in both directions, exposes Go
// functions to scripts, keeps VM values alive from Go through registry
// references, and turns Lua errors into Go errors.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	luabridge/           Root package documentation
//	├── bridge/          Host states, marshalling, callbacks, references, calls
//	├── native/          Stack-oriented VM interface over gopher-lua
//	├── resource/        Reference bookkeeping with lifecycle observers
//	├── dict/            Extension converting data tables to Go maps and slices
//	├── config/          luan.toml loading and logger construction
//	├── errors/          Structured error types for debugging
//	└── cmd/luan/        Command-line runner and interactive REPL
//
// # Quick Start
//
// Run a chunk and call a script function:
//
//	s, err := bridge.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if _, err := s.DoString(`function greet(name) return "Hello, " .. name .. "!" end`); err != nil {
//	    log.Fatal(err)
//	}
//
//	v, _ := s.GetGlobal("greet")
//	greet := v.(*bridge.FunctionHandle)
//	defer greet.Close()
//
//	out, err := greet.Call("World")
//	fmt.Println(out[0]) // "Hello, World!"
//
// # Host Functions
//
// Any bridge.Function can be pushed as a Lua function. Wrapping the same
// function twice yields the same VM function:
//
//	s.SetGlobal("now", bridge.Function(func(s *bridge.State) int {
//	    s.Push(float64(time.Now().Unix()))
//	    return 1
//	}))
//
// # Thread Safety
//
// A State and its threads belong to one VM and must be used by a single
// goroutine at a time. Separate root states are independent and may run
// concurrently. The registry that maps VM handles back to states is safe
// for concurrent use.
//
// # References
//
// Tables, functions, userdata and threads reach Go as proxies holding a
// registry reference. Proxies must be closed; references still open when
// the root state closes are invalidated and reported to observers.
package luabridge
