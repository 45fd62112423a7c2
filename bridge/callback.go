package bridge

import (
	"sync"
	"unsafe"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// Function is a host function callable from the VM. Arguments are on the
// stack, 1 to Top. It pushes its results and returns how many there are.
type Function func(s *State) int

// funcIdentity returns the identity of the closure object behind f. Two
// copies of one func value share it.
func funcIdentity(f Function) uintptr {
	return *(*uintptr)(unsafe.Pointer(&f))
}

type wrappedFunction struct {
	host   Function
	native *lua.LFunction
}

// funcCache pairs host functions with their native counterparts in both
// directions. Both maps change together under mu.
type funcCache struct {
	mu       sync.Mutex
	byHost   map[uintptr]*wrappedFunction
	byNative map[*lua.LFunction]*wrappedFunction
}

func newFuncCache() *funcCache {
	return &funcCache{
		byHost:   make(map[uintptr]*wrappedFunction),
		byNative: make(map[*lua.LFunction]*wrappedFunction),
	}
}

func (c *funcCache) add(w *wrappedFunction) {
	c.byHost[funcIdentity(w.host)] = w
	c.byNative[w.native] = w
}

func (c *funcCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byNative)
}

func (c *funcCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHost = make(map[uintptr]*wrappedFunction)
	c.byNative = make(map[*lua.LFunction]*wrappedFunction)
}

// WrapFunction returns the native function for f, creating it on first use.
// Wrapping the same f again returns the same native function. A nil f
// yields nil.
func (s *State) WrapFunction(f Function) (*lua.LFunction, error) {
	if err := s.check(errors.PhaseCallback); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	c := s.sh.funcs
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.byHost[funcIdentity(f)]; ok {
		return w.native, nil
	}
	w := &wrappedFunction{host: f, native: s.n.NewFunction(thunk(f))}
	c.add(w)
	return w.native, nil
}

// WrapNativeFunction returns the host function for fn. For a function made
// by WrapFunction it is the original host function. Any other function is
// wrapped so that calling it invokes fn with every stack value as argument
// and leaves its results on top. A nil fn yields nil.
func (s *State) WrapNativeFunction(fn *lua.LFunction) (Function, error) {
	if err := s.check(errors.PhaseCallback); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, nil
	}

	c := s.sh.funcs
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.byNative[fn]; ok {
		return w.host, nil
	}
	w := &wrappedFunction{host: invoker(fn), native: fn}
	c.add(w)
	return w.host, nil
}

func invoker(fn *lua.LFunction) Function {
	return func(s *State) int {
		n := s.n
		nargs := n.GetTop()
		n.PushGoFunction(fn)
		for i := 1; i <= nargs; i++ {
			n.PushValue(i)
		}
		n.Call(nargs, native.MultiReturns)
		return n.GetTop() - nargs
	}
}

// thunk adapts f to the native calling convention. It never lets a host
// failure cross the VM frame: unresolvable states and recovered panics
// report zero results. VM errors and panic-hook unwinding pass through.
func thunk(f Function) native.CFunction {
	return func(n *native.State) (nret int) {
		s := resolve(n)
		if s == nil {
			return 0
		}
		sh := s.sh
		sh.unwinding.Store(false)
		sh.enter()
		defer sh.leaveCallback()

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if sh.mustUnwind(r) {
				panic(r)
			}
			sh.log.Warn("host function failed", zap.Any("panic", r))
			nret = 0
		}()

		nret = f(s)
		if top := n.GetTop(); nret > top {
			nret = top
		}
		if nret < 0 {
			nret = 0
		}
		return nret
	}
}

func (sh *shared) mustUnwind(r any) bool {
	switch r.(type) {
	case *lua.ApiError, *errors.PanicError:
		return true
	}
	return sh.unwinding.Load()
}
