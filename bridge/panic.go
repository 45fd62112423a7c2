package bridge

import (
	"fmt"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// PanicHook handles an error that escaped every protected call. The error
// object is on top of the stack. A hook is expected to unwind by panicking;
// if it returns, the host is aborted with an errors.PanicError. The state
// may be nil when the VM is no longer hosted.
type PanicHook func(s *State) int

// DefaultPanicHook panics with an *errors.PanicError carrying the string (or
// number) on top of the stack, or errors.UnknownPanic.
func DefaultPanicHook(s *State) int {
	msg := errors.UnknownPanic
	if s != nil && !s.IsClosed() {
		if str, ok := s.n.ToString(-1); ok {
			msg = str
		}
	}
	panic(&errors.PanicError{Message: msg})
}

// AtPanic installs hook on top of the VM's hook chain and returns the hook
// it replaces. The chain is shared by a root and its threads.
func (s *State) AtPanic(hook PanicHook) (PanicHook, error) {
	if err := s.check(errors.PhasePanic); err != nil {
		return nil, err
	}
	if hook == nil {
		return nil, errors.InvalidInput(errors.PhasePanic, "panic hook must not be nil")
	}

	sh := s.sh
	sh.hookMu.Lock()
	defer sh.hookMu.Unlock()
	prev := sh.currentHook()
	sh.hooks = append(sh.hooks, hook)
	return prev, nil
}

// RestoreOriginalAtPanic removes the most recent hook. It reports false when
// only the default hook was installed.
func (s *State) RestoreOriginalAtPanic() (bool, error) {
	if err := s.check(errors.PhasePanic); err != nil {
		return false, err
	}

	sh := s.sh
	sh.hookMu.Lock()
	defer sh.hookMu.Unlock()
	if len(sh.hooks) == 0 {
		return false, nil
	}
	sh.hooks[len(sh.hooks)-1] = nil
	sh.hooks = sh.hooks[:len(sh.hooks)-1]
	return true, nil
}

// SetDefaultAtPanic removes every installed hook.
func (s *State) SetDefaultAtPanic() error {
	if err := s.check(errors.PhasePanic); err != nil {
		return err
	}
	s.sh.hookMu.Lock()
	s.sh.hooks = nil
	s.sh.hookMu.Unlock()
	return nil
}

// currentHook must be called with hookMu held.
func (sh *shared) currentHook() PanicHook {
	if len(sh.hooks) == 0 {
		return DefaultPanicHook
	}
	return sh.hooks[len(sh.hooks)-1]
}

// onPanic is the VM's panic function.
func (sh *shared) onPanic(n *native.State) int {
	sh.hookMu.Lock()
	hook := sh.currentHook()
	sh.hookMu.Unlock()

	sh.unwinding.Store(true)
	return hook(resolve(n))
}

// RaiseError raises the value on top of the stack as a Lua error. Inside a
// protected call it becomes that call's error; otherwise it reaches the
// panic hook. It only returns when the state is unusable.
func (s *State) RaiseError() error {
	if err := s.check(errors.PhaseCall); err != nil {
		return err
	}
	s.n.Error()
	return nil
}

// Errorf raises a formatted message as a Lua error.
func (s *State) Errorf(format string, args ...any) error {
	if err := s.check(errors.PhaseCall); err != nil {
		return err
	}
	s.n.PushString(fmt.Sprintf(format, args...))
	s.n.Error()
	return nil
}

// Protect runs fn and returns the *errors.PanicError raised by a panic hook
// during it as an error. Other panics propagate.
func (s *State) Protect(fn func() error) (err error) {
	if err := s.check(errors.PhasePanic); err != nil {
		return err
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		perr, ok := r.(*errors.PanicError)
		if !ok {
			panic(r)
		}
		s.sh.unwinding.Store(false)
		err = perr
	}()
	return fn()
}
