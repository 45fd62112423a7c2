package bridge

import (
	"reflect"

	"github.com/wippyai/luabridge/bridge/internal/coerce"
	"github.com/wippyai/luabridge/errors"
)

// Top returns the number of values on the stack.
func (s *State) Top() (int, error) {
	if err := s.check(errors.PhaseState); err != nil {
		return 0, err
	}
	return s.n.GetTop(), nil
}

// SetTop sets the stack top, filling with nil or dropping values.
func (s *State) SetTop(idx int) error {
	if err := s.check(errors.PhaseState); err != nil {
		return err
	}
	s.n.SetTop(idx)
	return nil
}

// Pop converts the top value with ToValue and removes it.
func (s *State) Pop() (any, error) {
	if err := s.check(errors.PhaseConvert); err != nil {
		return nil, err
	}
	v, err := s.toValue(-1)
	s.n.Pop(1)
	return v, err
}

// PopValues converts the top n values, deepest first, and removes them.
func (s *State) PopValues(n int) ([]any, error) {
	if err := s.check(errors.PhaseConvert); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []any{}, nil
	}
	if top := s.n.GetTop(); n > top {
		n = top
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := s.toValue(i - n)
		if err != nil {
			s.n.Pop(n)
			return nil, err
		}
		out[i] = v
	}
	s.n.Pop(n)
	return out, nil
}

// PopAs pops the top value coerced to T. A value with no sensible
// conversion yields the zero value of T.
func PopAs[T any](s *State) (T, error) {
	var zero T
	v, err := s.Pop()
	if err != nil {
		return zero, err
	}
	out, _ := coerce.To(v, reflect.TypeFor[T]())
	t, _ := out.Interface().(T)
	return t, nil
}

// GetGlobal returns the global name converted with ToValue.
func (s *State) GetGlobal(name string) (any, error) {
	if err := s.check(errors.PhaseConvert); err != nil {
		return nil, err
	}
	s.n.GetGlobal(name)
	v, err := s.toValue(-1)
	s.n.Pop(1)
	return v, err
}

// SetGlobal pushes v and assigns it to the global name.
func (s *State) SetGlobal(name string, v any) error {
	if err := s.check(errors.PhasePush); err != nil {
		return err
	}
	if err := s.push(v); err != nil {
		return err
	}
	s.n.SetGlobal(name)
	return nil
}
