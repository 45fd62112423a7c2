// Package dict is a host extension that moves plain data tables in and out
// of the VM as Go maps and slices.
package dict

import (
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

// DefaultMaxDepth bounds table nesting when MaxDepth is zero.
const DefaultMaxDepth = 64

// Extension converts Go maps, slices and arrays to tables and data tables
// back to map[any]any, or []any when the keys form the sequence 1..n.
// Tables with a metatable are treated as objects and left to the bridge.
// Functions, threads and userdata found inside a table are returned as
// bridge proxies which the caller must close.
type Extension struct {
	// MaxDepth bounds nesting in both directions.
	MaxDepth int
}

var (
	_ bridge.Pusher    = (*Extension)(nil)
	_ bridge.Converter = (*Extension)(nil)
)

// New returns an extension with default limits.
func New() *Extension {
	return &Extension{}
}

func (e *Extension) maxDepth() int {
	if e == nil || e.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return e.MaxDepth
}

// Push implements bridge.Pusher.
func (e *Extension) Push(s *bridge.State, v any) (bool, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
	default:
		return false, nil
	}
	n, err := s.Native()
	if err != nil {
		return false, err
	}
	top := n.GetTop()
	if err := e.push(s, n, rv, 0); err != nil {
		n.SetTop(top)
		return false, err
	}
	return true, nil
}

func (e *Extension) push(s *bridge.State, n *native.State, rv reflect.Value, depth int) error {
	if depth >= e.maxDepth() {
		return errors.New(errors.PhasePush, errors.KindInvalidData).
			GoType(rv.Type().String()).
			Detail("nesting deeper than %d", e.maxDepth()).
			Build()
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			n.PushNil()
			return nil
		}
		if rv.Kind() == reflect.Interface {
			return e.push(s, n, rv.Elem(), depth)
		}
	case reflect.Map:
		if rv.IsNil() {
			n.PushNil()
			return nil
		}
		n.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if err := e.push(s, n, iter.Key(), depth+1); err != nil {
				return err
			}
			if n.IsNil(-1) {
				return errors.InvalidData(errors.PhasePush, nil, "nil map key")
			}
			if err := e.push(s, n, iter.Value(), depth+1); err != nil {
				return err
			}
			n.SetTable(-3)
		}
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return s.Push(rv.Bytes())
		}
		if rv.IsNil() {
			n.PushNil()
			return nil
		}
		fallthrough
	case reflect.Array:
		n.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			if err := e.push(s, n, rv.Index(i), depth+1); err != nil {
				return err
			}
			n.RawSetI(-2, i+1)
		}
		return nil
	}

	if !rv.CanInterface() {
		return errors.New(errors.PhasePush, errors.KindUnsupported).
			GoType(rv.Type().String()).
			Detail("unexported value").
			Build()
	}
	return s.Push(rv.Interface())
}

// Convert implements bridge.Converter. Only tables without a metatable are
// converted.
func (e *Extension) Convert(s *bridge.State, idx int, tp native.Type) (any, bool, error) {
	if tp != native.TypeTable {
		return nil, false, nil
	}
	n, err := s.Native()
	if err != nil {
		return nil, false, err
	}
	if !isData(n, idx) {
		return nil, false, nil
	}
	v, err := e.toGo(s, n, n.AbsIndex(idx), 0, make(map[*lua.LTable]struct{}))
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func isData(n *native.State, idx int) bool {
	tbl, ok := n.ToLValue(idx).(*lua.LTable)
	return ok && n.L.GetMetatable(tbl) == lua.LNil
}

func (e *Extension) toGo(s *bridge.State, n *native.State, idx, depth int, seen map[*lua.LTable]struct{}) (any, error) {
	if depth >= e.maxDepth() {
		return nil, errors.InvalidData(errors.PhaseConvert, nil, fmt.Sprintf("nesting deeper than %d", e.maxDepth()))
	}
	tbl := n.ToLValue(idx).(*lua.LTable)
	if _, ok := seen[tbl]; ok {
		return nil, errors.InvalidData(errors.PhaseConvert, nil, "table contains a cycle")
	}
	seen[tbl] = struct{}{}
	defer delete(seen, tbl)

	top := n.GetTop()
	defer n.SetTop(top)

	m := make(map[any]any)
	n.PushNil()
	for n.Next(idx) {
		k, err := key(s, n, n.AbsIndex(-2))
		if err != nil {
			release(m)
			return nil, err
		}
		v, err := e.value(s, n, n.AbsIndex(-1), depth, seen)
		if err != nil {
			release(k)
			release(m)
			return nil, err
		}
		m[k] = v
		n.Pop(1)
	}

	if seq, ok := sequence(m); ok {
		return seq, nil
	}
	return m, nil
}

func (e *Extension) value(s *bridge.State, n *native.State, idx, depth int, seen map[*lua.LTable]struct{}) (any, error) {
	if n.Type(idx) == native.TypeTable && isData(n, idx) {
		return e.toGo(s, n, idx, depth+1, seen)
	}
	return s.ToValue(idx)
}

// key converts a table key. Table keys stay proxies since Go maps and
// slices cannot be map keys.
func key(s *bridge.State, n *native.State, idx int) (any, error) {
	if n.Type(idx) == native.TypeTable {
		return s.ToTable(idx)
	}
	return s.ToValue(idx)
}

// release closes every proxy held by a partly converted value.
func release(v any) {
	switch v := v.(type) {
	case map[any]any:
		for k, e := range v {
			release(k)
			release(e)
		}
	case []any:
		for _, e := range v {
			release(e)
		}
	case interface{ Close() error }:
		_ = v.Close()
	}
}

// sequence returns the values of m as a slice when its keys are exactly the
// numbers 1..len(m).
func sequence(m map[any]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	out := make([]any, len(m))
	for k, v := range m {
		f, ok := k.(float64)
		if !ok || f != math.Trunc(f) || f < 1 || f > float64(len(m)) {
			return nil, false
		}
		out[int(f)-1] = v
	}
	return out, true
}
