package bridge

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/luabridge/errors"
	"github.com/wippyai/luabridge/native"
)

func TestCallFunction(t *testing.T) {
	s := newTestState(t)

	out, err := s.CallFunction(func(s *State) int {
		a, _ := s.ToObject(1)
		b, _ := s.ToObject(2)
		s.Push(a.(string) + b.(string))
		s.Push(true)
		return 2
	}, "foo", "bar")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{"foobar", true}, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if top, _ := s.Top(); top != 0 {
		t.Errorf("stack not restored, top = %d", top)
	}
}

func TestCallEmptyResults(t *testing.T) {
	s := newTestState(t)

	out, err := s.CallFunction(func(*State) int { return 0 })
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("CallFunction() = %#v, want empty non-nil slice", out)
	}

	out, err = s.DoString("x = 1")
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("DoString() = %#v, want empty non-nil slice", out)
	}
}

func TestCallErrors(t *testing.T) {
	s := newTestState(t)

	tests := []struct {
		name   string
		chunk  string
		want   string
		status native.Status
	}{
		{"string level 0", `error("boom", 0)`, "boom", native.ErrRun},
		{"number", `error(42, 0)`, "42", native.ErrRun},
		{"table", `error({ code = 1 })`, errors.UnknownLuaError, native.ErrRun},
		{"nil", `error(nil)`, errors.UnknownLuaError, native.ErrRun},
		{"syntax", `return +`, "", native.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Push("sentinel")
			defer s.SetTop(0)

			_, err := s.DoString(tt.chunk)
			var lerr *errors.LuaError
			if !errors.As(err, &lerr) {
				t.Fatalf("DoString() error = %v, want LuaError", err)
			}
			if tt.want != "" && lerr.Message != tt.want {
				t.Errorf("Message = %q, want %q", lerr.Message, tt.want)
			}
			if lerr.Error() != lerr.Message {
				t.Error("Error() should return the message unchanged")
			}
			if native.Status(lerr.Status) != tt.status {
				t.Errorf("Status = %v, want %v", native.Status(lerr.Status), tt.status)
			}
			if top, _ := s.Top(); top != 1 {
				t.Errorf("stack not restored, top = %d", top)
			}
		})
	}
}

func TestCallErrorPosition(t *testing.T) {
	s := newTestState(t)

	_, err := s.DoString(`error("with position")`)
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); !strings.Contains(msg, "script") || !strings.HasSuffix(msg, "with position") {
		t.Errorf("message = %q, want chunk name and text", msg)
	}
}

func TestCallTyped(t *testing.T) {
	s := newTestState(t)
	fn := Function(func(s *State) int {
		s.Push("7")
		s.Push(2.5)
		s.Push("x")
		s.Push(true)
		return 4
	})

	tests := []struct {
		name  string
		types []reflect.Type
		want  []any
	}{
		{
			name:  "fewer than returned",
			types: []reflect.Type{reflect.TypeFor[int](), reflect.TypeFor[string]()},
			want:  []any{7, "2.5"},
		},
		{
			name:  "failed coercion",
			types: []reflect.Type{reflect.TypeFor[bool](), reflect.TypeFor[float32](), reflect.TypeFor[int](), reflect.TypeFor[bool]()},
			want:  []any{false, float32(2.5), 0, true},
		},
		{
			name: "more than returned",
			types: []reflect.Type{
				reflect.TypeFor[string](), reflect.TypeFor[float64](), reflect.TypeFor[string](),
				reflect.TypeFor[bool](), reflect.TypeFor[int64](), reflect.TypeFor[string](),
			},
			want: []any{"7", 2.5, "x", true, int64(0), ""},
		},
		{
			name:  "untyped slot",
			types: []reflect.Type{nil, reflect.TypeFor[any]()},
			want:  []any{"7", 2.5},
		},
		{
			name:  "empty list is untyped",
			types: []reflect.Type{},
			want:  []any{"7", 2.5, "x", true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.CallFunctionTyped(fn, tt.types)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCallValue(t *testing.T) {
	s := newTestState(t)

	if _, err := s.DoString(`function greet(name) return "hello " .. name end`); err != nil {
		t.Fatal(err)
	}
	s.n.GetGlobal("greet")
	key, err := s.NewRef()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Unref(key)

	out, err := s.CallValue(key, "lua")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{"hello lua"}, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	typed, err := s.CallValueTyped(key, []reflect.Type{reflect.TypeFor[[]byte]()}, "go")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{[]byte("hello go")}, typed); diff != "" {
		t.Errorf("typed mismatch (-want +got):\n%s", diff)
	}

	_, err = s.CallValue(native.RefNil)
	var lerr *errors.LuaError
	if !errors.As(err, &lerr) {
		t.Errorf("CallValue(RefNil) = %v, want LuaError", err)
	}
}

func TestCallArgumentErrors(t *testing.T) {
	s := newTestState(t)

	if _, err := s.CallFunction(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("CallFunction(nil) = %v", err)
	}
	_, err := s.CallFunction(func(*State) int { return 0 }, 1, make(chan int))
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("CallFunction(chan arg) = %v", err)
	}
	if top, _ := s.Top(); top != 0 {
		t.Errorf("stack not restored, top = %d", top)
	}
}

func TestReentrantCalls(t *testing.T) {
	s := newTestState(t)

	if _, err := s.DoString(`function double(x) return x * 2 end`); err != nil {
		t.Fatal(err)
	}
	s.SetGlobal("viaHost", Function(func(s *State) int {
		x, _ := s.ToObject(1)
		f, _ := s.GetGlobal("double")
		fn := f.(*FunctionHandle)
		defer fn.Close()
		out, err := fn.Call(x)
		if err != nil {
			return 0
		}
		s.Push(out[0])
		return 1
	}))

	out, err := s.DoString("return viaHost(21) + 1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{float64(43)}, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if s.References() != 0 {
		t.Errorf("References() = %d", s.References())
	}
}

func TestLoadString(t *testing.T) {
	s := newTestState(t)

	fn, err := s.LoadString("return ...", "echo")
	if err != nil {
		t.Fatal(err)
	}
	defer fn.Close()
	out, err := fn.Call(1, "two")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{float64(1), "two"}, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = s.LoadString("return +", "broken")
	var lerr *errors.LuaError
	if !errors.As(err, &lerr) || !strings.Contains(lerr.Message, "broken") {
		t.Errorf("LoadString(syntax error) = %v", err)
	}
}

func TestDoFile(t *testing.T) {
	s := newTestState(t)

	path := filepath.Join(t.TempDir(), "main.lua")
	if err := os.WriteFile(path, []byte("return 40 + 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := s.DoFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{float64(42)}, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	fn, err := s.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fn.Close()

	_, err = s.DoFile(filepath.Join(t.TempDir(), "missing.lua"))
	var lerr *errors.LuaError
	if !errors.As(err, &lerr) || native.Status(lerr.Status) != native.ErrFile {
		t.Errorf("DoFile(missing) = %v", err)
	}
}

func TestPopHelpers(t *testing.T) {
	s := newTestState(t)

	s.Push(1)
	s.Push("2")
	s.Push(3.5)
	vals, err := s.PopValues(2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{"2", 3.5}, vals); diff != "" {
		t.Errorf("PopValues mismatch (-want +got):\n%s", diff)
	}
	n, err := PopAs[int](s)
	if err != nil || n != 1 {
		t.Errorf("PopAs[int]() = %v, %v", n, err)
	}

	s.Push("not a number")
	if n, _ := PopAs[int](s); n != 0 {
		t.Errorf("PopAs[int](string) = %d, want 0", n)
	}
	s.Push(nil)
	if v, _ := PopAs[any](s); v != nil {
		t.Errorf("PopAs[any](nil) = %v", v)
	}
	if vals, _ := s.PopValues(0); vals == nil || len(vals) != 0 {
		t.Errorf("PopValues(0) = %#v", vals)
	}
}
