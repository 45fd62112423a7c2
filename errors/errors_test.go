package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhasePush,
				Kind:    KindTypeMismatch,
				Path:    []string{"config", "limits", "depth"},
				GoType:  "string",
				LuaType: "number",
				Detail:  "cannot convert",
			},
			contains: []string{"[push]", "type_mismatch", "config.limits.depth", "string", "number", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseConvert,
				Kind:  KindUnsupported,
			},
			contains: []string{"[convert]", "unsupported"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidData,
				Detail: "read luan.toml",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "invalid_data", "read luan.toml", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Format(t *testing.T) {
	err := New(PhaseCall, KindTypeMismatch).
		Path("results", "1").
		GoType("int").
		LuaType("string").
		Detail("not a number").
		Build()
	want := "[call] type_mismatch at results.1: Go type int, Lua type string - not a number"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = &Error{Phase: PhaseRef, Kind: KindDisposed, LuaType: "table"}
	if want := "[ref] disposed: Lua type table"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePush,
		Kind:  KindForeignState,
	}

	if !err.Is(&Error{Phase: PhasePush, Kind: KindForeignState}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseConvert, Kind: KindForeignState}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhasePush, Kind: KindUnsupported}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrForeignState) {
		t.Error("kind-only sentinel should match any phase")
	}
	if errors.Is(err, ErrDisposed) {
		t.Error("kind-only sentinel should not match other kinds")
	}

	wrapped := fmt.Errorf("table get: %w", Disposed(PhaseRef, "state"))
	if !errors.Is(wrapped, ErrDisposed) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhasePush, KindUnsupported).
		Path("args", "2").
		GoType("chan int").
		LuaType("nil").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "chan").
		Build()

	if err.Phase != PhasePush {
		t.Errorf("Phase = %v, want %v", err.Phase, PhasePush)
	}
	if err.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
	}
	if len(err.Path) != 2 || err.Path[0] != "args" || err.Path[1] != "2" {
		t.Errorf("Path = %v, want [args 2]", err.Path)
	}
	if err.GoType != "chan int" {
		t.Errorf("GoType = %v, want 'chan int'", err.GoType)
	}
	if err.LuaType != "nil" {
		t.Errorf("LuaType = %v, want 'nil'", err.LuaType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got chan" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Disposed", Disposed(PhaseState, "state"), KindDisposed},
		{"AlreadyHosted", AlreadyHosted(), KindAlreadyHosted},
		{"ForeignState", ForeignState(PhasePush, "*bridge.State"), KindForeignState},
		{"Unsupported", Unsupported(PhaseConvert, "table"), KindUnsupported},
		{"TypeMismatch", TypeMismatch(PhaseConvert, nil, "int", "table"), KindTypeMismatch},
		{"NilPointer", NilPointer(PhaseState, "*lua.LState"), KindNilPointer},
		{"InvalidInput", InvalidInput(PhasePanic, "nil hook"), KindInvalidInput},
		{"InvalidData", InvalidData(PhaseConfig, []string{"log", "level"}, "bad"), KindInvalidData},
		{"NotFound", NotFound(PhaseCall, "global", "main"), KindNotFound},
		{"Wrap", Wrap(PhaseLoad, KindInvalidData, errors.New("x"), "read"), KindInvalidData},
		{"Load", Load("read file", errors.New("x")), KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if got := Disposed(PhaseState, "state").Detail; got != "state already disposed" {
		t.Errorf("Disposed detail = %q", got)
	}
	if got := NotFound(PhaseCall, "global", "main").Detail; got != `global "main" not found` {
		t.Errorf("NotFound detail = %q", got)
	}
}

func TestLuaError(t *testing.T) {
	err := &LuaError{Message: "boom", Status: 2}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", err.Error())
	}

	var target *LuaError
	wrapped := fmt.Errorf("call: %w", err)
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed")
	}
	if target.Status != 2 {
		t.Errorf("Status = %d", target.Status)
	}
	if !errors.Is(wrapped, &LuaError{}) {
		t.Error("errors.Is should match any LuaError")
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Message: "Test error"}
	if err.Error() != "Test error" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Aborted {
		t.Error("plain panic error should not be aborted")
	}

	abort := Abort("")
	if !abort.Aborted {
		t.Error("Abort should set Aborted")
	}
	if !strings.Contains(abort.Message, UnknownPanic) {
		t.Errorf("Abort message = %q", abort.Message)
	}
	if !errors.Is(abort, &PanicError{}) {
		t.Error("errors.Is should match any PanicError")
	}
}
