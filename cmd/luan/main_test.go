package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/config"
	"github.com/wippyai/luabridge/native"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runLines(t *testing.T, files []string, opts options) []string {
	t.Helper()
	var out strings.Builder
	if err := run(config.Default(), zap.NewNop(), files, opts, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestRunExpression(t *testing.T) {
	got := runLines(t, nil, options{expr: `print("hi", 2); return 1 + 1, "x", nil, host.version()`})
	want := []string{"hi\t2", "2", `"x"`, "nil", `"` + version + `"`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSetLoggers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	prevBridge, prevNative := bridge.Logger(), native.Logger()
	t.Cleanup(func() {
		bridge.SetLogger(prevBridge)
		native.SetLogger(prevNative)
	})

	setLoggers(log)
	var out strings.Builder
	if err := run(config.Default(), log, nil, options{expr: "return 1"}, &out); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("vm created").Len() == 0 {
		t.Error("native layer did not log through the configured logger")
	}
	if logs.FilterMessage("vm closed").Len() == 0 {
		t.Error("native close was not logged")
	}
}

func TestRunFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a", "b", "c"} {
		files = append(files, writeScript(t, dir, name+".lua", `print("`+name+`")`))
	}

	got := runLines(t, files, options{})
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFunction(t *testing.T) {
	dir := t.TempDir()
	file := writeScript(t, dir, "add.lua", `function add(a, b) return a + b, type(b) end`)

	got := runLines(t, []string{file}, options{funcName: "add", args: argList{"2", "3.5"}})
	if diff := cmp.Diff([]string{"5.5", `"number"`}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCBOR(t *testing.T) {
	got := runLines(t, nil, options{expr: `return { 1, 2 }, true`, cbor: true})
	// [1.0, 2.0] as canonical float16s, then true.
	want := []string{"82f93c00f94000", "f5"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeScript(t, dir, "bad.lua", `error("nope", 0)`)
	good := writeScript(t, dir, "good.lua", `print("ok")`)

	var out strings.Builder
	err := run(config.Default(), zap.NewNop(), []string{good, bad}, options{}, &out)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("run error = %v, want script error", err)
	}
	if out.String() != "ok\n" {
		t.Errorf("output = %q, want other files to still report", out.String())
	}

	err = run(config.Default(), zap.NewNop(), nil, options{funcName: "missing"}, &out)
	if err == nil {
		t.Error("calling a missing global should fail")
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"nil", nil},
		{"true", true},
		{"false", false},
		{"42", float64(42)},
		{"-1.5", -1.5},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := parseArg(tt.in); got != tt.want {
			t.Errorf("parseArg(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
