package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/config"
	"github.com/wippyai/luabridge/dict"
	"github.com/wippyai/luabridge/native"
)

const version = "0.1.0"

type argList []string

func (a *argList) String() string     { return strings.Join(*a, ",") }
func (a *argList) Set(v string) error { *a = append(*a, v); return nil }

type options struct {
	expr     string
	funcName string
	args     argList
	cbor     bool
}

func main() {
	var (
		opts        options
		configPath  = flag.String("config", "", "Path to luan.toml (default: search upward from the working directory)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.StringVar(&opts.expr, "e", "", "Chunk to run after the files")
	flag.StringVar(&opts.funcName, "func", "", "Global function to call after loading")
	flag.Var(&opts.args, "arg", "Argument for -func (repeatable)")
	flag.BoolVar(&opts.cbor, "cbor", false, "Print results as hex-encoded CBOR")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 && opts.expr == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: luan [-config luan.toml] [-func name -arg v ...] [-cbor] file.lua ...")
		fmt.Fprintln(os.Stderr, "       luan -e 'return 1 + 1'")
		fmt.Fprintln(os.Stderr, "       luan -i [file.lua]  (interactive mode)")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	setLoggers(log)

	if *interactive {
		if err := runInteractive(cfg, log, files); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log, files, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setLoggers routes the bridge and native layer logs to log.
func setLoggers(log *zap.Logger) {
	bridge.SetLogger(log)
	native.SetLogger(log)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

// newState creates a configured VM with the CLI globals installed.
func newState(cfg *config.Config, log *zap.Logger, out io.Writer) (*bridge.State, error) {
	s, err := bridge.NewWithConfig(cfg.Bridge(log, cfg.Dict()))
	if err != nil {
		return nil, err
	}
	if err := installGlobals(s, out); err != nil {
		s.Close()
		return nil, err
	}
	if err := cfg.Apply(s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func installGlobals(s *bridge.State, out io.Writer) error {
	printFn := func(s *bridge.State) int {
		n, err := s.Native()
		if err != nil {
			return 0
		}
		parts := make([]string, n.GetTop())
		for i := range parts {
			parts[i] = n.L.ToStringMeta(n.ToLValue(i + 1)).String()
		}
		fmt.Fprintln(out, strings.Join(parts, "\t"))
		return 0
	}
	if err := s.SetGlobal("print", bridge.Function(printFn)); err != nil {
		return err
	}
	return s.SetGlobal("host", map[string]any{
		"version": bridge.Function(func(s *bridge.State) int {
			if err := s.Push(version); err != nil {
				return 0
			}
			return 1
		}),
	})
}

// run executes each file in its own VM. Files run concurrently and their
// results are reported in command-line order.
func run(cfg *config.Config, log *zap.Logger, files []string, opts options, out io.Writer) error {
	if len(files) == 0 {
		return runOne(cfg, log, "", opts, out)
	}

	outputs := make([]strings.Builder, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			if err := runOne(cfg, log, file, opts, &outputs[i]); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			return nil
		})
	}
	err := g.Wait()
	for i := range outputs {
		io.WriteString(out, outputs[i].String())
	}
	return err
}

func runOne(cfg *config.Config, log *zap.Logger, file string, opts options, out io.Writer) error {
	s, err := newState(cfg, log, out)
	if err != nil {
		return err
	}
	defer s.Close()

	var results []any
	if file != "" {
		log.Debug("running file", zap.String("file", file))
		if results, err = s.DoFile(file); err != nil {
			return err
		}
	}
	if opts.expr != "" {
		closeResults(results)
		if results, err = s.DoString(opts.expr); err != nil {
			return err
		}
	}
	if opts.funcName != "" {
		closeResults(results)
		if results, err = callGlobal(s, opts.funcName, opts.args); err != nil {
			return err
		}
	}
	defer closeResults(results)
	return printResults(out, results, opts.cbor)
}

func callGlobal(s *bridge.State, name string, args []string) ([]any, error) {
	v, err := s.GetGlobal(name)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*bridge.FunctionHandle)
	if !ok {
		closeResults([]any{v})
		return nil, fmt.Errorf("global %q is %T, not a function", name, v)
	}
	defer fn.Close()

	callArgs := make([]any, len(args))
	for i, a := range args {
		callArgs[i] = parseArg(a)
	}
	return fn.Call(callArgs...)
}

// parseArg reads a command-line argument as a number, boolean or nil, and
// falls back to a string.
func parseArg(s string) any {
	switch s {
	case "nil":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func printResults(out io.Writer, results []any, asCBOR bool) error {
	for _, r := range results {
		if asCBOR {
			data, err := dict.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, hex.EncodeToString(data))
			continue
		}
		fmt.Fprintln(out, formatValue(r))
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case *bridge.TableHandle:
		return "table"
	case *bridge.FunctionHandle:
		return "function"
	case *bridge.UserDataHandle:
		return "userdata"
	case *bridge.ThreadHandle:
		return "thread"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func closeResults(vs []any) {
	for _, v := range vs {
		if c, ok := v.(io.Closer); ok {
			c.Close()
		}
	}
}
