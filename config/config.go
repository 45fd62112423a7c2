// Package config handles luan.toml configuration.
package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/luabridge/bridge"
	"github.com/wippyai/luabridge/dict"
	"github.com/wippyai/luabridge/errors"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "luan.toml"

// Config represents a luan.toml file.
//
//	preload = ["lib/util.lua"]
//
//	[state]
//	skip-open-libs = false
//	call-stack-size = 256
//	max-depth = 32
//
//	[log]
//	level = "debug"
//	development = true
//
//	[globals]
//	env = "prod"
//	limits = { rps = 100 }
type Config struct {
	Preload []string       `toml:"preload"`
	State   State          `toml:"state"`
	Log     Log            `toml:"log"`
	Globals map[string]any `toml:"globals"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// State configures every VM the CLI creates.
type State struct {
	SkipOpenLibs  bool `toml:"skip-open-libs"`
	CallStackSize int  `toml:"call-stack-size"`
	RegistrySize  int  `toml:"registry-size"`
	// MaxDepth bounds table nesting for map and slice conversion.
	MaxDepth int `toml:"max-depth"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
	Encoding    string `toml:"encoding"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "cannot read "+path)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot resolve "+path)
	}
	return Parse(data, dir)
}

// Parse decodes configuration text. Relative preload paths resolve against
// dir.
func Parse(data []byte, dir string) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse error")
	}
	// Nested tables under [globals] decode into plain maps, which toml
	// still reports as undecoded.
	var keys []string
	for _, k := range md.Undecoded() {
		if len(k) > 0 && k[0] == "globals" {
			continue
		}
		keys = append(keys, k.String())
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(keys...).
			Detail("unknown keys").
			Build()
	}
	c.Dir = dir
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir looking for luan.toml. It returns the
// defaults when no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot resolve "+startDir)
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		if c.Log.Development {
			c.Log.Encoding = "console"
		} else {
			c.Log.Encoding = "json"
		}
	}
	if c.Globals == nil {
		c.Globals = make(map[string]any)
	}
}

func (c *Config) validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "log.level")
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return errors.InvalidData(errors.PhaseConfig, []string{"log", "encoding"}, "must be json or console")
	}
	if c.State.CallStackSize < 0 || c.State.RegistrySize < 0 || c.State.MaxDepth < 0 {
		return errors.InvalidData(errors.PhaseConfig, []string{"state"}, "sizes must not be negative")
	}
	return nil
}

// Logger builds the zap logger described by the [log] section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = c.Log.Encoding
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// Bridge returns the state configuration for a VM.
func (c *Config) Bridge(log *zap.Logger, ext any) *bridge.Config {
	return &bridge.Config{
		Logger:        log,
		Extension:     ext,
		SkipOpenLibs:  c.State.SkipOpenLibs,
		CallStackSize: c.State.CallStackSize,
		RegistrySize:  c.State.RegistrySize,
	}
}

// Dict returns the table conversion extension with the configured depth.
func (c *Config) Dict() *dict.Extension {
	return &dict.Extension{MaxDepth: c.State.MaxDepth}
}

// PreloadPaths returns the preload files resolved against Dir.
func (c *Config) PreloadPaths() []string {
	paths := make([]string, 0, len(c.Preload))
	for _, p := range c.Preload {
		if !filepath.IsAbs(p) && c.Dir != "" {
			p = filepath.Join(c.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Apply sets the configured globals on s, in name order, then runs the
// preload files. Table-valued globals need an extension that pushes maps.
func (c *Config) Apply(s *bridge.State) error {
	names := make([]string, 0, len(c.Globals))
	for name := range c.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.SetGlobal(name, c.Globals[name]); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "global "+name)
		}
	}
	for _, path := range c.PreloadPaths() {
		if _, err := s.DoFile(path); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "preload "+path)
		}
	}
	return nil
}
