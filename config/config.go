// Package config handles blockrun.toml run configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "blockrun.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a blockrun.toml file.
type Config struct {
	Engine Engine `toml:"engine" json:"engine"`
	Log    Log    `toml:"log" json:"log"`
	Trace  Trace  `toml:"trace" json:"trace"`

	// Dir is the directory containing the blockrun.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Engine configures document parsing and execution.
type Engine struct {
	MaxDepth   int      `toml:"max_depth" json:"max_depth"`
	EntryTypes []string `toml:"entry_types" json:"entry_types"`
	Modules    []string `toml:"modules" json:"modules"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Trace configures the run trace store.
type Trace struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	DB      string `toml:"db" json:"db"`
}

// Default returns the configuration used when no file is present or a key
// is missing from one.
func Default() *Config {
	return &Config{
		Engine: Engine{
			MaxDepth:   1000,
			EntryTypes: []string{"event_whenflagclicked"},
			Modules:    []string{"control", "data", "event", "operator"},
		},
		Log: Log{Verbosity: 1},
		Trace: Trace{
			DB: filepath.Join(".blockrun", "trace.db"),
		},
		Dir: ".",
	}
}

// Load parses a blockrun.toml file from the given directory over the
// defaults and validates the result.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a blockrun.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks c against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path resolves p against the config directory unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// TraceDBPath returns the trace database location.
func (c *Config) TraceDBPath() string {
	return c.Path(c.Trace.DB)
}

// LogFilePath returns the log file location, empty for stderr.
func (c *Config) LogFilePath() string {
	return c.Path(c.Log.File)
}
