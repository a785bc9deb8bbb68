// Package config loads layered fuzzdrive configuration from JSONC files,
// the environment and command-line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// FileName is the project config file name.
const FileName = ".fuzzdrive.json"

// Config errors.
var (
	ErrFileNotFound = errors.New("config file not found")
	ErrFileRead     = errors.New("cannot read config file")
	ErrInvalid      = errors.New("invalid config")
)

// Config is the resolved configuration.
type Config struct {
	Iterations int `json:"iterations"`

	// Seed is nil when no layer set one; each run then picks its own.
	Seed *uint64 `json:"seed,omitempty"`

	MaxLen         int      `json:"max_len"`         //nolint:tagliatelle // snake_case for config file
	Workers        int      `json:"workers"`
	Timeout        Duration `json:"timeout"`
	Shrink         bool     `json:"shrink"`
	ShrinkAttempts int      `json:"shrink_attempts"` //nolint:tagliatelle // snake_case for config file
	ShrinkTime     Duration `json:"shrink_time"`     //nolint:tagliatelle // snake_case for config file
	Mode           string   `json:"mode"`
	CorpusDir      string   `json:"corpus_dir"`           //nolint:tagliatelle // snake_case for config file
	IndexPath      string   `json:"index_path,omitempty"` //nolint:tagliatelle // snake_case for config file

	// Resolved values (computed, not serialized).
	EffectiveCwd string      `json:"-"`
	CorpusDirAbs string      `json:"-"`
	IndexAbs     string      `json:"-"` // empty when no index is configured
	DriverMode   driver.Mode `json:"-"`
	Sources      Sources     `json:"-"`
}

// Sources records where configuration came from, for print-config.
type Sources struct {
	Global  string   // path to global config if loaded
	Project string   // path to project or explicit config if loaded
	Env     []string // environment variables that were applied
}

// Layer is one partial configuration. Nil fields leave lower layers alone.
// Config files decode into it; CLI flags fill it directly.
type Layer struct {
	Iterations     *int      `json:"iterations"`
	Seed           *uint64   `json:"seed"`
	MaxLen         *int      `json:"max_len"` //nolint:tagliatelle // snake_case for config file
	Workers        *int      `json:"workers"`
	Timeout        *Duration `json:"timeout"`
	Shrink         *bool     `json:"shrink"`
	ShrinkAttempts *int      `json:"shrink_attempts"` //nolint:tagliatelle // snake_case for config file
	ShrinkTime     *Duration `json:"shrink_time"`     //nolint:tagliatelle // snake_case for config file
	Mode           *string   `json:"mode"`
	CorpusDir      *string   `json:"corpus_dir"` //nolint:tagliatelle // snake_case for config file
	IndexPath      *string   `json:"index_path"` //nolint:tagliatelle // snake_case for config file
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Iterations: 100,
		MaxLen:     4096,
		Workers:    1,
		Shrink:     true,
		Mode:       driver.ModeDirect.String(),
		CorpusDir:  filepath.Join("testdata", "fuzzdrive"),
	}
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath string            // -c/--config flag value
	Env        map[string]string // environment variables
	Overrides  Layer             // CLI overrides
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/fuzzdrive/config.json)
// 3. Project config (.fuzzdrive.json, if it exists) or the explicit -c file
// 4. FUZZDRIVE_* environment variables
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		layer, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = globalPath
			cfg = merge(cfg, layer)
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, layer)
	}

	envLayer, applied, err := envLayer(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Env = applied
	cfg = merge(cfg, envLayer)
	cfg = merge(cfg, input.Overrides)

	cfg.DriverMode, err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.CorpusDirAbs = absPath(workDir, cfg.CorpusDir)

	if cfg.IndexPath != "" {
		cfg.IndexAbs = absPath(workDir, cfg.IndexPath)
	}

	return cfg, nil
}

// EnvMap converts os.Environ-style pairs to a map.
func EnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return env
}

// globalConfigPath uses $XDG_CONFIG_HOME/fuzzdrive/config.json if set,
// otherwise ~/.config/fuzzdrive/config.json. Empty if neither is known.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "fuzzdrive", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fuzzdrive", "config.json")
	}

	return ""
}

// loadFile reads one config file. A missing optional file is not loaded and
// not an error.
func loadFile(path string, mustExist bool) (Layer, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from caller
	if err != nil {
		switch {
		case mustExist && os.IsNotExist(err):
			return Layer{}, false, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case mustExist:
			return Layer{}, false, fmt.Errorf("%w: %s", ErrFileRead, path)
		default:
			return Layer{}, false, nil
		}
	}

	layer, err := Parse(data)
	if err != nil {
		return Layer{}, false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	return layer, true, nil
}

// Parse decodes a JSONC config document. Unknown keys are rejected.
func Parse(data []byte) (Layer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Layer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var layer Layer

	err = dec.Decode(&layer)
	if err != nil {
		return Layer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return layer, nil
}

// envLayer reads FUZZDRIVE_* variables. It returns the names it applied.
func envLayer(env map[string]string) (Layer, []string, error) {
	var (
		layer   Layer
		applied []string
	)

	type binding struct {
		name  string
		apply func(string) error
	}

	bindings := []binding{
		{"FUZZDRIVE_ITERATIONS", func(s string) error { return setInt(&layer.Iterations, s) }},
		{"FUZZDRIVE_SEED", func(s string) error {
			v, err := strconv.ParseUint(s, 0, 64)
			layer.Seed = &v

			return err
		}},
		{"FUZZDRIVE_MAX_LEN", func(s string) error { return setInt(&layer.MaxLen, s) }},
		{"FUZZDRIVE_WORKERS", func(s string) error { return setInt(&layer.Workers, s) }},
		{"FUZZDRIVE_TIMEOUT", func(s string) error { return setDuration(&layer.Timeout, s) }},
		{"FUZZDRIVE_SHRINK", func(s string) error {
			v, err := strconv.ParseBool(s)
			layer.Shrink = &v

			return err
		}},
		{"FUZZDRIVE_MODE", func(s string) error {
			layer.Mode = &s

			return nil
		}},
		{"FUZZDRIVE_CORPUS_DIR", func(s string) error {
			layer.CorpusDir = &s

			return nil
		}},
		{"FUZZDRIVE_INDEX_PATH", func(s string) error {
			layer.IndexPath = &s

			return nil
		}},
	}

	for _, b := range bindings {
		val, ok := env[b.name]
		if !ok || val == "" {
			continue
		}

		err := b.apply(val)
		if err != nil {
			return Layer{}, nil, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, b.name, val, err)
		}

		applied = append(applied, b.name)
	}

	return layer, applied, nil
}

func setInt(dst **int, s string) error {
	v, err := strconv.Atoi(s)
	*dst = &v

	return err
}

func setDuration(dst **Duration, s string) error {
	d, err := time.ParseDuration(s)
	v := Duration(d)
	*dst = &v

	return err
}

func merge(base Config, l Layer) Config {
	if l.Iterations != nil {
		base.Iterations = *l.Iterations
	}

	if l.Seed != nil {
		seed := *l.Seed
		base.Seed = &seed
	}

	if l.MaxLen != nil {
		base.MaxLen = *l.MaxLen
	}

	if l.Workers != nil {
		base.Workers = *l.Workers
	}

	if l.Timeout != nil {
		base.Timeout = *l.Timeout
	}

	if l.Shrink != nil {
		base.Shrink = *l.Shrink
	}

	if l.ShrinkAttempts != nil {
		base.ShrinkAttempts = *l.ShrinkAttempts
	}

	if l.ShrinkTime != nil {
		base.ShrinkTime = *l.ShrinkTime
	}

	if l.Mode != nil {
		base.Mode = *l.Mode
	}

	if l.CorpusDir != nil {
		base.CorpusDir = *l.CorpusDir
	}

	if l.IndexPath != nil {
		base.IndexPath = *l.IndexPath
	}

	return base
}

func validate(cfg Config) (driver.Mode, error) {
	var problems []string

	if cfg.Iterations <= 0 {
		problems = append(problems, "iterations must be positive")
	}

	if cfg.MaxLen <= 0 {
		problems = append(problems, "max_len must be positive")
	}

	if cfg.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}

	if cfg.Timeout < 0 || cfg.ShrinkTime < 0 {
		problems = append(problems, "durations cannot be negative")
	}

	if cfg.ShrinkAttempts < 0 {
		problems = append(problems, "shrink_attempts cannot be negative")
	}

	if cfg.CorpusDir == "" {
		problems = append(problems, "corpus_dir cannot be empty")
	}

	mode, err := driver.ParseMode(cfg.Mode)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}

	return mode, nil
}

func absPath(workDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(workDir, p)
}

// Format returns the config as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// Duration is a time.Duration written as a string ("250ms") in config
// files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}
