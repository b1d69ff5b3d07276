// Package config loads the processmon project file.
//
// The file is TOML. Tables (paths_to_watch, processes, triggers) are decoded
// with BurntSushi/toml so that process and trigger order follows the
// document. Scalar settings go through viper with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PROCESSMON_ prefix)
//  3. The config file
//  4. Defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/loykin/processmon/internal/logger"
	"github.com/loykin/processmon/internal/process"
	"github.com/loykin/processmon/internal/watch"
	"github.com/spf13/viper"
)

const (
	// DefaultFile is looked up in the working directory when no path is given.
	DefaultFile = "processmon.toml"
	// DefaultPortRangeStart is the first attach port.
	DefaultPortRangeStart = 40000
	// EnvPrefix prefixes environment overrides, e.g. PROCESSMON_DEBUG_MODE.
	EnvPrefix = "PROCESSMON"

	maxPort = 65535
)

// Setting keys shared by the file, the environment and flags.
const (
	KeyDebugMode      = "debug_mode"
	KeyPortRangeStart = "port_range_start"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyLogDir         = "log.dir"
	KeyLogMaxSizeMB   = "log.max_size_mb"
	KeyLogMaxBackups  = "log.max_backups"
	KeyLogMaxAgeDays  = "log.max_age_days"
	KeyLogCompress    = "log.compress"
	KeyStatusListen   = "status.listen"
)

var (
	ErrNoProcesses    = errors.New("config: no processes configured")
	ErrUnknownProcess = errors.New("config: unknown process")
)

// PathConfig is one paths_to_watch entry.
type PathConfig struct {
	Path   string   `toml:"path"`
	Ignore []string `toml:"ignore"`
}

// FileConfig is the table part of the TOML document. Scalars are read
// through viper instead.
type FileConfig struct {
	PathsToWatch []PathConfig            `toml:"paths_to_watch"`
	Processes    map[string]process.Spec `toml:"processes"`
	Triggers     map[string]process.Spec `toml:"triggers"`
	Env          []string                `toml:"env"`
	EnvFiles     []string                `toml:"env_files"`
}

// Config is the resolved, validated configuration.
type Config struct {
	Path           string
	Cwd            string
	Paths          []watch.WatchedPath
	Processes      []process.Spec // document order, ports assigned
	Triggers       []process.Spec // document order
	Env            []string       // global KEY=VALUE applied to every child
	Debug          bool
	PortRangeStart int
	Log            logger.Config
	StatusListen   string
}

// Load reads path and layers v (flags and environment) over it. v may be
// nil. Ports are assigned before Load returns.
func Load(path string, v *viper.Viper) (*Config, error) {
	path = ResolvePath(path)
	// Mitigate G304: the path is operator supplied.
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var fc FileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	configureEnv(v)
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	cfg := &Config{
		Path:           path,
		Cwd:            cwd,
		Processes:      ordered(md, "processes", fc.Processes),
		Triggers:       ordered(md, "triggers", fc.Triggers),
		Debug:          v.GetBool(KeyDebugMode),
		PortRangeStart: v.GetInt(KeyPortRangeStart),
		StatusListen:   v.GetString(KeyStatusListen),
		Log: logger.Config{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: logger.Format(strings.ToLower(v.GetString(KeyLogFormat))),
			File: logger.FileConfig{
				Dir:        v.GetString(KeyLogDir),
				MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
				MaxBackups: v.GetInt(KeyLogMaxBackups),
				MaxAgeDays: v.GetInt(KeyLogMaxAgeDays),
				Compress:   v.GetBool(KeyLogCompress),
			},
		},
	}
	if cfg.Debug {
		cfg.Log.Level = logger.LevelDebug
	}
	for _, p := range fc.PathsToWatch {
		cfg.Paths = append(cfg.Paths, watch.WatchedPath{Root: p.Path, Ignore: p.Ignore})
	}

	base := filepath.Dir(path)
	envs, err := globalEnv(fc, base)
	if err != nil {
		return nil, err
	}
	cfg.Env = envs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AssignPorts(cfg.Processes, cfg.PortRangeStart)
	// triggers run to completion and are never attachable
	for i := range cfg.Triggers {
		cfg.Triggers[i].ProcessPort, cfg.Triggers[i].ConnectPort = 0, 0
	}
	return cfg, nil
}

// ResolvePath picks the config file: the explicit path, then
// PROCESSMON_CONFIG, then DefaultFile.
func ResolvePath(p string) string {
	if p != "" {
		return p
	}
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}
	return DefaultFile
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDebugMode, false)
	v.SetDefault(KeyPortRangeStart, DefaultPortRangeStart)
	v.SetDefault(KeyLogLevel, logger.LevelInfo)
	v.SetDefault(KeyLogFormat, string(logger.FormatText))
	v.SetDefault(KeyLogDir, "")
	v.SetDefault(KeyLogMaxSizeMB, logger.DefaultMaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, logger.DefaultMaxBackups)
	v.SetDefault(KeyLogMaxAgeDays, logger.DefaultMaxAgeDays)
	v.SetDefault(KeyLogCompress, false)
	v.SetDefault(KeyStatusListen, "")
}

// configureEnv maps log.level to PROCESSMON_LOG_LEVEL and so on.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ordered returns the entries of the named table in document order. A name
// is placed by the first key below [table, name], which covers both
// [table.name] headers and dotted keys. Entries with no key of their own (a
// top-level inline table) follow in name order.
func ordered(md toml.MetaData, table string, m map[string]process.Spec) []process.Spec {
	if len(m) == 0 {
		return nil
	}
	out := make([]process.Spec, 0, len(m))
	seen := make(map[string]bool, len(m))
	add := func(name string) {
		spec, ok := m[name]
		if !ok || seen[name] {
			return
		}
		spec.Name = name
		seen[name] = true
		out = append(out, spec)
	}
	for _, k := range md.Keys() {
		if len(k) >= 2 && k[0] == table {
			add(k[1])
		}
	}
	if len(out) < len(m) {
		rest := make([]string, 0, len(m)-len(out))
		for name := range m {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		for _, name := range rest {
			add(name)
		}
	}
	return out
}

// AssignPorts gives the i-th spec process_port base+2i and connect_port
// base+2i+1, replacing anything set in the file.
func AssignPorts(specs []process.Spec, base int) {
	for i := range specs {
		specs[i].ProcessPort = base + 2*i
		specs[i].ConnectPort = base + 2*i + 1
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if len(c.Processes) == 0 {
		return ErrNoProcesses
	}
	if len(c.Paths) == 0 {
		return errors.New("config: paths_to_watch must list at least one path")
	}
	for _, p := range c.Paths {
		if p.Root == "" {
			return errors.New("config: paths_to_watch entry requires path")
		}
		root := p.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(c.Cwd, root)
		}
		if _, err := os.Stat(root); err != nil {
			return fmt.Errorf("config: watch path %q: %w", p.Root, err)
		}
	}
	if err := validateSpecs("process", c.Processes); err != nil {
		return err
	}
	if err := validateSpecs("trigger", c.Triggers); err != nil {
		return err
	}
	if c.PortRangeStart <= 0 || c.PortRangeStart+2*len(c.Processes)-1 > maxPort {
		return fmt.Errorf("config: port_range_start %d cannot fit %d processes", c.PortRangeStart, len(c.Processes))
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func validateSpecs(kind string, specs []process.Spec) error {
	for _, s := range specs {
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("config: %s %q requires command", kind, s.Name)
		}
		if s.WorkDir != "" {
			info, err := os.Stat(s.WorkDir)
			if err != nil {
				return fmt.Errorf("config: %s %q working_dir: %w", kind, s.Name, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("config: %s %q working_dir %q is not a directory", kind, s.Name, s.WorkDir)
			}
		}
	}
	return nil
}

// Process looks up a configured process by name.
func (c *Config) Process(name string) (process.Spec, error) {
	for _, s := range c.Processes {
		if s.Name == name {
			return s, nil
		}
	}
	return process.Spec{}, fmt.Errorf("%w: %q", ErrUnknownProcess, name)
}

// ProcessNames returns process names in configuration order.
func (c *Config) ProcessNames() []string {
	out := make([]string, 0, len(c.Processes))
	for _, s := range c.Processes {
		out = append(out, s.Name)
	}
	return out
}
