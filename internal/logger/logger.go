package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config is the supervisor's own log setup plus optional files for
// supervised process output.
type Config struct {
	Level  string
	Format Format
	File   FileConfig
}

// FileConfig describes rotating files that mirror supervised process output.
// When Dir is set, files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string // base directory for logs; empty disables file output
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
}

// Validate checks level and format values.
func (c Config) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.Level)
	}
	switch c.Format {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.Format)
	}
	return nil
}

// ProcessWriters returns io.WriteClosers for stdout and stderr of the named
// process, or nils when file output is disabled.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	if c.File.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.File.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	outW := c.File.rotating(filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name)))
	errW := c.File.rotating(filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name)))
	return outW, errW, nil
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. Text output gets level colors when w is
// a terminal.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		if isTerminal(w) {
			handler = NewColorTextHandler(w, opts)
		} else {
			handler = slog.NewTextHandler(w, opts)
		}
	}
	return slog.New(handler)
}

// Setup creates the logger for w and installs it as the process-wide default.
func Setup(cfg Config, w io.Writer) *slog.Logger {
	l := New(cfg, w)
	slog.SetDefault(l)
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
