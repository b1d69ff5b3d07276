// Package processmon restarts a set of processes whenever files under the
// watched paths change, optionally running trigger commands in between, and
// lets an operator attach to a running process over loopback UDP.
package processmon

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/loykin/processmon/internal/config"
	"github.com/loykin/processmon/internal/env"
	"github.com/loykin/processmon/internal/ignore"
	"github.com/loykin/processmon/internal/metrics"
	"github.com/loykin/processmon/internal/process"
	"github.com/loykin/processmon/internal/supervisor"
	"github.com/loykin/processmon/internal/watch"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Config = config.Config

type Status = supervisor.Status

type ProcessStatus = supervisor.ProcessStatus

type WatchedPath = watch.WatchedPath

var (
	ErrEventsClosed   = supervisor.ErrEventsClosed
	ErrNoProcesses    = config.ErrNoProcesses
	ErrUnknownProcess = config.ErrUnknownProcess
)

// LoadConfig reads a project file with defaults and PROCESSMON_* overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path, nil) }

// Options tunes a Monitor. Zero values fall back to os.Stdout and
// slog.Default().
type Options struct {
	Console io.Writer
	Logger  *slog.Logger
}

// Monitor connects the watch source, the event filter and the supervisor.
type Monitor struct {
	cfg    *Config
	logger *slog.Logger
	sup    *supervisor.Supervisor
}

func New(cfg *Config, opts Options) *Monitor {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	out := opts.Console
	if out == nil {
		out = os.Stdout
	}

	console := process.NewConsole(out)
	console.Assign(cfg.ProcessNames()...)
	for _, t := range cfg.Triggers {
		console.AssignColor(t.Name, process.TriggerColor)
	}
	e := env.New()
	for k, v := range cfg.EnvVars() {
		e.Set(k, v)
	}
	runner := process.NewRunner(console, e, cfg.Log, lg)

	sup := supervisor.New(supervisor.Config{
		Processes: cfg.Processes,
		Triggers:  cfg.Triggers,
		Ignore:    ignore.New(cfg.Paths, cfg.Cwd),
		Runner:    supervisor.ProcessRunner{Runner: runner},
		Logger:    lg,
	})
	return &Monitor{cfg: cfg, logger: lg, sup: sup}
}

// Run blocks until ctx is cancelled or a fatal error occurs. Every
// supervised process is killed before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	src, err := watch.NewSource(m.cfg.Paths, m.cfg.Cwd, m.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := make(chan watch.ChangeEvent, watch.DefaultQueueSize)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = src.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = watch.NewFilter().Run(ctx, src.Events(), changes)
	}()

	err = m.sup.Run(ctx, changes)
	cancel()
	wg.Wait()
	return err
}

// Status reports the supervisor's current view.
func (m *Monitor) Status(ctx context.Context) (Status, error) { return m.sup.Status(ctx) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
