// Package supervisor runs the restart control loop: it consumes filtered
// change events, applies the ignore set and the debounce window, and drives
// the kill -> triggers -> respawn sequence.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/processmon/internal/metrics"
	"github.com/loykin/processmon/internal/process"
	"github.com/loykin/processmon/internal/watch"
)

// DebounceWindow is how long after a completed restart further events are
// treated as already handled.
const DebounceWindow = 2 * time.Second

// TriggerPathEnv carries the changed path into every trigger.
const TriggerPathEnv = "TRIGGER_PATH"

var (
	// ErrEventsClosed means the change event stream ended. The supervisor has
	// no other view of the filesystem, so this is fatal.
	ErrEventsClosed = errors.New("supervisor: change event stream closed")
	// ErrStopped is returned by Status once Run has returned.
	ErrStopped = errors.New("supervisor: not running")
)

// Ignorer decides whether a changed path is suppressed.
type Ignorer interface {
	ShouldIgnore(path string) bool
}

// Config wires the supervisor. Processes and Triggers are in configuration
// order; triggers run in exactly this order.
type Config struct {
	Processes []process.Spec
	Triggers  []process.Spec
	Ignore    Ignorer
	Runner    Runner
	Logger    *slog.Logger
}

// Supervisor owns the set of running handles. Only the goroutine executing
// Run touches it; other goroutines ask for a snapshot through Status.
type Supervisor struct {
	processes []process.Spec
	triggers  []process.Spec
	ignore    Ignorer
	runner    Runner
	logger    *slog.Logger
	now       func() time.Time

	statusReq chan chan Status
	stopped   chan struct{}

	// control loop state
	running       map[string]Handle
	lastRestartAt time.Time
	restarts      int
	cycle         string
}

func New(cfg Config) *Supervisor {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Supervisor{
		processes: cfg.Processes,
		triggers:  cfg.Triggers,
		ignore:    cfg.Ignore,
		runner:    cfg.Runner,
		logger:    lg,
		now:       time.Now,
		statusReq: make(chan chan Status),
		stopped:   make(chan struct{}),
		running:   make(map[string]Handle, len(cfg.Processes)),
	}
}

// Run spawns every process and then handles change events until a fatal
// error, the event stream closing, or ctx being cancelled. Running processes
// are killed before Run returns in every case.
func (s *Supervisor) Run(ctx context.Context, events <-chan watch.ChangeEvent) (err error) {
	defer close(s.stopped)
	defer func() {
		if kerr := s.killAll(); kerr != nil {
			s.logger.Error("shutdown kill failed", slog.Any("error", kerr))
			if err == nil {
				err = kerr
			}
		}
	}()

	if err := s.spawnAll(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping supervised processes", slog.Int("count", len(s.running)))
			return ctx.Err()
		case reply := <-s.statusReq:
			reply <- s.snapshot()
		case ev, ok := <-events:
			if !ok {
				return ErrEventsClosed
			}
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev watch.ChangeEvent) error {
	if s.ignore != nil && s.ignore.ShouldIgnore(ev.Path) {
		s.logger.Debug("ignoring changed path", slog.String("path", ev.Path))
		metrics.IncEvent(metrics.EventIgnored)
		return nil
	}
	if !s.lastRestartAt.IsZero() && ev.ObservedAt.Sub(s.lastRestartAt) <= DebounceWindow {
		s.logger.Debug("change within debounce window", slog.String("path", ev.Path))
		metrics.IncEvent(metrics.EventDebounced)
		return nil
	}
	metrics.IncEvent(metrics.EventAccepted)
	return s.restart(ctx, ev.Path)
}

// restart kills everything, runs triggers and respawns. last_restart_at is
// stamped after the whole sequence so events caused by the restart itself
// fall inside the window.
func (s *Supervisor) restart(ctx context.Context, path string) error {
	cycle := uuid.NewString()
	lg := s.logger.With(slog.String("cycle", cycle))
	lg.Info("restarting", slog.String("changed", path))
	start := s.now()

	if err := s.killAll(); err != nil {
		return err
	}
	if err := s.runTriggers(ctx, lg, path); err != nil {
		return err
	}
	if err := s.spawnAll(); err != nil {
		return err
	}

	s.lastRestartAt = s.now()
	s.restarts++
	s.cycle = cycle
	metrics.ObserveRestart(s.lastRestartAt.Sub(start).Seconds())
	return nil
}

func (s *Supervisor) spawnAll() error {
	for _, spec := range s.processes {
		if _, alive := s.running[spec.Name]; alive {
			return fmt.Errorf("spawn %s: previous instance still running", spec.Name)
		}
		s.logger.Debug("starting process", slog.String("process", spec.Name), slog.String("command", spec.String()))
		h, err := s.runner.Spawn(spec, nil)
		if err != nil {
			return err
		}
		s.running[spec.Name] = h
		metrics.SetRunning(len(s.running))
	}
	return nil
}

// killAll kills in configuration order. A handle leaves the registry only
// once its kill (and wait) succeeded.
func (s *Supervisor) killAll() error {
	if len(s.running) == 0 {
		return nil
	}
	s.logger.Debug("killing running processes", slog.Int("count", len(s.running)))
	for _, spec := range s.processes {
		h, ok := s.running[spec.Name]
		if !ok {
			continue
		}
		if err := h.Kill(); err != nil {
			return err
		}
		delete(s.running, spec.Name)
		metrics.SetRunning(len(s.running))
	}
	return nil
}

func (s *Supervisor) snapshot() Status {
	st := Status{
		Running:  make([]ProcessStatus, 0, len(s.running)),
		Restarts: s.restarts,
		Cycle:    s.cycle,
	}
	if !s.lastRestartAt.IsZero() {
		t := s.lastRestartAt
		st.LastRestartAt = &t
	}
	for _, spec := range s.processes {
		if h, ok := s.running[spec.Name]; ok {
			st.Running = append(st.Running, h.Status())
		}
	}
	return st
}

// Status asks the control loop for a snapshot.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.statusReq <- reply:
	case <-s.stopped:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
