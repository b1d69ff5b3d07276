package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/loykin/processmon/internal/metrics"
)

const (
	triggerOK     = "ok"
	triggerFailed = "failed"
)

// runTriggers runs each trigger to completion before starting the next. A
// trigger that runs but exits non-zero is reported and the sequence goes on;
// failing to start or reap one is fatal. Cancelling ctx kills the running
// trigger and ends the sequence.
func (s *Supervisor) runTriggers(ctx context.Context, lg *slog.Logger, path string) error {
	if len(s.triggers) == 0 {
		lg.Debug("no triggers configured")
		return nil
	}
	extra := map[string]string{TriggerPathEnv: path}
	for _, trig := range s.triggers {
		lg.Debug("running trigger", slog.String("trigger", trig.Name), slog.String("command", trig.String()))
		start := time.Now()
		h, err := s.runner.Spawn(trig, extra)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", trig.Name, err)
		}
		if err = waitTrigger(ctx, h); errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lg.Info("trigger interrupted", slog.String("trigger", trig.Name))
			return err
		}
		elapsed := time.Since(start).Seconds()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			metrics.ObserveTrigger(trig.Name, triggerOK, elapsed)
		case errors.As(err, &exitErr):
			lg.Warn("trigger failed", slog.String("trigger", trig.Name), slog.Any("error", err))
			metrics.ObserveTrigger(trig.Name, triggerFailed, elapsed)
		default:
			return fmt.Errorf("trigger %s: wait: %w", trig.Name, err)
		}
	}
	return nil
}

func waitTrigger(ctx context.Context, h Handle) error {
	exited := make(chan error, 1)
	go func() { exited <- h.Wait() }()
	select {
	case err := <-exited:
		return err
	case <-ctx.Done():
		if err := h.Kill(); err != nil {
			return err
		}
		<-exited
		return ctx.Err()
	}
}
