package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/processmon/internal/attach"
	"github.com/loykin/processmon/internal/env"
	"github.com/loykin/processmon/internal/logger"
	"github.com/loykin/processmon/internal/metrics"
)

// DrainTimeout bounds how long output is still read after the process itself
// has exited.
const DrainTimeout = time.Second

// Runner starts processes and wires their output to the console, optional
// log files and, for attachable specs, an attach channel.
type Runner struct {
	Console *Console
	Env     *env.Env
	Log     logger.Config
	Logger  *slog.Logger
}

func NewRunner(console *Console, e *env.Env, log logger.Config, lg *slog.Logger) *Runner {
	return &Runner{Console: console, Env: e, Log: log, Logger: lg}
}

// Spawn starts spec with extraEnv layered over the merged environment. It
// returns once the OS process exists; there is no readiness check.
func (r *Runner) Spawn(spec Spec, extraEnv map[string]string) (*Handle, error) {
	lg := r.logger().With(slog.String("process", spec.Name))
	e := r.Env
	if e == nil {
		e = env.New()
	}
	console := r.Console
	if console == nil {
		console = NewConsole(os.Stdout)
	}

	var (
		ch               *attach.Channel
		outFile, errFile io.WriteCloser
		parentEnds       []io.Closer
		childEnds        []io.Closer
	)
	fail := func(err error) (*Handle, error) {
		closeAll(ch, append(append(parentEnds, childEnds...), outFile, errFile)...)
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}

	var err error
	if spec.Attachable() {
		if ch, err = attach.Open(spec.Name, spec.ProcessPort, spec.ConnectPort, lg); err != nil {
			return fail(err)
		}
	}
	if outFile, errFile, err = r.Log.ProcessWriters(spec.Name); err != nil {
		return fail(fmt.Errorf("log files: %w", err))
	}

	cmd := spec.BuildCommand(e.Merge(spec.Env, extraEnv))
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("stdout pipe: %w", err))
	}
	parentEnds, childEnds = append(parentEnds, stdout), append(childEnds, stdoutW)
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("stderr pipe: %w", err))
	}
	parentEnds, childEnds = append(parentEnds, stderr), append(childEnds, stderrW)
	cmd.Stdout, cmd.Stderr = stdoutW, stderrW

	var stdin *os.File
	if ch != nil {
		stdinR, stdinW, err := os.Pipe()
		if err != nil {
			return fail(fmt.Errorf("stdin pipe: %w", err))
		}
		parentEnds, childEnds = append(parentEnds, stdinW), append(childEnds, stdinR)
		cmd.Stdin, stdin = stdinR, stdinW
	}

	if err := cmd.Start(); err != nil {
		return fail(err)
	}
	// the child holds its own copies now
	closeAll(nil, childEnds...)
	lg.Debug("process started", slog.Int("pid", cmd.Process.Pid), slog.String("command", spec.String()))

	h := &Handle{
		spec:      spec,
		cmd:       cmd,
		console:   console,
		channel:   ch,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		outFile:   outFile,
		errFile:   errFile,
		logger:    lg,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	if ch != nil {
		ch.RelayTo(stdin)
	}
	h.readers.Add(2)
	go h.pump(stdout, false, outFile)
	go h.pump(stderr, true, errFile)
	go h.wait()
	metrics.IncSpawn(spec.Name)
	return h, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Handle owns a started OS process and every goroutine serving it.
type Handle struct {
	spec      Spec
	cmd       *exec.Cmd
	console   *Console
	channel   *attach.Channel
	stdin     *os.File
	stdout    *os.File
	stderr    *os.File
	outFile   io.WriteCloser
	errFile   io.WriteCloser
	logger    *slog.Logger
	startedAt time.Time

	readers     sync.WaitGroup
	done        chan struct{}
	err         error // set before done is closed
	killed      atomic.Bool
	killOnce    sync.Once
	killErr     error
	releaseOnce sync.Once
}

func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Status snapshots the handle.
func (h *Handle) Status() Status {
	return Status{
		Name:        h.spec.Name,
		PID:         h.PID(),
		StartedAt:   h.startedAt,
		ProcessPort: h.spec.ProcessPort,
		ConnectPort: h.spec.ConnectPort,
	}
}

// Kill signals the process group and blocks until the child has been reaped,
// both output readers have finished and the attach relay has stopped. An
// exit caused by the kill is not reported as an error.
func (h *Handle) Kill() error {
	h.killOnce.Do(func() {
		h.killed.Store(true)
		select {
		case <-h.done:
		default:
			if err := killGroup(h.cmd.Process); err != nil {
				h.killErr = fmt.Errorf("kill %s (pid %d): %w", h.spec.Name, h.PID(), err)
				return
			}
			metrics.IncKill(h.spec.Name)
		}
		<-h.done
		h.release()
	})
	return h.killErr
}

// Wait blocks until the process exits on its own and returns its exit error.
func (h *Handle) Wait() error {
	<-h.done
	h.release()
	return h.err
}

func (h *Handle) pump(r io.Reader, stderr bool, file io.Writer) {
	defer h.readers.Done()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			h.console.Line(h.spec.Name, stderr, line)
			if file != nil {
				_, _ = file.Write(line)
			}
			if !stderr && h.channel != nil {
				h.channel.Send(line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				h.logger.Warn("output reader stopped", slog.Bool("stderr", stderr), slog.Any("error", err))
			}
			return
		}
	}
}

// wait reaps the child, then gives the readers DrainTimeout to reach EOF.
// Descendants that inherited stdout/stderr keep the pipes open past the
// child's exit; their remaining output is cut off rather than waited for.
func (h *Handle) wait() {
	h.err = h.cmd.Wait()
	h.drain()
	close(h.done)
	metrics.IncExit(h.spec.Name)

	switch {
	case h.killed.Load():
		h.logger.Debug("process killed")
	case h.err != nil:
		h.logger.Warn("process exited", slog.Any("error", h.err))
	default:
		h.logger.Info("process exited")
	}
}

func (h *Handle) drain() {
	finished := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(finished)
	}()
	timer := time.NewTimer(DrainTimeout)
	defer timer.Stop()
	select {
	case <-finished:
		return
	case <-timer.C:
	}
	h.logger.Debug("output still held open after exit", slog.Duration("after", DrainTimeout))
	_ = h.stdout.Close()
	_ = h.stderr.Close()
	<-finished
}

func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		closeAll(h.channel, h.stdin, h.stdout, h.stderr, h.outFile, h.errFile)
	})
}

func closeAll(ch *attach.Channel, files ...io.Closer) {
	if ch != nil {
		_ = ch.Close()
	}
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
