package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/processmon"
	"github.com/loykin/processmon/internal/attach"
	"github.com/loykin/processmon/internal/config"
	"github.com/loykin/processmon/internal/logger"
	"github.com/loykin/processmon/internal/server"
	"github.com/loykin/processmon/pkg/client"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = ""
)

type command struct {
	stdin  *os.File // raw mode target for connect
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newCommand() *command {
	return &command{stdin: os.Stdin, in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
}

// load resolves the config with flags from fs layered on top. Errors are
// configuration errors and exit with code 2.
func (c *command) load(path string, fs *pflag.FlagSet) (*config.Config, *slog.Logger, error) {
	v := viper.New()
	if fs != nil {
		if err := config.BindFlags(v, fs); err != nil {
			return nil, nil, &ExitError{Code: 2, Err: err}
		}
	}
	cfg, err := config.Load(path, v)
	if err != nil {
		return nil, nil, &ExitError{Code: 2, Err: err}
	}
	return cfg, logger.Setup(cfg.Log, c.errOut), nil
}

// Start runs the monitor until ctx is cancelled (Ctrl-C) or a fatal error.
func (c *command) Start(ctx context.Context, fs *pflag.FlagSet, f StartFlags) error {
	cfg, lg, err := c.load(f.ConfigPath, fs)
	if err != nil {
		return err
	}
	mon := processmon.New(cfg, processmon.Options{Console: c.out, Logger: lg})

	if cfg.StatusListen != "" {
		if err := processmon.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if _, err := server.NewServer(ctx, cfg.StatusListen, "", mon, lg); err != nil {
			return &ExitError{Code: 2, Err: fmt.Errorf("status server: %w", err)}
		}
	}

	lg.Info("processmon starting",
		slog.String("config", cfg.Path),
		slog.Int("processes", len(cfg.Processes)),
		slog.Int("triggers", len(cfg.Triggers)))
	err = mon.Run(ctx)
	if errors.Is(err, context.Canceled) {
		lg.Info("processmon stopped")
		return nil
	}
	return err
}

// Connect bridges the terminal to the named process until EOF, detach or
// cancellation.
func (c *command) Connect(ctx context.Context, f ConnectFlags) error {
	cfg, lg, err := c.load(f.ConfigPath, nil)
	if err != nil {
		return err
	}
	spec, err := cfg.Process(f.Name)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	cl, err := attach.Dial(spec.ProcessPort, spec.ConnectPort, lg)
	if err != nil {
		return err
	}
	if f.Raw && c.stdin != nil {
		restore, err := attach.MakeRaw(c.stdin)
		if err != nil {
			_ = cl.Close()
			return err
		}
		defer restore()
		cl.DetachKey = attach.DefaultDetachKey
		cl.CRLF = true
	}

	hint := "Ctrl-D to exit"
	if cl.DetachKey != 0 {
		hint = "Ctrl-] to detach"
	}
	_, _ = fmt.Fprintf(c.errOut, "connected to %s on %s:%d (%s)\n", spec.Name, attach.Host, spec.ProcessPort, hint)

	err = cl.Run(ctx, c.in, c.out)
	switch {
	case err == nil, errors.Is(err, attach.ErrDetached), errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

type configView struct {
	Path           string            `json:"path"`
	PortRangeStart int               `json:"port_range_start"`
	Debug          bool              `json:"debug_mode"`
	Paths          []pathView        `json:"paths_to_watch"`
	Processes      []processmon.Spec `json:"processes"`
	Triggers       []processmon.Spec `json:"triggers,omitempty"`
}

type pathView struct {
	Path   string   `json:"path"`
	Ignore []string `json:"ignore,omitempty"`
}

// PrintConfig prints the resolved order and ports.
func (c *command) PrintConfig(fs *pflag.FlagSet, f ConfigFlags) error {
	cfg, _, err := c.load(f.ConfigPath, fs)
	if err != nil {
		return err
	}
	view := configView{
		Path:           cfg.Path,
		PortRangeStart: cfg.PortRangeStart,
		Debug:          cfg.Debug,
		Processes:      cfg.Processes,
		Triggers:       cfg.Triggers,
	}
	for _, p := range cfg.Paths {
		view.Paths = append(view.Paths, pathView{Path: p.Root, Ignore: p.Ignore})
	}
	if f.JSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "config:\t%s\n", view.Path)
	_, _ = fmt.Fprintf(tw, "port_range_start:\t%d\n", view.PortRangeStart)
	_, _ = fmt.Fprintf(tw, "debug_mode:\t%t\n", view.Debug)
	_, _ = fmt.Fprintln(tw, "\nwatch:")
	for _, p := range view.Paths {
		ign := "-"
		if len(p.Ignore) > 0 {
			ign = strings.Join(p.Ignore, ",")
		}
		_, _ = fmt.Fprintf(tw, "  %s\tignore=%s\n", p.Path, ign)
	}
	_, _ = fmt.Fprintln(tw, "\nprocesses:")
	for _, s := range view.Processes {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\tprocess_port=%d\tconnect_port=%d\n", s.Name, s.String(), s.ProcessPort, s.ConnectPort)
	}
	if len(view.Triggers) > 0 {
		_, _ = fmt.Fprintln(tw, "\ntriggers:")
		for _, s := range view.Triggers {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", s.Name, s.String())
		}
	}
	return tw.Flush()
}

// Status prints what a running supervisor reports through its status server.
func (c *command) Status(ctx context.Context, f StatusFlags) error {
	addr := f.URL
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	if addr == "" {
		cfg, l, err := c.load(f.ConfigPath, nil)
		if err != nil {
			return err
		}
		if cfg.StatusListen == "" {
			return &ExitError{Code: 2, Err: errors.New("no status server: set status.listen in the config or pass --url")}
		}
		addr, lg = cfg.StatusListen, l
	}
	cl := client.New(client.Config{BaseURL: addr, Logger: lg})

	var v any
	if f.Name != "" {
		ps, err := cl.ProcessStatus(ctx, f.Name)
		if err != nil {
			return err
		}
		v = ps
		if !f.JSON {
			return c.printStatus(client.Status{Running: []client.ProcessStatus{ps}}, false)
		}
	} else {
		st, err := cl.Status(ctx)
		if err != nil {
			return err
		}
		v = st
		if !f.JSON {
			return c.printStatus(st, true)
		}
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *command) printStatus(st client.Status, header bool) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	if header {
		last := "never"
		if st.LastRestartAt != nil {
			last = st.LastRestartAt.Local().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "restarts:\t%d\n", st.Restarts)
		_, _ = fmt.Fprintf(tw, "last_restart:\t%s\n\n", last)
	}
	_, _ = fmt.Fprintln(tw, "NAME\tPID\tSTARTED\tPORTS")
	for _, p := range st.Running {
		ports := "-"
		if p.ProcessPort > 0 {
			ports = fmt.Sprintf("%d/%d", p.ProcessPort, p.ConnectPort)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Name, p.PID, p.StartedAt.Local().Format(time.RFC3339), ports)
	}
	return tw.Flush()
}

func (c *command) Version() error {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	_, err := fmt.Fprintf(c.out, "processmon %s %s %s/%s\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return err
}
