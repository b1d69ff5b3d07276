package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/processmon/internal/config"
	"github.com/loykin/processmon/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// execute runs the command tree and maps the result onto an exit code:
// 0 success, 2 configuration or usage errors, 1 anything else.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(newCommand())
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "processmon:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot(c *command) *cobra.Command {
	root := &cobra.Command{
		Use:   "processmon",
		Short: "Restart processes when files change",
		Long: `processmon runs the processes listed in processmon.toml and restarts
all of them whenever a file below one of the watched paths changes.
Trigger commands run between the kill and the respawn, with the changed
path in TRIGGER_PATH.

Examples:
  processmon start
  processmon start --config ./dev/processmon.toml --debug
  processmon connect web
  processmon status
  processmon config`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Flag parsing errors return exit code 2.
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	root.AddCommand(
		createStartCommand(c, &StartFlags{}),
		createConnectCommand(c, &ConnectFlags{}),
		createConfigCommand(c, &ConfigFlags{}),
		createStatusCommand(c, &StatusFlags{}),
		createVersionCommand(c),
	)
	return root
}

func createStartCommand(c *command, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start all processes and restart them on changes",
		Long: `Start every configured process, then watch paths_to_watch and run the
kill -> triggers -> respawn sequence for each change outside the ignore
lists. Changes within two seconds of the previous restart are absorbed.

Settings precedence: flags > PROCESSMON_* environment > file > defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Start(cmd.Context(), cmd.Flags(), *f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.ConfigPath, "config", "", "path to TOML config file (default: processmon.toml, env PROCESSMON_CONFIG)")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug output (same as debug_mode = true)")
	fs.IntVar(&f.PortRangeStart, "port-range-start", config.DefaultPortRangeStart, "first UDP port used for attach channels")
	fs.StringVar(&f.LogLevel, "log-level", logger.LevelInfo, "log level: debug, info, warn, error")
	fs.StringVar(&f.LogFormat, "log-format", string(logger.FormatText), "log format: text, json")
	fs.StringVar(&f.LogDir, "log-dir", "", "directory for per-process output files (disabled when empty)")
	fs.StringVar(&f.StatusListen, "status-listen", "", "address for the status/metrics HTTP server, e.g. 127.0.0.1:9090")
	return cmd
}

func createConnectCommand(c *command, f *ConnectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <process>",
		Short: "Attach the terminal to a running process",
		Long: `Bridge this terminal to the stdin/stdout of a supervised process over
loopback UDP. Input is sent per read; process output is printed as it
arrives. The session survives restarts of the process.

Without --raw the terminal stays in line mode and Ctrl-D or Ctrl-C ends
the session. With --raw every keystroke is forwarded and Ctrl-] detaches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return c.Connect(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().BoolVar(&f.Raw, "raw", false, "put the terminal in raw mode (detach with Ctrl-])")
	return cmd
}

func createConfigCommand(c *command, f *ConfigFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long:  "Print processes and triggers in execution order together with their assigned attach ports.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.PrintConfig(cmd.Flags(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print as JSON")
	return cmd
}

func createStatusCommand(c *command, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [process]",
		Short: "Query a running supervisor",
		Long: `Ask the status server of a running "processmon start" for the processes
it currently runs. The server address comes from --url, or from
status.listen in the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&f.URL, "url", "", "status server address (default: status.listen from config)")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print as JSON")
	return cmd
}

func createVersionCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.Version()
		},
	}
}
