package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/loykin/processmon"
)

// Runs the sample project in-process and prints the supervisor status every
// few seconds until interrupted. Run from the example directory.
func main() {
	cfg, err := processmon.LoadConfig(filepath.Join(".", "processmon.toml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mon := processmon.New(cfg, processmon.Options{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})

	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				st, err := mon.Status(ctx)
				if err != nil {
					return
				}
				b, _ := json.MarshalIndent(st, "", "  ")
				fmt.Println(string(b))
			}
		}
	}()

	if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
