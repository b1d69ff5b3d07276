package processmon

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitorRestartsOnChange(t *testing.T) {
	requireUnix(t)
	watched := t.TempDir()
	outDir := t.TempDir()
	marker := filepath.Join(outDir, "trigger.out")
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg := &Config{
		Cwd:   cwd,
		Paths: []WatchedPath{{Root: watched, Ignore: []string{"tmp"}}},
		Processes: []Spec{
			{Name: "web", Command: "sh", Args: []string{"-c", "echo started; sleep 30"}},
		},
		Triggers: []Spec{
			{Name: "record", Command: "sh", Args: []string{"-c", `echo "$TRIGGER_PATH" >> "$MARKER"`}, Env: map[string]string{"marker": marker}},
		},
	}
	console := &syncBuffer{}
	mon := New(cfg, Options{Console: console})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Count(console.String(), "web: started") == 1
	}, 5*time.Second, 20*time.Millisecond)

	changed := filepath.Join(watched, "main.go")
	require.NoError(t, os.WriteFile(changed, []byte("package main\n"), 0o600))

	require.Eventually(t, func() bool {
		return strings.Count(console.String(), "web: started") == 2
	}, 5*time.Second, 20*time.Millisecond)

	b, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, changed, strings.TrimSpace(strings.Split(string(b), "\n")[0]))

	st, err := mon.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Restarts)
	require.Len(t, st.Running, 1)
	assert.Equal(t, "web", st.Running[0].Name)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestMonitorTriggerWithBackgroundChild(t *testing.T) {
	requireUnix(t)
	watched := t.TempDir()
	pidFile := filepath.Join(t.TempDir(), "bg.pid")
	t.Cleanup(func() {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return
		}
		if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
			if p, err := os.FindProcess(pid); err == nil {
				_ = p.Kill()
			}
		}
	})

	cfg := &Config{
		Paths: []WatchedPath{{Root: watched}},
		Processes: []Spec{
			{Name: "web", Command: "sh", Args: []string{"-c", "echo started; sleep 30"}},
		},
		Triggers: []Spec{
			{Name: "db", Command: "sh", Args: []string{"-c", `sleep 30 & echo $! > "$PID_FILE"; echo launched`}, Env: map[string]string{"pid_file": pidFile}},
		},
	}
	console := &syncBuffer{}
	mon := New(cfg, Options{Console: console})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(console.String(), "web: started")
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(watched, "a.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool {
		return strings.Count(console.String(), "web: started") == 2
	}, 10*time.Second, 20*time.Millisecond, "respawn must not wait for the trigger's background child")
	assert.Contains(t, console.String(), "db: launched")

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	_, err := mon.Status(sctx)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestMonitorMissingWatchPath(t *testing.T) {
	cfg := &Config{
		Paths:     []WatchedPath{{Root: filepath.Join(t.TempDir(), "gone")}},
		Processes: []Spec{{Name: "web", Command: "true"}},
	}
	err := New(cfg, Options{Console: &syncBuffer{}}).Run(context.Background())
	assert.Error(t, err)
}

func TestLoadConfigFacade(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processmon.toml")
	body := "[[paths_to_watch]]\npath = \"" + dir + "\"\n[processes.a]\ncommand = \"true\"\n[processes.b]\ncommand = \"true\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Processes, 2)
	assert.Equal(t, 40002, cfg.Processes[1].ProcessPort)

	_, err = cfg.Process("zzz")
	assert.ErrorIs(t, err, ErrUnknownProcess)
}

func TestMetricsFacade(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg), "second registration is a no-op")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
