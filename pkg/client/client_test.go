package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("name") {
		case "":
			_, _ = w.Write([]byte(`{"running":[{"name":"web","pid":42,"started_at":"2026-01-02T03:04:05Z","process_port":40000,"connect_port":40001}],"restarts":3,"cycle":"abc"}`))
		case "web":
			_, _ = w.Write([]byte(`{"name":"web","pid":42,"started_at":"2026-01-02T03:04:05Z"}`))
		case "bad name":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid name"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"process not running"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)
	c := New(Config{BaseURL: srv.URL})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Running, 1)
	assert.Equal(t, "web", st.Running[0].Name)
	assert.Equal(t, 42, st.Running[0].PID)
	assert.Equal(t, 40001, st.Running[0].ConnectPort)
	assert.Equal(t, 3, st.Restarts)
	assert.Equal(t, "abc", st.Cycle)
	assert.Nil(t, st.LastRestartAt)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), st.Running[0].StartedAt.UTC())
}

func TestProcessStatus(t *testing.T) {
	srv := newTestServer(t)
	c := New(Config{BaseURL: srv.URL + "/"})

	ps, err := c.ProcessStatus(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, 42, ps.PID)

	_, err = c.ProcessStatus(context.Background(), "gone")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "process not running")

	_, err = c.ProcessStatus(context.Background(), "bad name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400: invalid name")
}

func TestIsReachable(t *testing.T) {
	srv := newTestServer(t)
	assert.True(t, New(Config{BaseURL: srv.URL}).IsReachable(context.Background()))

	srv.Close()
	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}

func TestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, "HTTP 503: Service Unavailable", err.Error())
}

func TestNormalizeBase(t *testing.T) {
	cases := map[string]string{
		"http://host:1/":    "http://host:1",
		"127.0.0.1:9090":    "http://127.0.0.1:9090",
		":9090":             "http://127.0.0.1:9090",
		"https://x.example": "https://x.example",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeBase(in), in)
	}
	assert.Equal(t, DefaultConfig().BaseURL, New(Config{}).BaseURL())
}
