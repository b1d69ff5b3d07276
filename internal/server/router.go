package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/processmon/internal/metrics"
	"github.com/loykin/processmon/internal/supervisor"
)

// StatusSource is satisfied by *supervisor.Supervisor.
type StatusSource interface {
	Status(ctx context.Context) (supervisor.Status, error)
}

const statusTimeout = 2 * time.Second

// Router exposes a read-only view of the supervisor.
// Endpoints:
//
//	GET {basePath}/status    full status, or one process with ?name=...
//	GET {basePath}/healthz   200 while the control loop answers
//	GET {basePath}/metrics   prometheus exposition
type Router struct {
	src      StatusSource
	basePath string
	metrics  http.Handler
}

// NewRouter constructs a Router. basePath may be empty or start with '/'.
func NewRouter(src StatusSource, basePath string) *Router {
	return &Router{src: src, basePath: sanitizeBase(basePath), metrics: metrics.Handler()}
}

// WithMetricsHandler swaps the /metrics handler, e.g. for a private registry.
func (r *Router) WithMetricsHandler(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealth)
	group.GET("/metrics", gin.WrapH(r.metrics))
	return g
}

// NewServer serves the router on addr until ctx is done. Listen errors are
// returned immediately; the bound address is returned so ":0" can be used.
func NewServer(ctx context.Context, addr, basePath string, src StatusSource, logger *slog.Logger) (net.Addr, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Handler:           NewRouter(src, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("status server listening", slog.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusTimeout)
	defer cancel()
	st, err := r.src.Status(ctx)
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, st)
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..'"})
		return
	}
	for _, p := range st.Running {
		if p.Name == name {
			writeJSON(c, http.StatusOK, p)
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "process not running: " + name})
}

func (r *Router) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusTimeout)
	defer cancel()
	if _, err := r.src.Status(ctx); err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
