// Package server exposes the exporter over HTTP: Prometheus metrics, liveness with process
// stats, and readiness backed by a cached upstream probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/f5xc-exporter/internal/scheduler"
	"github.com/f5xc-exporter/pkg/config"
)

const requestIDHeader = "X-Request-ID"

// StateSource reports the scheduled collectors.
type StateSource interface {
	States() []scheduler.RunState
}

// ReadinessSource returns the cached readiness verdict.
type ReadinessSource interface {
	Status() Readiness
}

// HTTPServer serves /metrics, /health, /ready and a small index page.
type HTTPServer struct {
	addr     string
	server   *http.Server
	router   chi.Router
	gatherer prometheus.Gatherer
	ready    ReadinessSource
	states   StateSource
	version  string
	started  time.Time
	log      *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// statusWriter records the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func NewHTTPServer(cfg config.ServerConfig, gatherer prometheus.Gatherer, ready ReadinessSource,
	states StateSource, version string, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &HTTPServer{
		addr:     cfg.Addr,
		gatherer: gatherer,
		ready:    ready,
		states:   states,
		version:  version,
		started:  time.Now(),
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(log),
	}))
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/", s.handleIndex)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})
	s.router = r

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log),
	}
	return s
}

// Handler exposes the router, for tests.
func (s *HTTPServer) Handler() http.Handler { return s.router }

// requestID echoes an incoming X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		level := zap.DebugLevel
		if ww.status >= http.StatusInternalServerError {
			level = zap.WarnLevel
		}
		s.log.Check(level, "http request").Write(
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
	Collectors map[string]string `json:"collectors"`
	Process    processStats      `json:"process"`
	Host       *hostStats        `json:"host,omitempty"`
	Runs       []runView         `json:"runs,omitempty"`
}

type runView struct {
	Name         string  `json:"name"`
	Runs         int     `json:"runs"`
	Skipped      int     `json:"skipped"`
	Running      bool    `json:"running"`
	LastRunAt    string  `json:"last_run_at,omitempty"`
	LastSuccess  bool    `json:"last_success"`
	LastDuration float64 `json:"last_duration_seconds"`
	LastError    string  `json:"last_error,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    s.version,
		Collectors: map[string]string{},
		Process:    readProcessStats(s.started),
		Host:       readHostStats(),
	}
	if s.states != nil {
		for _, st := range s.states.States() {
			state := "disabled"
			if st.Enabled {
				state = "enabled"
			}
			resp.Collectors[st.Name] = state
			if !st.Enabled {
				continue
			}
			v := runView{
				Name:         st.Name,
				Runs:         st.Runs,
				Skipped:      st.Skipped,
				Running:      st.Running,
				LastSuccess:  st.LastSuccess,
				LastDuration: st.LastDuration.Seconds(),
				LastError:    st.LastError,
			}
			if !st.LastRunAt.IsZero() {
				v.LastRunAt = st.LastRunAt.UTC().Format(time.RFC3339)
			}
			resp.Runs = append(resp.Runs, v)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type readyResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	APIAccessible  bool   `json:"api_accessible"`
	NamespaceCount *int   `json:"namespace_count,omitempty"`
	Error          string `json:"error,omitempty"`
	LastCheck      string `json:"last_check"`
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	r := Readiness{Error: errNotChecked}
	if s.ready != nil {
		r = s.ready.Status()
	}
	resp := readyResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIAccessible: r.Ready,
		LastCheck:     r.LastCheck.UTC().Format(time.RFC3339),
	}
	if r.Ready {
		resp.Status = "ready"
		resp.NamespaceCount = &r.NamespaceCount
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	resp.Error = r.Error
	if resp.Error == "" {
		resp.Error = errNotChecked
	}
	s.writeJSON(w, http.StatusServiceUnavailable, resp)
}

const indexPage = `<html>
<head><title>F5XC Exporter</title></head>
<body>
<h1>F5XC Exporter</h1>
<p>Version %s</p>
<ul>
<li><a href="/metrics">/metrics</a></li>
<li><a href="/health">/health</a></li>
<li><a href="/ready">/ready</a></li>
</ul>
</body>
</html>
`

func (s *HTTPServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, indexPage, s.version)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

// Start binds the listener and serves in the background. Bind errors are returned here.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
		zap.Duration("idle_timeout", s.server.IdleTimeout))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped unexpectedly", zap.Error(err), zap.String("listen_addr", s.addr))
			return
		}
		s.log.Info("HTTP server stopped listening", zap.String("listen_addr", s.addr))
	}()
	return nil
}

// Addr is the bound address once Start has returned, otherwise the configured one.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting connections and waits up to timeout for in-flight requests.
func (s *HTTPServer) Shutdown(timeout time.Duration) error {
	s.log.Info("starting graceful shutdown of HTTP server", zap.String("listen_addr", s.addr))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown failed", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	s.log.Info("HTTP server shutdown successfully", zap.String("listen_addr", s.addr))
	return nil
}
