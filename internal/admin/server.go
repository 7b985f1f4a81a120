// Package admin provides the HTTP endpoints used to inspect and control a
// running observefs session.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/observefs/observefs/internal/cache"
	"github.com/observefs/observefs/internal/version"
	obserrors "github.com/observefs/observefs/pkg/errors"
)

// Profiler renders and resets the recorded I/O statistics.
type Profiler interface {
	Report() string
	ReportFor(name string) (string, error)
	ClearAll()
	Names() []string
}

// AccessTracker controls cache access classification.
type AccessTracker interface {
	Record() cache.AccessRecord
	Clear()
	Enable()
	Disable()
	Enabled() bool
}

// CacheStatter reports block cache statistics.
type CacheStatter interface {
	Stats() cache.CacheStats
}

// Sources are the components the server exposes. Access, Cache and Metrics
// may be nil.
type Sources struct {
	Profiler Profiler
	Access   AccessTracker
	Cache    CacheStatter
	Metrics  http.Handler
}

// ServerConfig configures the admin server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:9464")
	Address string `yaml:"address" json:"address"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":9464",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves the admin endpoints.
type Server struct {
	httpServer *http.Server
	config     ServerConfig
	sources    Sources
	log        logrus.FieldLogger
	started    time.Time
	endpoints  []string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new admin server
func NewServer(config ServerConfig, sources Sources, log logrus.FieldLogger) *Server {
	s := &Server{
		config:  config,
		sources: sources,
		log:     log.WithField("component", "admin"),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, h)
		s.endpoints = append(s.endpoints, pattern)
	}

	handle("/health", s.handleHealth)
	handle("/info", s.handleInfo)

	handle("/stats", s.handleStats)
	handle("/stats/reset", s.handleStatsReset)
	handle("/filesystems", s.handleFilesystems)
	handle("/filesystems/", s.handleFilesystem)

	handle("/cache/access", s.handleCacheAccess)
	handle("/cache/access/clear", s.handleCacheAccessClear)
	handle("/cache/access/enable", s.handleCacheAccessToggle(true))
	handle("/cache/access/disable", s.handleCacheAccessToggle(false))
	handle("/cache/stats", s.handleCacheStats)

	if sources.Metrics != nil {
		handle("/metrics", s.handleMetrics)
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// StartBackground binds the configured address and serves in a background
// goroutine. Bind errors are returned directly.
func (s *Server) StartBackground() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return obserrors.Newf(obserrors.ErrCodeNetworkError, "failed to listen on %s", s.config.Address).
			WithComponent("admin").
			WithCause(err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithField("address", ln.Addr().String()).Info("Starting admin server")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Admin server error")
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before StartBackground.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down admin server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"filesystems": len(s.sources.Profiler.Names()),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "observefs",
		"version":   version.Full(),
		"timestamp": time.Now(),
		"endpoints": s.endpoints,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.respondText(w, s.sources.Profiler.Report())
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}

	s.sources.Profiler.ClearAll()
	s.log.Info("Cleared I/O statistics")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleFilesystems(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"filesystems": s.sources.Profiler.Names(),
	})
}

func (s *Server) handleFilesystem(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/filesystems/")
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "filesystem name required")
		return
	}

	report, err := s.sources.Profiler.ReportFor(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondText(w, report)
}

type accessResponse struct {
	Enabled bool `json:"enabled"`
	cache.AccessRecord
}

func (s *Server) handleCacheAccess(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) || !s.requireAccess(w) {
		return
	}

	s.respondJSON(w, http.StatusOK, accessResponse{
		Enabled:      s.sources.Access.Enabled(),
		AccessRecord: s.sources.Access.Record(),
	})
}

func (s *Server) handleCacheAccessClear(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) || !s.requireAccess(w) {
		return
	}

	s.sources.Access.Clear()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheAccessToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.allow(w, r, http.MethodPost) || !s.requireAccess(w) {
			return
		}

		if enable {
			s.sources.Access.Enable()
		} else {
			s.sources.Access.Disable()
		}
		s.log.WithField("enabled", enable).Info("Cache access classification toggled")
		s.respondJSON(w, http.StatusOK, map[string]bool{"enabled": s.sources.Access.Enabled()})
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	if s.sources.Cache == nil {
		s.respondError(w, http.StatusServiceUnavailable, "block cache not configured")
		return
	}
	s.respondJSON(w, http.StatusOK, s.sources.Cache.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.sources.Metrics.ServeHTTP(w, r)
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Handled admin request")
	})
}

// Helper methods

func (s *Server) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (s *Server) requireAccess(w http.ResponseWriter) bool {
	if s.sources.Access != nil {
		return true
	}
	s.respondError(w, http.StatusServiceUnavailable, "cache access classification not configured")
	return false
}

func (s *Server) respondText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, body); err != nil {
		s.log.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("Error encoding JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondJSON(w, obserrors.HTTPStatusOf(err), map[string]interface{}{
		"error":     err.Error(),
		"code":      obserrors.CodeOf(err),
		"timestamp": time.Now(),
	})
}
