// Package server serves a built destination tree with live reload.
//
// HTML responses get a small script injected that connects to the
// server's websocket endpoint; every finished build is announced there and
// the browser reloads.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/conneroisu/htmlc/internal/build"
	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/logging"
	"github.com/conneroisu/htmlc/internal/version"
)

// Routes served under the reserved prefix.
const (
	RoutePrefix  = "/_htmlc"
	RouteWS      = RoutePrefix + "/ws"
	RouteHealth  = RoutePrefix + "/health"
	RouteReport  = RoutePrefix + "/report"
	RouteMetrics = "/metrics"
)

// Message types sent to browsers.
const (
	MessageReload      = "reload"
	MessageBuildFailed = "build_failed"
)

// Config configures a PreviewServer.
type Config struct {
	Host string
	Port int
	// Root is the directory served, normally the build destination.
	Root string
	// Fs is the filesystem Root lives on. Defaults to the OS filesystem.
	Fs afero.Fs
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// PreviewServer serves the destination tree with live reload capability
type PreviewServer struct {
	config       Config
	files        http.FileSystem
	fs           afero.Fs
	logger       logging.Logger
	router       chi.Router
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	lastReport   atomic.Pointer[build.Report]
	startedAt    time.Time
	shutdownOnce sync.Once
	done         chan struct{}
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type           string    `json:"type"`
	BuildID        string    `json:"build_id,omitempty"`
	Files          int       `json:"files"`
	Failures       int       `json:"failures"`
	RenderFailures int       `json:"render_failures,omitempty"`
	IOFailures     int       `json:"io_failures,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// New creates a new preview server
func New(cfg Config) *PreviewServer {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	rootFs := afero.NewBasePathFs(cfg.Fs, cfg.Root)
	s := &PreviewServer{
		config:     cfg,
		fs:         rootFs,
		files:      afero.NewHttpFs(rootFs),
		logger:     cfg.Logger.WithComponent("server"),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	s.router = s.routes()

	return s
}

func (s *PreviewServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get(RouteWS, s.handleWebSocket)
	r.Get(RouteHealth, s.handleHealth)
	r.Get(RouteReport, s.handleReport)
	r.Method(http.MethodGet, RouteMetrics, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/*", s.handleStatic)
	r.Head("/*", s.handleStatic)

	return r
}

// Handler returns the HTTP handler. The websocket hub must be running for
// live reload to work; Start runs it, tests may call RunHub instead.
func (s *PreviewServer) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *PreviewServer) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start runs the hub and serves HTTP until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *PreviewServer) Serve(ctx context.Context, listener net.Listener) error {
	go s.RunHub(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Preview server listening", "url", "http://"+listener.Addr().String(), "root", s.config.Root)
	if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// NotifyBuild records report as the latest build and tells every connected
// browser about it.
func (s *PreviewServer) NotifyBuild(report *build.Report) {
	if report == nil {
		return
	}
	s.lastReport.Store(report)

	msg := UpdateMessage{
		Type:      MessageReload,
		BuildID:   report.ID,
		Files:     len(report.Succeeded),
		Failures:  len(report.Failures),
		Timestamp: time.Now(),
	}
	if !report.OK() {
		msg.Type = MessageBuildFailed
		msg.RenderFailures = report.CountKind(errors.ErrorTypeRender)
		msg.IOFailures = report.CountKind(errors.ErrorTypeIO)
	}
	s.broadcastMessage(msg)
}

// LastReport returns the report passed to the latest NotifyBuild.
func (s *PreviewServer) LastReport() *build.Report {
	return s.lastReport.Load()
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode update message")
		return
	}

	select {
	case s.broadcast <- data:
	case <-s.done:
	default:
		s.logger.Warn(context.Background(), nil, "Dropping update message, hub is busy")
	}
}

// Shutdown gracefully shuts down the server and closes all clients.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down preview server")
		close(s.done)

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// ClientCount returns the number of connected live-reload clients.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *PreviewServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).String(),
		"version":   version.GetShortVersion(),
		"clients":   s.ClientCount(),
	}
	if report := s.LastReport(); report != nil {
		health["last_build"] = map[string]interface{}{
			"id":       report.ID,
			"ok":       report.OK(),
			"finished": report.FinishedAt,
		}
	}

	s.writeJSON(w, r, http.StatusOK, health)
}

// handleReport returns the latest build report
func (s *PreviewServer) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.LastReport()
	if report == nil {
		http.Error(w, "no build has finished yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode response")
	}
}

// handleStatic serves files below Root. HTML documents are served with the
// live-reload script injected.
func (s *PreviewServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)

	info, err := s.fs.Stat(name)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, "index.html")
		info, err = s.fs.Stat(name)
	}
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if path.Ext(name) != ".html" {
		http.FileServer(s.files).ServeHTTP(w, r)
		return
	}

	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	page := data
	if !HasReloadScript(data) {
		if page, err = InjectReloadScript(data, RouteWS); err != nil {
			s.logger.Warn(r.Context(), err, "Serving page without live reload", "path", name)
			page = data
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(page))
}
