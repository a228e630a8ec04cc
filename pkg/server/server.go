package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solarledger/solarledger/pkg/inverter"
	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/storage"
)

// Server handles the dashboard HTTP API. It proxies raw telemetry from the
// inverter cloud and serves converted production reports.
type Server struct {
	inverter inverter.Client
	storage  storage.Database

	listenAddr      string
	httpServer      *http.Server
	serverName      string
	defaultDevice   string
	productionPoint string
	realtimePoints  []string
	streamInterval  time.Duration
	closedCacheTTL  time.Duration
	now             func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c inverter.Client, s storage.Database) *Server {
	srv := &Server{
		inverter:   c,
		storage:    s,
		serverName: "solarledger",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	defaultDevice := lflag.String("inverter-default-device", "", "Device (ps_key) used when a request doesn't name one")
	productionPoint := lflag.String("inverter-production-point", "p2", "Data point holding the cumulative energy counter in Wh")
	realtimePoints := lflag.String("inverter-realtime-points", "p24,p2", "Comma-delimited default points for real-time requests")
	streamInterval := lflag.Duration("stream-interval", 10*time.Second, "How often the real-time stream polls upstream")
	webCacheDuration := lflag.Duration("web-cache-duration", 24*time.Hour, "Cache duration for responses covering only closed periods")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.defaultDevice = *defaultDevice
		srv.productionPoint = *productionPoint
		srv.realtimePoints = splitList(*realtimePoints)
		if *streamInterval <= 0 {
			panic(fmt.Sprintf("stream-interval must be positive: %s", *streamInterval))
		}
		srv.streamInterval = *streamInterval
		srv.closedCacheTTL = *webCacheDuration
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/login", s.handleLogin)
	apiMux.HandleFunc("GET /api/minute", s.handleMinute)
	apiMux.HandleFunc("GET /api/realtime", s.handleRealtime)
	apiMux.HandleFunc("GET /api/history", s.handleHistory)
	apiMux.HandleFunc("GET /api/production", s.handleProduction)
	apiMux.HandleFunc("GET /api/production/export", s.handleExport)
	apiMux.HandleFunc("GET /api/overview", s.handleOverview)
	apiMux.HandleFunc("GET /api/presets", s.handleListPresets)
	apiMux.HandleFunc("POST /api/presets", s.handleUpsertPreset)
	apiMux.HandleFunc("DELETE /api/presets/{id}", s.handleDeletePreset)

	mux := http.NewServeMux()
	mux.Handle("/api/", gziphandler.GzipHandler(apiMux))
	// the websocket upgrade needs the raw connection so it bypasses gzip
	mux.HandleFunc("GET /api/realtime/stream", s.handleRealtimeStream)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(s.securityHeadersMiddleware(s.loggingMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware attaches a logger carrying the request method and path.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("method", r.Method), slog.String("path", r.URL.Path))
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Ctx(ctx).DebugContext(ctx, "request handled", slog.Duration("duration", time.Since(start)))
	})
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
