// Package httpapi exposes snapshots and the live tick stream over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cryptoScreener/internal/app"
	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/ports"
)

const (
	defaultWriteTimeout    = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Pipeline is the snapshot side of the orchestrator.
type Pipeline interface {
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
	State() app.RunState
	CacheAge() (time.Duration, bool)
}

// TickFeed is the streaming side of the tick hub.
type TickFeed interface {
	Subscribe(ctx context.Context, allowList []string) <-chan domain.Tick
	Overlay(s *domain.Snapshot) *domain.Snapshot
}

// Config holds the dependencies of a Server.
type Config struct {
	Addr           string
	Pipeline       Pipeline
	Ticks          TickFeed // Optional: live endpoints are disabled when nil
	Logger         ports.Logger
	WriteTimeout   time.Duration // Per websocket message
	AllowedOrigins []string      // Extra websocket origin patterns besides same-host
}

// Server serves the screener API.
type Server struct {
	cfg        Config
	logger     ports.Logger
	httpServer *http.Server
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP server: %w", ports.ErrConfigurationError)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/instruments", s.handleInstruments)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws/ticks", s.handleTicks)
	return s.loggingMiddleware(mux)
}

// Run serves on cfg.Addr until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": s.cfg.Addr})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		<-errCh
		s.logger.Info(ctx, "HTTP server stopped")
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfterSeconds,omitempty"`
}

type healthBody struct {
	State           string   `json:"state"`
	HasSnapshot     bool     `json:"hasSnapshot"`
	CacheAgeSeconds *float64 `json:"cacheAgeSeconds,omitempty"`
	LiveTicks       bool     `json:"liveTicks"`
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Pipeline.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("live") == "1" && s.cfg.Ticks != nil {
		snap = s.cfg.Ticks.Overlay(snap)
	}
	if snap.Stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	s.writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{
		State:     s.cfg.Pipeline.State().String(),
		LiveTicks: s.cfg.Ticks != nil,
	}
	if age, ok := s.cfg.Pipeline.CacheAge(); ok {
		secs := age.Seconds()
		body.HasSnapshot = true
		body.CacheAgeSeconds = &secs
	}
	s.writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ticks == nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorBody{Error: "live ticks are disabled"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		s.logger.Warn(r.Context(), "Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	symbols := parseSymbols(r.URL.Query().Get("symbols"))
	ticks := s.cfg.Ticks.Subscribe(ctx, symbols)
	s.logger.Debug(ctx, "Tick subscriber connected", map[string]interface{}{"symbols": len(symbols), "remote": r.RemoteAddr})

	for t := range ticks {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		err := wsjson.Write(wctx, conn, t)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Warn(ctx, "Tick write failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "stream ended")
}

func parseSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// writeError maps pipeline errors to HTTP statuses: rate limiting is reported
// as 429 with Retry-After, anything else as 503.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ports.IsRateLimited(err) {
		body := errorBody{Error: "upstream rate limit exceeded"}
		if wait, ok := ports.RetryAfter(err); ok {
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			body.RetryAfter = secs
		}
		s.writeJSON(w, r, http.StatusTooManyRequests, body)
		return
	}
	s.logger.Error(r.Context(), err, "Snapshot unavailable")
	s.writeJSON(w, r, http.StatusServiceUnavailable, errorBody{Error: "snapshot unavailable"})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), "Failed to write response", map[string]interface{}{"error": err.Error(), "path": r.URL.Path})
	}
}
