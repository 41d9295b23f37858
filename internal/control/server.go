// Package control exposes the bridge over HTTP on a local socket (a Unix
// domain socket, or a named pipe on Windows) and provides the matching
// client used by the CLI.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tools.zach/dev/richcord/internal/bridge"
	"tools.zach/dev/richcord/internal/presence"
	"tools.zach/dev/richcord/internal/session"
)

const (
	// CodeBadRequest marks a request the server could not decode.
	CodeBadRequest = "bad_request"

	keepAliveInterval = 25 * time.Second
	maxBodyBytes      = 64 << 10
)

// Server serves the control API.
type Server struct {
	bridge *bridge.Bridge
	log    *slog.Logger
	router chi.Router
}

// NewServer builds the router for b. Routes are registered once here.
func NewServer(b *bridge.Bridge, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{bridge: b, log: log.With("component", "control")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/session", s.handleInitialize)
		r.Delete("/session", s.handleDisconnect)
		r.Get("/status", s.handleStatus)
		r.Put("/presence", s.handleApplyPresence)
		r.Delete("/presence", s.handleClearPresence)
		r.Get("/events", s.handleEvents)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("control api listening", "address", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control api: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

// InitializeRequest is the body of POST /v1/session.
type InitializeRequest struct {
	ClientID string `json:"clientId"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Initialize(r.Context(), req.ClientID))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Disconnect(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) handleApplyPresence(w http.ResponseWriter, r *http.Request) {
	var desc presence.Description
	if !s.decode(w, r, &desc) {
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.ApplyPresence(r.Context(), desc))
}

func (s *Server) handleClearPresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.ClearPresence(r.Context()))
}

// handleEvents streams session events as server-sent events until the
// client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := s.bridge.Events(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("encoding event", "kind", ev.Kind, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, bridge.Reply{Error: &session.Error{
			Code:    CodeBadRequest,
			Message: "invalid request body",
			Details: err.Error(),
		}})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "status", code, "error", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("control request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
