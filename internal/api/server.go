// Package api serves the engine state over HTTP and pushes every publication
// to WebSocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/metrics"
	"github.com/john/livewatch/internal/tracked"
)

// Service is the engine surface the API reads and drives.
type Service interface {
	Statuses() live.StatusMap
	Status(channel string, platform live.Platform) (live.LiveStatus, bool)
	Suggestions() []live.SuggestedStream
	CheckAll(ctx context.Context) bool
	RefreshSuggestions(ctx context.Context) bool
	IsChecking() bool
	IsLoadingSuggestions() bool
	Language() string
	SetLanguage(code string)
}

// Server provides the HTTP endpoints.
type Server struct {
	svc    Service
	lists  map[string]*tracked.List
	hub    *Hub
	server *http.Server
}

// New creates a server on addr. lists maps a list name ("favorites",
// "recents") to the list the tracked endpoints edit; it may be nil.
func New(addr string, svc Service, lists map[string]*tracked.List) *Server {
	s := &Server{
		svc:   svc,
		lists: lists,
		hub:   NewHub(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the WebSocket hub so publications can be fanned out to it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(metrics.Format()))
	})

	mux.HandleFunc("GET /api/status", s.handleStatuses)
	mux.HandleFunc("GET /api/status/{platform}/{channel}", s.handleStatus)
	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)
	mux.HandleFunc("POST /api/suggestions/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/language", s.handleGetLanguage)
	mux.HandleFunc("PUT /api/language", s.handleSetLanguage)
	mux.HandleFunc("GET /api/tracked/{list}", s.handleTrackedList)
	mux.HandleFunc("POST /api/tracked/{list}", s.handleTrackedAdd)
	mux.HandleFunc("DELETE /api/tracked/{list}/{platform}/{channel}", s.handleTrackedRemove)
	mux.HandleFunc("GET /ws", s.hub.ServeHTTP)

	return mux
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	slog.Info("api: listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("api: shutting down")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: write response failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
