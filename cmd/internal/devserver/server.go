// Package devserver is a local peer that speaks the CodeMonitor realtime protocol and the
// history and snippet REST endpoints.
//
// It exists for development, smoke runs and end-to-end tests of the client core. Answers come
// from a pluggable Generator; state lives in memory.
package devserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Config configures a Server.
type Config struct {
	Logger  *slog.Logger
	Metrics *Metrics

	// Tokens maps accepted tokens to usernames. AllowAnyToken also accepts unknown tokens.
	Tokens        map[string]string
	AllowAnyToken bool

	Generator Generator
	Store     Store

	// Per-user generation budget shared by the chat and team endpoints.
	RateLimit  int
	RateWindow time.Duration

	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

// Server wires the websocket gateway and REST routes over shared state.
type Server struct {
	log   *slog.Logger
	hub   *Hub
	store Store
	ws    *WSGateway
	rest  *restHandler
}

// New builds a Server. Nil collaborators get in-memory defaults.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewInMemoryStore()
	}
	auth := NewAuthenticator(cfg.Tokens, cfg.AllowAnyToken)
	limits := newLimiterSet(cfg.RateLimit, cfg.RateWindow)
	hub := NewHub(log)

	ws := newWSGateway(GatewayOptions{
		Logger:           log,
		Hub:              hub,
		Store:            store,
		Auth:             auth,
		Generator:        cfg.Generator,
		Metrics:          cfg.Metrics,
		OriginRequired:   cfg.OriginRequired,
		AllowedOrigins:   cfg.AllowedOrigins,
		WriteTimeout:     cfg.WriteTimeout,
		HeartbeatEvery:   cfg.HeartbeatEvery,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}, limits)

	return &Server{
		log:   log,
		hub:   hub,
		store: store,
		ws:    ws,
		rest:  &restHandler{log: log, store: store, auth: auth, limits: limits},
	}
}

// Handler returns the peer's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /ws/chat", s.ws.HandleChat)
	mux.HandleFunc("GET /ws/team/{room}", s.ws.HandleTeam)
	s.rest.register(mux)

	return mux
}

// Hub exposes the room registry (for diagnostics and tests).
func (s *Server) Hub() *Hub { return s.hub }

// Store returns the backing store.
func (s *Server) Store() Store { return s.store }

// Close releases the store.
func (s *Server) Close() error { return s.store.Close() }
