// Package server exposes tutoring over HTTP and WebSocket: session CRUD and
// topic listing as JSON endpoints, live chat over a socket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tutord/internal/curriculum"
	"tutord/internal/orchestrator"
	"tutord/internal/session"
	"tutord/internal/transcript"
	"tutord/pkg/models"
)

// Server serves the tutoring API.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   session.Store
	library *curriculum.Library
	trans   *transcript.Store
	log     *zap.Logger
	http    *http.Server
}

// Config configures a Server. Orchestrator, Store, and Library are required;
// Transcript is optional.
type Config struct {
	Addr         string
	Orchestrator *orchestrator.Orchestrator
	Store        session.Store
	Library      *curriculum.Library
	Transcript   *transcript.Store
	Logger       *zap.Logger
}

// New creates a Server with its routes mounted.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		orch:    cfg.Orchestrator,
		store:   cfg.Store,
		library: cfg.Library,
		trans:   cfg.Transcript,
		log:     cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Route("/api", func(r chi.Router) {
		r.Get("/topics", s.handleListTopics)
		r.Post("/sessions", s.handleStartSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/messages", s.handlePostMessage)
			r.Get("/transcript", s.handleGetTranscript)
		})
	})
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type startSessionRequest struct {
	TopicID string                 `json:"topic_id"`
	Profile *models.StudentProfile `json:"profile,omitempty"`
}

type startSessionResponse struct {
	Session SessionSnapshot `json:"session"`
	Welcome string          `json:"welcome"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopicID == "" {
		s.writeError(w, http.StatusBadRequest, "topic_id is required")
		return
	}
	sess, welcome, err := s.orch.StartSession(r.Context(), req.TopicID, req.Profile)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, startSessionResponse{
		Session: snapshotOf(sess),
		Welcome: welcome,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotOf(sess))
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	id := chi.URLParam(r, "id")
	result, err := s.orch.ProcessTurn(r.Context(), id, req.Text)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error("turn failed", zap.String("session", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "turn failed, session state unchanged")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	topics := s.library.List()
	out := make([]TopicSummary, 0, len(topics))
	for _, t := range topics {
		out = append(out, topicSummaryOf(t))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if s.trans == nil {
		s.writeError(w, http.StatusNotFound, "transcript not enabled")
		return
	}
	turns, err := s.trans.ListBySession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "transcript read failed")
		return
	}
	if turns == nil {
		turns = []transcript.Turn{}
	}
	s.writeJSON(w, http.StatusOK, turns)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
