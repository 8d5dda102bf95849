package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server exposes the generation pipeline over HTTP. Progress streams to the
// client as server-sent events, one JSON event per data: frame.
type Server struct {
	pipeline *Pipeline
	gate     *DedupGate
	log      *zap.Logger
}

func NewServer(pipeline *Pipeline, gate *DedupGate, log *zap.Logger) *Server {
	return &Server{pipeline: pipeline, gate: gate, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type generateRequest struct {
	Query          string `json:"query"`
	TargetRowCount int    `json:"targetRowCount"`
	UseWebSources  bool   `json:"useWebSources"`
	RefinementHint string `json:"refinementHint,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	if !req.UseWebSources {
		writeJSONError(w, http.StatusUnprocessableEntity, "only web-sourced generation is supported")
		return
	}

	// Fast-fail on a duplicate in-flight key; requests are never queued.
	key := DedupKey(req.Query, req.TargetRowCount, req.RefinementHint)
	if !s.gate.Acquire(key) {
		s.log.Info("duplicate request rejected", zap.String("key", key))
		writeJSONError(w, http.StatusConflict, ErrDuplicateRequest.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	q := Query{
		Text:       req.Query,
		TargetRows: req.TargetRowCount,
		TargetURLs: s.pipeline.settings.Pipeline.MaxURLs,
		Refinement: req.RefinementHint,
	}

	stream := NewProgressStream()

	// The run outlives the HTTP request on purpose: a disconnected client
	// must not abort artifact writes. Detached context; the gate releases
	// when the run ends, not when the client leaves.
	go func() {
		defer stream.Finish()
		defer s.gate.Release(key)
		if err := s.pipeline.Run(context.Background(), sessionID, q, stream); err != nil {
			s.log.Warn("run ended with error", zap.String("session", sessionID), zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("dropping unmarshalable event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			// Client went away; stop writing, let the run finish.
			stream.Close()
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"in_flight": s.gate.InFlight(),
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
