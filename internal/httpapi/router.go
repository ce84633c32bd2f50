// Package httpapi exposes the synthesis service over HTTP: streaming and
// file endpoints, a websocket variant, and read-only introspection routes.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kokovox/kokovox/internal/config"
	"github.com/kokovox/kokovox/internal/orchestrator"
	"github.com/kokovox/kokovox/internal/protocol"
	"github.com/kokovox/kokovox/internal/synth"
)

// Recorder receives the final observation for every synthesis request.
// Implementations must not block the response path.
type Recorder interface {
	SynthesisFinished(ctx context.Context, evt protocol.SynthesisEvent)
}

type Router struct {
	cfg      config.Config
	log      *slog.Logger
	orch     *orchestrator.Orchestrator
	engine   *synth.Engine
	recorder Recorder
	started  time.Time
	mux      *http.ServeMux
}

func NewRouter(cfg config.Config, orch *orchestrator.Orchestrator, engine *synth.Engine, recorder Recorder, log *slog.Logger) http.Handler {
	r := &Router{
		cfg:      cfg,
		log:      log.With(slog.String("component", "httpapi")),
		orch:     orch,
		engine:   engine,
		recorder: recorder,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}
	r.routes()
	return withRecovery(withCORS(r.mux), r.log)
}

func (r *Router) routes() {
	r.mux.HandleFunc("POST /tts/stream", r.handleStream)
	r.mux.HandleFunc("POST /tts/file", r.handleFile)
	r.mux.HandleFunc("GET /tts/ws", r.handleWS)
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /voices", r.handleVoices)
	r.mux.HandleFunc("GET /config", r.handleConfig)
}

func (r *Router) record(ctx context.Context, requestID, mode, voice string, stats orchestrator.Stats) {
	if r.recorder == nil {
		return
	}
	r.recorder.SynthesisFinished(ctx, protocol.SynthesisEvent{
		RequestID:     requestID,
		Voice:         voice,
		Mode:          mode,
		Chunks:        stats.Chunks,
		ChunksSkipped: stats.ChunksSkipped,
		Oversized:     stats.Oversized,
		Bytes:         stats.BytesEmitted,
		DurationMS:    stats.Elapsed.Milliseconds(),
		Timestamp:     time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func withRecovery(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panicked",
					slog.String("path", req.URL.Path),
					slog.Any("panic", rec))
				errorJSON(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}
