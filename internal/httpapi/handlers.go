package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kokovox/kokovox/internal/orchestrator"
	"github.com/kokovox/kokovox/internal/synth"
	"github.com/kokovox/kokovox/internal/voices"
)

type ttsRequest struct {
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float64 `json:"speed"`
	ChunkSize int     `json:"chunk_size"`
}

// toRequest validates the body and applies the defaults clients observe in
// response headers. Unknown voices pass through: the catalog is for
// discovery, the model is the authority.
func (r *Router) toRequest(body ttsRequest) (orchestrator.Request, error) {
	if body.Speed < 0 {
		return orchestrator.Request{}, errors.New("speed must be positive")
	}
	if body.ChunkSize < 0 {
		return orchestrator.Request{}, errors.New("chunk_size must not be negative")
	}

	req := orchestrator.Request{
		ID:          uuid.NewString(),
		Text:        body.Text,
		Voice:       body.Voice,
		ChunkLength: body.ChunkSize,
	}
	if req.Voice == "" {
		req.Voice = r.cfg.Synth.DefaultVoice
	}
	if body.Speed > 0 {
		req.Speed = synth.FixedSpeed(body.Speed)
	} else {
		req.Speed = synth.FixedSpeed(r.cfg.Synth.DefaultSpeed)
	}
	return req, nil
}

func (r *Router) decodeBody(w http.ResponseWriter, req *http.Request) (orchestrator.Request, bool) {
	var body ttsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return orchestrator.Request{}, false
	}
	oreq, err := r.toRequest(body)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return orchestrator.Request{}, false
	}
	return oreq, true
}

// flushWriter pushes every audio block to the client immediately instead of
// letting the server buffer the stream.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	oreq, ok := r.decodeBody(w, req)
	if !ok {
		return
	}

	if _, err := r.engine.EnsureReady(req.Context()); err != nil {
		r.log.Error("synthesis model unavailable",
			slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
		errorJSON(w, http.StatusServiceUnavailable, "synthesis model unavailable")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="speech.wav"`)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-TTS-Mode", "stream")
	w.Header().Set("X-TTS-Voice", oreq.Voice)
	w.Header().Set("X-TTS-Speed", formatSpeed(oreq.Speed))

	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}

	stats, err := r.orch.Stream(req.Context(), fw, oreq)
	if err != nil {
		// Bytes are already on the wire; the status cannot change now.
		r.log.Warn("stream ended early",
			slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
	}
	r.logFinished("stream", oreq, stats)
	r.record(req.Context(), oreq.ID, "stream", oreq.Voice, stats)
}

func (r *Router) handleFile(w http.ResponseWriter, req *http.Request) {
	oreq, ok := r.decodeBody(w, req)
	if !ok {
		return
	}

	out, stats, err := r.orch.File(req.Context(), oreq)
	if err != nil {
		switch {
		case errors.Is(err, synth.ErrUnavailable):
			errorJSON(w, http.StatusServiceUnavailable, "synthesis model unavailable")
		case errors.Is(err, orchestrator.ErrNoAudio):
			errorJSON(w, http.StatusInternalServerError, "no audio produced")
		default:
			r.log.Error("file synthesis failed",
				slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
			errorJSON(w, http.StatusInternalServerError, "synthesis failed")
		}
		r.record(req.Context(), oreq.ID, "file", oreq.Voice, stats)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="speech.wav"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-TTS-Mode", "file")
	w.Header().Set("X-TTS-Voice", oreq.Voice)
	w.Header().Set("X-TTS-Speed", formatSpeed(oreq.Speed))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	if _, err := w.Write(out); err != nil {
		r.log.Warn("file response write failed",
			slog.String("request_id", oreq.ID), slog.String("error", err.Error()))
	}
	r.logFinished("file", oreq, stats)
	r.record(req.Context(), oreq.ID, "file", oreq.Voice, stats)
}

// handleHealth reports engine and service state. It never triggers model
// initialization.
func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := r.engine.State()
	status := "healthy"
	if state == synth.StateFailed {
		status = "degraded"
	}

	payload := map[string]any{
		"status":         status,
		"service":        r.cfg.ServiceName,
		"environment":    r.cfg.Environment,
		"uptime_seconds": int64(time.Since(r.started).Seconds()),
		"engine": map[string]any{
			"state":      state.String(),
			"mode":       r.cfg.Synth.Mode,
			"model_repo": r.cfg.Synth.ModelRepo,
		},
		"performance": map[string]any{
			"sample_rate":      r.cfg.Synth.SampleRate,
			"chunk_delay_ms":   r.cfg.Synth.ChunkDelayMS,
			"max_chunk_length": r.cfg.Synth.MaxChunkLength,
		},
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":        voices.All(),
		"default_voice": r.cfg.Synth.DefaultVoice,
		"languages":     voices.Languages(),
	})
}

// handleConfig reports the effective synthesis knobs so clients can align
// chunking expectations with the server.
func (r *Router) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s := r.cfg.Synth
	writeJSON(w, http.StatusOK, map[string]any{
		"model_repo":           s.ModelRepo,
		"default_voice":        s.DefaultVoice,
		"default_speed":        s.DefaultSpeed,
		"sample_rate":          s.SampleRate,
		"channels":             s.Channels,
		"sample_width":         s.SampleWidth,
		"default_chunk_length": s.DefaultChunkLength,
		"max_chunk_length":     s.MaxChunkLength,
		"chunk_delay_ms":       s.ChunkDelayMS,
	})
}

func (r *Router) logFinished(mode string, oreq orchestrator.Request, stats orchestrator.Stats) {
	r.log.Info("synthesis finished",
		slog.String("request_id", oreq.ID),
		slog.String("mode", mode),
		slog.String("voice", oreq.Voice),
		slog.Int("chunks", stats.Chunks),
		slog.Int("chunks_skipped", stats.ChunksSkipped),
		slog.Int("oversized", stats.Oversized),
		slog.Int64("bytes", stats.BytesEmitted),
		slog.Int64("duration_ms", stats.Elapsed.Milliseconds()))
}

func formatSpeed(s synth.Speed) string {
	return strconv.FormatFloat(s.Resolve(0), 'f', -1, 64)
}
