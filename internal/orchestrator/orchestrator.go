// Package orchestrator drives a synthesis request end to end: normalize,
// split, synthesize chunk by chunk, and emit WAV output incrementally or
// as a complete file.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kokovox/kokovox/internal/config"
	"github.com/kokovox/kokovox/internal/synth"
	"github.com/kokovox/kokovox/internal/text"
	"github.com/kokovox/kokovox/internal/wavstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoAudio reports that a file-mode request produced no audio at all,
// either because the text was empty after normalization or because every
// chunk failed.
var ErrNoAudio = errors.New("no audio produced")

// Request is one synthesis job. Zero-valued fields fall back to configured
// defaults.
type Request struct {
	ID          string
	Text        string
	Voice       string
	Speed       synth.Speed
	ChunkLength int
}

// Stats summarizes what one request actually did.
type Stats struct {
	Chunks         int
	ChunksSkipped  int
	Oversized      int
	BytesEmitted   int64
	Elapsed        time.Duration
	AudioGenerated bool
}

// Orchestrator owns the request pipeline. It is safe for concurrent use;
// per-chunk serialization happens inside the synthesizer where needed.
type Orchestrator struct {
	engine *synth.Engine
	cfg    config.SynthConfig
	format wavstream.Format
	log    *slog.Logger

	requests  metric.Int64Counter
	bytesOut  metric.Int64Counter
	skipped   metric.Int64Counter
	oversized metric.Int64Counter
}

func New(engine *synth.Engine, cfg config.SynthConfig, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		engine: engine,
		cfg:    cfg,
		format: wavstream.Format{
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.Channels,
			SampleWidth: cfg.SampleWidth,
		},
		log: log.With(slog.String("component", "orchestrator")),
	}
	if err := o.initMetrics(); err != nil {
		o.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return o
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter("github.com/kokovox/kokovox/orchestrator")
	var err error
	if o.requests, err = meter.Int64Counter("tts.requests",
		metric.WithDescription("Synthesis requests handled")); err != nil {
		return err
	}
	if o.bytesOut, err = meter.Int64Counter("tts.audio.bytes",
		metric.WithDescription("PCM bytes emitted to clients")); err != nil {
		return err
	}
	if o.skipped, err = meter.Int64Counter("tts.chunks.skipped",
		metric.WithDescription("Chunks dropped after synthesis errors")); err != nil {
		return err
	}
	if o.oversized, err = meter.Int64Counter("tts.chunks.oversized",
		metric.WithDescription("Chunks exceeding the requested length bound")); err != nil {
		return err
	}
	return nil
}

// Format returns the PCM format the orchestrator emits.
func (o *Orchestrator) Format() wavstream.Format { return o.format }

// Stream synthesizes req and writes a streaming WAV response to w: a
// header declaring size zero, then PCM blocks as they are produced. Failed
// chunks are skipped so one bad chunk never aborts the stream.
func (o *Orchestrator) Stream(ctx context.Context, w io.Writer, req Request) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	s, err := o.engine.EnsureReady(ctx)
	if err != nil {
		return stats, err
	}

	chunks, req := o.prepare(req)
	stats.Chunks = len(chunks)

	if err := o.format.WriteHeader(w, 0); err != nil {
		return stats, fmt.Errorf("write stream header: %w", err)
	}
	stats.BytesEmitted = wavstream.HeaderSize

	if len(chunks) == 0 {
		o.log.Warn("request text empty after normalization", slog.String("request_id", req.ID))
		o.finish(ctx, "stream", &stats, start)
		return stats, nil
	}

	o.logOversized(req, chunks, &stats)

	var audio int64
	err = o.synthesize(ctx, s, req, chunks, &stats, func(pcm []byte) error {
		n, werr := w.Write(pcm)
		audio += int64(n)
		stats.BytesEmitted += int64(n)
		return werr
	})
	stats.AudioGenerated = audio > 0
	o.finish(ctx, "stream", &stats, start)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// File synthesizes req fully in memory and returns a complete WAV file
// whose header declares the true payload size. A request that yields no
// audio returns ErrNoAudio: unlike a stream, an empty file body is
// indistinguishable from a failure to most clients.
func (o *Orchestrator) File(ctx context.Context, req Request) ([]byte, Stats, error) {
	start := time.Now()
	stats := Stats{}

	s, err := o.engine.EnsureReady(ctx)
	if err != nil {
		return nil, stats, err
	}

	chunks, req := o.prepare(req)
	stats.Chunks = len(chunks)

	if len(chunks) == 0 {
		o.log.Warn("request text empty after normalization", slog.String("request_id", req.ID))
		o.finish(ctx, "file", &stats, start)
		return nil, stats, ErrNoAudio
	}

	builder := wavstream.NewFileBuilder(o.format)

	o.logOversized(req, chunks, &stats)

	err = o.synthesize(ctx, s, req, chunks, &stats, func(pcm []byte) error {
		builder.Append(pcm)
		return nil
	})
	if err != nil {
		o.finish(ctx, "file", &stats, start)
		return nil, stats, err
	}

	if builder.Empty() {
		o.finish(ctx, "file", &stats, start)
		return nil, stats, ErrNoAudio
	}

	out := builder.Bytes()
	stats.BytesEmitted = int64(len(out))
	stats.AudioGenerated = true
	o.finish(ctx, "file", &stats, start)
	return out, stats, nil
}

// prepare normalizes text, applies configured defaults, and splits into
// chunks.
func (o *Orchestrator) prepare(req Request) ([]string, Request) {
	if req.Voice == "" {
		req.Voice = o.cfg.DefaultVoice
	}
	if req.Speed.IsZero() {
		req.Speed = synth.FixedSpeed(o.cfg.DefaultSpeed)
	}
	if req.ChunkLength <= 0 {
		req.ChunkLength = o.cfg.DefaultChunkLength
	}
	if req.ChunkLength > o.cfg.MaxChunkLength {
		req.ChunkLength = o.cfg.MaxChunkLength
	}

	normalized := text.Normalize(req.Text)
	return text.Split(normalized, req.ChunkLength), req
}

func (o *Orchestrator) logOversized(req Request, chunks []string, stats *Stats) {
	over := text.Oversized(chunks, req.ChunkLength)
	stats.Oversized = len(over)
	for _, idx := range over {
		o.log.Warn("chunk exceeds requested length",
			slog.String("request_id", req.ID),
			slog.Int("chunk", idx),
			slog.Int("length", len(chunks[idx])),
			slog.Int("max", req.ChunkLength))
	}
}

// synthesize runs every chunk through the synthesizer, passing produced
// PCM to sink with a pacing delay after each emitted block. A chunk whose
// synthesis fails is logged and skipped; a sink error or context
// cancellation aborts the run.
func (o *Orchestrator) synthesize(ctx context.Context, s synth.Synthesizer, req Request, chunks []string, stats *Stats, sink func([]byte) error) error {
	delay := time.Duration(o.cfg.ChunkDelayMS) * time.Millisecond

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		blocks, errs := s.Synthesize(ctx, synth.Request{
			Text:  chunk,
			Voice: req.Voice,
			Speed: req.Speed,
		})

		var chunkErr error
		for blocks != nil || errs != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case blk, ok := <-blocks:
				if !ok {
					blocks = nil
					continue
				}
				if chunkErr != nil || len(blk.PCM) == 0 {
					continue
				}
				if err := sink(blk.PCM); err != nil {
					return fmt.Errorf("emit audio: %w", err)
				}
				if delay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					chunkErr = err
				}
			}
		}

		if chunkErr != nil {
			stats.ChunksSkipped++
			o.log.Warn("chunk synthesis failed, skipping",
				slog.String("request_id", req.ID),
				slog.Int("chunk", i),
				slog.String("error", chunkErr.Error()))
		}
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, mode string, stats *Stats, start time.Time) {
	stats.Elapsed = time.Since(start)

	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if o.requests != nil {
		o.requests.Add(ctx, 1, attrs)
	}
	if o.bytesOut != nil {
		o.bytesOut.Add(ctx, stats.BytesEmitted, attrs)
	}
	if o.skipped != nil && stats.ChunksSkipped > 0 {
		o.skipped.Add(ctx, int64(stats.ChunksSkipped), attrs)
	}
	if o.oversized != nil && stats.Oversized > 0 {
		o.oversized.Add(ctx, int64(stats.Oversized), attrs)
	}
}
