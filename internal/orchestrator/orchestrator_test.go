package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kokovox/kokovox/internal/config"
	"github.com/kokovox/kokovox/internal/synth"
)

type fakeSynth struct {
	mu       sync.Mutex
	requests []synth.Request
	failOn   map[string]bool
	pcm      []byte
	blocks   [][]byte
}

func (f *fakeSynth) Synthesize(ctx context.Context, req synth.Request) (<-chan synth.Block, <-chan error) {
	blocks := make(chan synth.Block, 1)
	errs := make(chan error, 1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failOn[req.Text]
	out := f.blocks
	f.mu.Unlock()

	if out == nil {
		out = [][]byte{f.pcm}
	}

	go func() {
		defer close(blocks)
		defer close(errs)
		if fail {
			errs <- errors.New("synthesis exploded")
			return
		}
		for i, pcm := range out {
			blocks <- synth.Block{PCM: pcm, Final: i == len(out)-1}
		}
	}()
	return blocks, errs
}

func (f *fakeSynth) seen() []synth.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]synth.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func testSynthConfig() config.SynthConfig {
	return config.SynthConfig{
		Mode:               "mock",
		DefaultVoice:       "zf_001",
		DefaultSpeed:       1.2,
		SampleRate:         24000,
		Channels:           1,
		SampleWidth:        2,
		DefaultChunkLength: 90,
		MaxChunkLength:     600,
		ChunkDelayMS:       0,
		InitRetries:        1,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.SynthConfig, s synth.Synthesizer) *Orchestrator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := synth.NewEngine(cfg, func() (synth.Synthesizer, error) { return s, nil }, log)
	return New(engine, cfg, log)
}

func declaredDataSize(t *testing.T, wav []byte) uint32 {
	t.Helper()
	if len(wav) < 44 {
		t.Fatalf("wav shorter than header: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("not a RIFF/WAVE header: %q %q", wav[0:4], wav[8:12])
	}
	return binary.LittleEndian.Uint32(wav[40:44])
}

func TestStreamWritesHeaderThenAudio(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 4800)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	var buf bytes.Buffer
	stats, err := o.Stream(context.Background(), &buf, Request{ID: "r1", Text: "Hello world."})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if got := declaredDataSize(t, buf.Bytes()); got != 0 {
		t.Fatalf("streaming header must declare zero data size, got %d", got)
	}
	if buf.Len() != 44+4800 {
		t.Fatalf("expected 44+4800 bytes, got %d", buf.Len())
	}
	if stats.Chunks != 1 || stats.ChunksSkipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !stats.AudioGenerated || stats.BytesEmitted != int64(buf.Len()) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamEmptyTextEmitsHeaderOnly(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 4800)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	var buf bytes.Buffer
	stats, err := o.Stream(context.Background(), &buf, Request{ID: "r1", Text: "  \n\t "})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if buf.Len() != 44 {
		t.Fatalf("expected header only, got %d bytes", buf.Len())
	}
	if stats.Chunks != 0 || stats.AudioGenerated {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(fake.seen()) != 0 {
		t.Fatal("synthesizer should not run for empty text")
	}
}

func TestStreamUnavailableEngine(t *testing.T) {
	cfg := testSynthConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := synth.NewEngine(cfg, func() (synth.Synthesizer, error) {
		return nil, errors.New("model load failed")
	}, log)
	o := New(engine, cfg, log)

	var buf bytes.Buffer
	_, err := o.Stream(context.Background(), &buf, Request{Text: "Hello."})
	if !errors.Is(err, synth.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no bytes may be written before readiness, got %d", buf.Len())
	}
}

func TestStreamSkipsFailedChunk(t *testing.T) {
	fake := &fakeSynth{
		pcm:    make([]byte, 100),
		failOn: map[string]bool{"Second.": true},
	}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	var buf bytes.Buffer
	stats, err := o.Stream(context.Background(), &buf, Request{
		Text:        "First. Second. Third.",
		ChunkLength: 8,
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if stats.Chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", stats.Chunks)
	}
	if stats.ChunksSkipped != 1 {
		t.Fatalf("expected 1 skipped chunk, got %d", stats.ChunksSkipped)
	}
	if buf.Len() != 44+200 {
		t.Fatalf("expected audio from two surviving chunks, got %d bytes", buf.Len())
	}
}

func TestStreamAppliesDefaults(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 10)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	var buf bytes.Buffer
	if _, err := o.Stream(context.Background(), &buf, Request{Text: "Hello."}); err != nil {
		t.Fatalf("stream: %v", err)
	}

	reqs := fake.seen()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 synthesis request, got %d", len(reqs))
	}
	if reqs[0].Voice != "zf_001" {
		t.Fatalf("default voice not applied: %q", reqs[0].Voice)
	}
	if got := reqs[0].Speed.Resolve(10); got != 1.2 {
		t.Fatalf("default speed not applied: %v", got)
	}
}

func TestStreamCanceledContext(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 10)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := o.Stream(ctx, &buf, Request{Text: "Hello."})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileDeclaresTrueSize(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 2400)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	out, stats, err := o.File(context.Background(), Request{Text: "Hello world."})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if got := declaredDataSize(t, out); int(got) != len(out)-44 {
		t.Fatalf("declared size %d does not match payload %d", got, len(out)-44)
	}
	if !stats.AudioGenerated || stats.BytesEmitted != int64(len(out)) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFileEmptyTextReturnsNoAudio(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 2400)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	out, stats, err := o.File(context.Background(), Request{Text: "   "})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio for empty text, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no file bytes, got %d", len(out))
	}
	if stats.Chunks != 0 || stats.AudioGenerated {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(fake.seen()) != 0 {
		t.Fatal("synthesizer should not run for empty text")
	}
}

func TestFileNoAudio(t *testing.T) {
	fake := &fakeSynth{
		pcm:    make([]byte, 100),
		failOn: map[string]bool{"Hello.": true},
	}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	_, stats, err := o.File(context.Background(), Request{Text: "Hello."})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if stats.ChunksSkipped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamPacesEveryBlock(t *testing.T) {
	block := make([]byte, 100)
	fake := &fakeSynth{blocks: [][]byte{block, block, block, block}}
	cfg := testSynthConfig()
	cfg.ChunkDelayMS = 20
	o := newTestOrchestrator(t, cfg, fake)

	var buf bytes.Buffer
	start := time.Now()
	stats, err := o.Stream(context.Background(), &buf, Request{Text: "Hello."})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if buf.Len() != 44+400 {
		t.Fatalf("expected all four blocks emitted, got %d bytes", buf.Len())
	}
	if stats.Chunks != 1 {
		t.Fatalf("expected 1 chunk, got %d", stats.Chunks)
	}
	if elapsed < 80*time.Millisecond {
		t.Fatalf("expected a delay after each of 4 blocks, finished in %v", elapsed)
	}
}

func TestOversizedChunkCounted(t *testing.T) {
	fake := &fakeSynth{pcm: make([]byte, 100)}
	o := newTestOrchestrator(t, testSynthConfig(), fake)

	var buf bytes.Buffer
	stats, err := o.Stream(context.Background(), &buf, Request{
		Text:        "abcdefghij",
		ChunkLength: 5,
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if stats.Oversized != 1 {
		t.Fatalf("expected 1 oversized chunk, got %d", stats.Oversized)
	}
	if !stats.AudioGenerated {
		t.Fatal("oversized chunks must still synthesize")
	}
}

func TestChunkLengthClampedToMax(t *testing.T) {
	cfg := testSynthConfig()
	cfg.MaxChunkLength = 10
	cfg.DefaultChunkLength = 10
	fake := &fakeSynth{pcm: make([]byte, 10)}
	o := newTestOrchestrator(t, cfg, fake)

	var buf bytes.Buffer
	stats, err := o.Stream(context.Background(), &buf, Request{
		Text:        "First. Second.",
		ChunkLength: 10000,
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if stats.Chunks != 2 {
		t.Fatalf("oversize request must clamp to max, got %d chunks", stats.Chunks)
	}
}
