package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kokovox/kokovox/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Record{RequestID: "r1"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	recs, err := s.Recent(context.Background(), 10)
	if err != nil || recs != nil {
		t.Fatalf("ephemeral recent = %v, %v", recs, err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec := Record{
		RequestID:     "req-123",
		Voice:         "zf_001",
		Mode:          "stream",
		Chunks:        4,
		ChunksSkipped: 1,
		Bytes:         96000,
		DurationMS:    812,
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	got := recs[0]
	if got.RequestID != "req-123" || got.Voice != "zf_001" || got.Chunks != 4 || got.ChunksSkipped != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Bytes != 96000 || got.DurationMS != 812 {
		t.Fatalf("unexpected counters %+v", got)
	}

	n, err := s.Count(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestPruneByDaysAndMaxRecords(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRecords: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "old"}); err != nil {
		t.Fatalf("append old: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "new"}); err != nil {
		t.Fatalf("append new: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].RequestID != "new" {
		t.Fatalf("expected only the new record, got %+v", recs)
	}
}
