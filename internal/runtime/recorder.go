package runtime

import (
	"context"
	"log/slog"

	"github.com/kokovox/kokovox/internal/bus"
	"github.com/kokovox/kokovox/internal/history"
	"github.com/kokovox/kokovox/internal/protocol"
)

// recorder fans the final per-request observation out to the history store
// and the event bus. Both sides are best-effort.
type recorder struct {
	store *history.Store
	bus   *bus.Client
	log   *slog.Logger
}

func newRecorder(store *history.Store, busClient *bus.Client, log *slog.Logger) *recorder {
	return &recorder{
		store: store,
		bus:   busClient,
		log:   log.With(slog.String("component", "recorder")),
	}
}

func (r *recorder) SynthesisFinished(ctx context.Context, evt protocol.SynthesisEvent) {
	// The request context may already be cancelled when the client
	// disconnected; the observation still has to land.
	ctx = context.WithoutCancel(ctx)

	if err := r.store.Append(ctx, history.Record{
		RequestID:     evt.RequestID,
		Voice:         evt.Voice,
		Mode:          evt.Mode,
		Chunks:        evt.Chunks,
		ChunksSkipped: evt.ChunksSkipped,
		Oversized:     evt.Oversized,
		Bytes:         evt.Bytes,
		DurationMS:    evt.DurationMS,
		CreatedAt:     evt.Timestamp,
	}); err != nil {
		r.log.Warn("failed to record synthesis history",
			slog.String("request_id", evt.RequestID),
			slog.String("error", err.Error()))
	}

	r.bus.PublishEvent(protocol.SubjectSynthesisCompleted, evt)
}
