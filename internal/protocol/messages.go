package protocol

import "time"

// SynthesisEvent is broadcast on the bus when a request finishes, whether
// or not any audio was produced.
type SynthesisEvent struct {
	RequestID     string    `json:"request_id"`
	Voice         string    `json:"voice"`
	Mode          string    `json:"mode"` // stream, file
	Chunks        int       `json:"chunks"`
	ChunksSkipped int       `json:"chunks_skipped"`
	Oversized     int       `json:"oversized_chunks"`
	Bytes         int64     `json:"bytes"`
	DurationMS    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	SubjectSynthesisStarted   = "tts.synthesis.started"
	SubjectSynthesisCompleted = "tts.synthesis.completed"
)
