package synth

import (
	"context"
	"errors"
	"unicode/utf8"
)

// ErrUnavailable reports that the external synthesis model could not be
// initialized after the configured retries.
var ErrUnavailable = errors.New("synthesis model unavailable")

// Request contains parameters for synthesizing one text chunk.
type Request struct {
	Text  string
	Voice string
	Speed Speed
}

// Block contains one increment of synthesized audio: signed 16-bit
// little-endian mono PCM bytes.
type Block struct {
	PCM   []byte
	Final bool
}

// Synthesizer is the contract for producing audio from one text chunk.
// Implementations close both channels when the chunk is fully synthesized
// or an error occurred; the block channel yields results lazily and is not
// restartable.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (<-chan Block, <-chan error)
}

// Speed is either a constant playback-rate multiplier or a function
// computing one from the chunk's phonetic length. The zero value resolves
// to 1.0.
type Speed struct {
	value float64
	fn    func(phoneticLen int) float64
}

// FixedSpeed returns a constant speed multiplier.
func FixedSpeed(v float64) Speed { return Speed{value: v} }

// DynamicSpeed returns a speed computed per chunk from its phonetic length.
func DynamicSpeed(fn func(phoneticLen int) float64) Speed { return Speed{fn: fn} }

// Resolve picks the effective multiplier for a chunk. Adapters call this
// exactly once per chunk, with the chunk's rune count standing in for
// phonetic length.
func (s Speed) Resolve(phoneticLen int) float64 {
	if s.fn != nil {
		return s.fn(phoneticLen)
	}
	if s.value <= 0 {
		return 1.0
	}
	return s.value
}

// IsZero reports whether no speed was specified.
func (s Speed) IsZero() bool { return s.fn == nil && s.value == 0 }

// PhoneticLen measures a chunk the way speed callbacks expect: in runes.
func PhoneticLen(chunk string) int { return utf8.RuneCountInString(chunk) }
