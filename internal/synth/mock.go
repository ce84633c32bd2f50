package synth

import (
	"context"
	"encoding/binary"
	"math"
)

// mockSynth generates a deterministic sine tone sized by the chunk's
// phonetic length, standing in for the real model during development and
// tests. Roughly 80ms of audio per rune at speed 1.0, faster speeds
// yielding proportionally less.
type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (<-chan Block, <-chan error) {
	blocks := make(chan Block, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(blocks)
		defer close(errs)

		n := PhoneticLen(req.Text)
		if n == 0 {
			return
		}
		speed := req.Speed.Resolve(n)
		if speed <= 0 {
			speed = 1.0
		}
		samples := int(float64(n) * 0.08 * float64(m.sampleRate) / speed)
		if samples < 1 {
			samples = 1
		}

		pcm := make([]byte, samples*m.channels*2)
		for i := 0; i < samples; i++ {
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate)))
			for c := 0; c < m.channels; c++ {
				binary.LittleEndian.PutUint16(pcm[(i*m.channels+c)*2:], uint16(v))
			}
		}

		select {
		case blocks <- Block{PCM: pcm, Final: true}:
		case <-ctx.Done():
			errs <- ctx.Err()
		}
	}()
	return blocks, errs
}
