// Package wavstream assembles PCM byte blocks into WAV containers, either
// incrementally for streaming responses or buffered for complete files.
package wavstream

import (
	"encoding/binary"
	"io"
	"time"
)

// HeaderSize is the fixed size of a canonical PCM WAV header.
const HeaderSize = 44

// Format describes the PCM encoding every block in a stream must share.
type Format struct {
	SampleRate  int
	Channels    int
	SampleWidth int // bytes per sample
}

// ByteRate returns the number of PCM bytes per second of audio.
func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * f.SampleWidth
}

// Duration converts a PCM payload size into playback time.
func (f Format) Duration(dataSize int) time.Duration {
	br := f.ByteRate()
	if br == 0 {
		return 0
	}
	return time.Duration(float64(dataSize) / float64(br) * float64(time.Second))
}

// Header renders the 44-byte RIFF/WAVE header declaring dataSize payload
// bytes. A streaming producer that cannot know the final size passes 0;
// non-seekable consumers tolerate the placeholder.
func (f Format) Header(dataSize int) []byte {
	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.Channels*f.SampleWidth))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.SampleWidth*8))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

// WriteHeader writes Header(dataSize) to w.
func (f Format) WriteHeader(w io.Writer, dataSize int) error {
	_, err := w.Write(f.Header(dataSize))
	return err
}

// FileBuilder accumulates PCM blocks and renders a complete WAV file whose
// header declares the true payload size.
type FileBuilder struct {
	format Format
	blocks [][]byte
	total  int
}

func NewFileBuilder(format Format) *FileBuilder {
	return &FileBuilder{format: format}
}

// Append adds one PCM block. Empty blocks are ignored.
func (b *FileBuilder) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b.blocks = append(b.blocks, pcm)
	b.total += len(pcm)
}

// Len returns the accumulated payload size in bytes.
func (b *FileBuilder) Len() int { return b.total }

// Empty reports whether no audio has been appended.
func (b *FileBuilder) Empty() bool { return b.total == 0 }

// Bytes renders header plus payload as a single buffer.
func (b *FileBuilder) Bytes() []byte {
	out := make([]byte, 0, HeaderSize+b.total)
	out = append(out, b.format.Header(b.total)...)
	for _, blk := range b.blocks {
		out = append(out, blk...)
	}
	return out
}
