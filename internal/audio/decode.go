package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxDecodeContexts caps how many decode contexts may be live at once.
const DefaultMaxDecodeContexts = 6

// Buffer holds decoded audio as per-channel float samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of samples in each channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// DecodePool hands out decode contexts, never more than its limit at a time.
type DecodePool struct {
	sem  *semaphore.Weighted
	live atomic.Int64
}

// NewDecodePool creates a pool allowing limit live contexts.
func NewDecodePool(limit int) *DecodePool {
	if limit <= 0 {
		limit = DefaultMaxDecodeContexts
	}
	return &DecodePool{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a context is free or ctx is done.
func (p *DecodePool) Acquire(ctx context.Context) (*DecodeContext, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire decode context: %w", err)
	}
	p.live.Add(1)
	return &DecodeContext{pool: p}, nil
}

// Live returns the number of contexts currently held.
func (p *DecodePool) Live() int {
	return int(p.live.Load())
}

// DecodeContext decodes WAV and MP3 payloads. It must be released after use.
type DecodeContext struct {
	pool *DecodePool
	once sync.Once
}

// Release returns the context to its pool. Calling it more than once is a no-op.
func (c *DecodeContext) Release() {
	c.once.Do(func() {
		c.pool.live.Add(-1)
		c.pool.sem.Release(1)
	})
}

// Decode sniffs the container format of data and decodes it.
// index is reported back in any DecodeError.
func (c *DecodeContext) Decode(index int, data []byte) (*Buffer, error) {
	switch {
	case IsWAV(data):
		buf, err := decodeWAV(data)
		if err != nil {
			return nil, &DecodeError{Index: index, Format: "wav", Err: err}
		}
		return buf, nil
	case IsMP3(data):
		buf, err := decodeMP3(data)
		if err != nil {
			return nil, &DecodeError{Index: index, Format: "mp3", Err: err}
		}
		return buf, nil
	}
	return nil, &DecodeError{Index: index, Format: "unknown", Err: errors.New("unrecognized audio container")}
}

func decodeWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm data: %w", err)
	}
	return intBufferToBuffer(pcm)
}

func intBufferToBuffer(pcm *goaudio.IntBuffer) (*Buffer, error) {
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, errors.New("missing pcm format")
	}
	numChans := pcm.Format.NumChannels
	frames := len(pcm.Data) / numChans
	depth := pcm.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}

	scale := float32(int64(1) << (depth - 1))
	out := &Buffer{SampleRate: pcm.Format.SampleRate, Channels: make([][]float32, numChans)}
	for ch := range out.Channels {
		out.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChans; ch++ {
			v := pcm.Data[i*numChans+ch]
			if depth == 8 {
				// 8-bit WAV is unsigned
				v -= 128
			}
			out.Channels[ch][i] = float32(v) / scale
		}
	}
	return out, nil
}

// go-mp3 always produces interleaved 16-bit little-endian stereo.
func decodeMP3(data []byte) (*Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3 stream: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("failed to read mp3 frames: %w", err)
	}

	frames := len(raw) / 4
	out := &Buffer{SampleRate: d.SampleRate(), Channels: [][]float32{make([]float32, frames), make([]float32, frames)}}
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		out.Channels[0][i] = float32(l) / 32768
		out.Channels[1][i] = float32(r) / 32768
	}
	return out, nil
}
