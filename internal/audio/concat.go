package audio

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Concatenator merges independently fetched clips into one WAV track.
type Concatenator struct {
	pool *DecodePool
}

// NewConcatenator creates a concatenator drawing decode contexts from pool.
// A nil pool gets a default-sized one.
func NewConcatenator(pool *DecodePool) *Concatenator {
	if pool == nil {
		pool = NewDecodePool(DefaultMaxDecodeContexts)
	}
	return &Concatenator{pool: pool}
}

// Pool returns the decode pool backing the concatenator.
func (c *Concatenator) Pool() *DecodePool {
	return c.pool
}

// Concat decodes every clip and joins them in order.
//
// Zero clips yield nil and a single clip is returned as is. The first clip
// fixes the sample rate; the channel count is the widest input, and
// narrower inputs repeat their last channel to fill the gap. No resampling
// or channel mixing is attempted. Any decode failure fails the whole call.
func (c *Concatenator) Concat(ctx context.Context, clips []*Clip) (*Clip, error) {
	dc, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer dc.Release()

	if len(clips) == 0 {
		return nil, nil
	}
	if len(clips) == 1 {
		return clips[0], nil
	}

	buffers := make([]*Buffer, 0, len(clips))
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if clip == nil {
			return nil, &DecodeError{Index: i, Format: "unknown", Err: errors.New("nil clip")}
		}
		buf, err := dc.Decode(i, clip.Data)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, buf)
	}

	merged := mergeBuffers(buffers)
	log.Debug().
		Int("inputs", len(buffers)).
		Int("channels", len(merged.Channels)).
		Int("sample_rate", merged.SampleRate).
		Int("frames", merged.Frames()).
		Msg("Concatenated audio clips")

	return &Clip{Data: EncodeFloatWAV(merged.Channels, merged.SampleRate), MIMEType: MIMEWAV}, nil
}

// ConcatBestEffort behaves like Concat, but on failure it falls back to the
// first clip that decodes on its own, or to the first clip if none does.
func (c *Concatenator) ConcatBestEffort(ctx context.Context, clips []*Clip) *Clip {
	out, err := c.Concat(ctx, clips)
	if err == nil {
		return out
	}
	log.Warn().Err(err).Int("inputs", len(clips)).Msg("Concatenation failed, falling back to a single clip")
	return c.firstDecodable(ctx, clips)
}

func (c *Concatenator) firstDecodable(ctx context.Context, clips []*Clip) *Clip {
	var first *Clip
	for _, clip := range clips {
		if clip != nil {
			first = clip
			break
		}
	}
	if first == nil {
		return nil
	}

	dc, err := c.pool.Acquire(ctx)
	if err != nil {
		return first
	}
	defer dc.Release()

	for i, clip := range clips {
		if clip == nil {
			continue
		}
		if _, err := dc.Decode(i, clip.Data); err == nil {
			return clip
		}
	}
	return first
}

func mergeBuffers(buffers []*Buffer) *Buffer {
	sampleRate := buffers[0].SampleRate
	numChans := 0
	total := 0
	for _, b := range buffers {
		numChans = max(numChans, len(b.Channels))
		total += b.Frames()
	}

	out := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, numChans)}
	for ch := range out.Channels {
		out.Channels[ch] = make([]float32, total)
	}

	offset := 0
	for _, b := range buffers {
		frames := b.Frames()
		for ch := 0; ch < numChans; ch++ {
			if len(b.Channels) == 0 {
				break
			}
			src := b.Channels[min(ch, len(b.Channels)-1)]
			copy(out.Channels[ch][offset:offset+frames], src)
		}
		offset += frames
	}
	return out
}
