package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	MIMEMPEG = "audio/mpeg"
	MIMEWAV  = "audio/wav"

	wavHeaderSize = 44
)

// Clip is a chunk of encoded audio together with its container type.
type Clip struct {
	Data     []byte
	MIMEType string
}

// NewClip returns a clip, normalizing common MIME aliases.
func NewClip(data []byte, mimeType string) *Clip {
	return &Clip{Data: data, MIMEType: normalizeMIME(mimeType)}
}

// Extension returns the file extension used when the clip is saved.
func (c *Clip) Extension() string {
	if c.MIMEType == MIMEWAV {
		return "wav"
	}
	return "mp3"
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return MIMEWAV
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg", "":
		return MIMEMPEG
	}
	return mimeType
}

// DecodeError reports a malformed audio payload. Index is the position of the
// payload in a batch, or -1 when the payload was decoded on its own.
type DecodeError struct {
	Index  int
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("failed to decode %s audio at index %d: %v", e.Format, e.Index, e.Err)
	}
	return fmt.Sprintf("failed to decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PCMFormat describes raw little-endian PCM samples.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultPCMFormat is what Gemini TTS returns: 24kHz mono PCM16.
var DefaultPCMFormat = PCMFormat{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

func (f PCMFormat) withDefaults() PCMFormat {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultPCMFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultPCMFormat.Channels
	}
	if f.BitsPerSample <= 0 {
		f.BitsPerSample = DefaultPCMFormat.BitsPerSample
	}
	return f
}

// PCM16ToWAV prepends a canonical 44-byte RIFF/WAVE header to raw PCM.
// Zero fields in f fall back to DefaultPCMFormat.
func PCM16ToWAV(pcm []byte, f PCMFormat) []byte {
	f = f.withDefaults()
	bytesPerSample := f.BitsPerSample / 8
	byteRate := f.SampleRate * f.Channels * bytesPerSample
	blockAlign := f.Channels * bytesPerSample

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// WAVHeader is the parsed form of a RIFF/WAVE header.
type WAVHeader struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	ByteRate      int
	BlockAlign    int
	BitsPerSample int
	DataOffset    int
	DataLength    int
}

// Frames returns the number of sample frames in the data chunk.
func (h WAVHeader) Frames() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return h.DataLength / h.BlockAlign
}

// ParseWAVHeader walks the RIFF chunks of b and returns the fmt and data
// chunk details. Unknown chunks (LIST, fact, ...) are skipped.
func ParseWAVHeader(b []byte) (WAVHeader, error) {
	var h WAVHeader
	if !IsWAV(b) {
		return h, &DecodeError{Index: -1, Format: "wav", Err: errors.New("missing RIFF/WAVE signature")}
	}

	haveFmt := false
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return h, &DecodeError{Index: -1, Format: "wav", Err: errors.New("truncated fmt chunk")}
			}
			h.AudioFormat = int(binary.LittleEndian.Uint16(b[body : body+2]))
			h.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			h.ByteRate = int(binary.LittleEndian.Uint32(b[body+8 : body+12]))
			h.BlockAlign = int(binary.LittleEndian.Uint16(b[body+12 : body+14]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return h, &DecodeError{Index: -1, Format: "wav", Err: errors.New("data chunk before fmt chunk")}
			}
			h.DataOffset = body
			h.DataLength = size
			if body+size > len(b) {
				h.DataLength = len(b) - body
			}
			return h, nil
		}
		// chunks are word aligned
		pos = body + size + size%2
	}
	return h, &DecodeError{Index: -1, Format: "wav", Err: errors.New("no data chunk")}
}

// IsWAV reports whether b starts with a RIFF/WAVE signature.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

// IsMP3 reports whether b looks like an MPEG audio stream, with or without an ID3 tag.
func IsMP3(b []byte) bool {
	if len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")) {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// DecodeBase64 decodes standard base64. Empty or malformed input is a DecodeError.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &DecodeError{Index: -1, Format: "base64", Err: errors.New("empty input")}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Index: -1, Format: "base64", Err: err}
	}
	return b, nil
}

// EncodeBase64 is the inverse of DecodeBase64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// EncodeFloatWAV interleaves per-channel float samples in [-1, 1] into a
// PCM16 WAV. All channels are expected to have the same length.
func EncodeFloatWAV(channels [][]float32, sampleRate int) []byte {
	if len(channels) == 0 {
		return PCM16ToWAV(nil, PCMFormat{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16})
	}
	frames := len(channels[0])
	pcm := make([]byte, frames*len(channels)*2)
	off := 0
	for i := 0; i < frames; i++ {
		for _, ch := range channels {
			var s float32
			if i < len(ch) {
				s = ch[i]
			}
			binary.LittleEndian.PutUint16(pcm[off:], uint16(floatToPCM16(s)))
			off += 2
		}
	}
	return PCM16ToWAV(pcm, PCMFormat{SampleRate: sampleRate, Channels: len(channels), BitsPerSample: 16})
}

func floatToPCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	s = max(-1, min(1, s))
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}
