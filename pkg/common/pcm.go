package common

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/faiface/beep"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// Format is the single output format of the engine: 48 kHz stereo float
var Format = beep.Format{
	SampleRate:  beep.SampleRate(track.SampleRate),
	NumChannels: track.Channels,
	Precision:   4,
}

const bytesPerFrame = track.Channels * 4

// AudioSource is a closable beep stream of engine-format samples
type AudioSource interface {
	beep.Streamer
	io.Closer
}

// PCMSource streams interleaved little-endian float32 stereo, as produced by
// the transcoder
type PCMSource struct {
	r   *bufio.Reader
	c   io.Closer
	buf []byte
	err error
}

// NewPCMSource wraps a raw f32le stream
func NewPCMSource(rc io.ReadCloser) *PCMSource {
	return &PCMSource{r: bufio.NewReaderSize(rc, 64<<10), c: rc}
}

// Stream implements beep.Streamer
func (s *PCMSource) Stream(samples [][2]float64) (n int, ok bool) {
	if s.err != nil {
		return 0, false
	}

	need := len(samples) * bytesPerFrame
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	m, err := io.ReadFull(s.r, buf)
	n = m / bytesPerFrame
	for i := 0; i < n; i++ {
		off := i * bytesPerFrame
		samples[i][0] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
		samples[i][1] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:])))
	}

	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = err
		} else {
			s.err = io.EOF
		}
		return n, n > 0
	}
	return n, true
}

// Err implements beep.Streamer; end of stream is not an error
func (s *PCMSource) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// Close releases the underlying stream
func (s *PCMSource) Close() error {
	return s.c.Close()
}

// toInt16 converts mixed float samples into interleaved PCM for opus
func toInt16(dst []int16, samples [][2]float64) {
	for i, s := range samples {
		dst[2*i] = clamp16(s[0])
		dst[2*i+1] = clamp16(s[1])
	}
}

func clamp16(v float64) int16 {
	v *= math.MaxInt16
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
