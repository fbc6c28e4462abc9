package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"layeh.com/gopus"
)

const (
	frameSize     = 960 // 20ms at 48kHz
	frameDuration = 20 * time.Millisecond
	maxOpusBytes  = 4000
)

// Compressed is a track decoded ahead of time and held in memory as opus
// frames, ready to start instantly
type Compressed struct {
	frames  [][]byte
	bitrate int
}

// Compress reads f32le stereo PCM from r until EOF and encodes it at bitrate
func Compress(ctx context.Context, r io.Reader, bitrate int) (*Compressed, error) {
	encoder, err := gopus.NewEncoder(track.SampleRate, track.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(bitrate)

	src := NewPCMSource(io.NopCloser(r))
	samples := make([][2]float64, frameSize)
	pcm := make([]int16, frameSize*track.Channels)
	c := &Compressed{bitrate: bitrate}

	for {
		if len(c.frames)%50 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		n, ok := src.Stream(samples)
		if n == 0 {
			break
		}
		for i := n; i < frameSize; i++ {
			samples[i] = [2]float64{}
		}
		toInt16(pcm, samples)

		frame, err := encoder.Encode(pcm, frameSize, maxOpusBytes)
		if err != nil {
			return nil, fmt.Errorf("opus encode frame %d: %w", len(c.frames), err)
		}
		c.frames = append(c.frames, frame)

		if !ok || n < frameSize {
			break
		}
	}

	if err := src.Err(); err != nil {
		return nil, err
	}
	if len(c.frames) == 0 {
		return nil, errors.New("compress: empty stream")
	}
	return c, nil
}

// Frames returns the number of opus frames held
func (c *Compressed) Frames() int { return len(c.frames) }

// Duration returns the playable length
func (c *Compressed) Duration() time.Duration {
	return time.Duration(len(c.frames)) * frameDuration
}

// Size returns the encoded size in bytes
func (c *Compressed) Size() int {
	total := 0
	for _, f := range c.frames {
		total += len(f)
	}
	return total
}

// Source returns a fresh decoding stream positioned at the start
func (c *Compressed) Source() (AudioSource, error) {
	decoder, err := gopus.NewDecoder(track.SampleRate, track.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &compressedSource{frames: c.frames, decoder: decoder}, nil
}

type compressedSource struct {
	frames  [][]byte
	next    int
	decoder *gopus.Decoder
	pending []int16
	err     error
}

func (s *compressedSource) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(s.pending) == 0 {
			if s.err != nil || s.next >= len(s.frames) {
				break
			}
			pcm, err := s.decoder.Decode(s.frames[s.next], frameSize, false)
			s.next++
			if err != nil {
				s.err = err
				break
			}
			s.pending = pcm
		}

		for n < len(samples) && len(s.pending) >= 2 {
			samples[n][0] = float64(s.pending[0]) / 32768
			samples[n][1] = float64(s.pending[1]) / 32768
			s.pending = s.pending[2:]
			n++
		}
		if len(s.pending) == 1 {
			s.pending = nil
		}
	}
	return n, n > 0
}

func (s *compressedSource) Err() error { return s.err }

func (s *compressedSource) Close() error {
	s.next = len(s.frames)
	s.pending = nil
	return nil
}
