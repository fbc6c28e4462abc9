package common

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/google/uuid"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// Handle controls one track inside a Player's mixer
type Handle struct {
	id       string
	uri      string
	metadata track.Metadata
	source   AudioSource

	mu      sync.Mutex
	ctrl    *beep.Ctrl
	gain    *effects.Gain
	played  int
	stopped bool
	started time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// NewHandle wraps a playable so it can be mixed, paused and faded
func NewHandle(p *Playable) *Handle {
	ctrl := &beep.Ctrl{Streamer: p.Source}
	return &Handle{
		id:       uuid.NewString(),
		uri:      p.URI,
		metadata: p.Metadata,
		source:   p.Source,
		ctrl:     ctrl,
		gain:     &effects.Gain{Streamer: ctrl},
		started:  time.Now(),
		done:     make(chan struct{}),
	}
}

// ID returns the handle's unique id
func (h *Handle) ID() string { return h.id }

// URI returns the URI the track was materialized from
func (h *Handle) URI() string { return h.uri }

// Metadata returns the track metadata
func (h *Handle) Metadata() track.Metadata { return h.metadata }

// Stream implements beep.Streamer for the mixer
func (h *Handle) Stream(samples [][2]float64) (int, bool) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		h.finish()
		return 0, false
	}
	n, ok := h.gain.Stream(samples)
	if !h.ctrl.Paused {
		h.played += n
	}
	h.mu.Unlock()

	if !ok {
		h.finish()
	}
	return n, ok
}

// Err implements beep.Streamer
func (h *Handle) Err() error { return h.source.Err() }

// SetVolume sets the linear volume factor, 1 being unchanged
func (h *Handle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gain.Gain = v - 1
}

// Volume returns the linear volume factor
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gain.Gain + 1
}

// SetPaused pauses or resumes the track
func (h *Handle) SetPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl.Paused = paused
}

// Paused reports whether the track is paused
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl.Paused
}

// Position returns how much of the track has been played
func (h *Handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Format.SampleRate.D(h.played)
}

// Remaining returns the unplayed part of the track, or 0 when the duration is unknown
func (h *Handle) Remaining() time.Duration {
	if h.metadata.Duration <= 0 {
		return 0
	}
	if left := h.metadata.Duration - h.Position(); left > 0 {
		return left
	}
	return 0
}

// Stop ends the track. The end event fires exactly as for a natural finish.
func (h *Handle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.finish()
}

// Done is closed when the track ends for any reason
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the end event has fired
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) finish() {
	h.doneOnce.Do(func() {
		close(h.done)
		// closing a process stream reaps its processes, keep it off the mixer
		go h.source.Close()
	})
}
