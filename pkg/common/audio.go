package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/faiface/beep"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"layeh.com/gopus"
)

// ErrFrameDropped is returned when the voice connection does not accept a frame in time
var ErrFrameDropped = errors.New("opus frame dropped")

// OpusSink receives encoded 20ms opus frames
type OpusSink interface {
	SendOpus(ctx context.Context, frame []byte) error
	Speaking(speaking bool) error
}

// VoiceSink sends frames over a discordgo voice connection
type VoiceSink struct {
	Conn *discordgo.VoiceConnection
}

// SendOpus queues a frame on the connection's OpusSend channel
func (v VoiceSink) SendOpus(ctx context.Context, frame []byte) error {
	select {
	case v.Conn.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return ErrFrameDropped
	}
}

// Speaking toggles the speaking indicator
func (v VoiceSink) Speaking(speaking bool) error {
	return v.Conn.Speaking(speaking)
}

// Player mixes every active handle of a guild and streams the result as opus
type Player struct {
	sink    OpusSink
	encoder *gopus.Encoder
	logger  pipeline.Logger
	metrics *pipeline.Metrics

	mu      sync.Mutex
	mixer   beep.Mixer
	handles []*Handle

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer creates a player encoding at bitrate
func NewPlayer(sink OpusSink, bitrate int, logger pipeline.Logger, metrics *pipeline.Metrics) (*Player, error) {
	encoder, err := gopus.NewEncoder(track.SampleRate, track.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(bitrate)

	if logger == nil {
		logger = pipeline.NullLogger()
	}

	return &Player{
		sink:    sink,
		encoder: encoder,
		logger:  logger.With(pipeline.Component("player")),
		metrics: metrics,
	}, nil
}

// Start runs the 20ms send loop until ctx is cancelled or Close is called
func (p *Player) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Play starts a playable at the given volume and returns its handle
func (p *Player) Play(pl *Playable, volume float64) *Handle {
	h := NewHandle(pl)
	h.SetVolume(volume)

	p.mu.Lock()
	p.mixer.Add(h)
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	p.metrics.IncTracksStarted()
	p.logger.Debug("track started",
		pipeline.String("handle", h.ID()),
		pipeline.String("title", h.Metadata().DisplayTitle()))
	return h
}

// Active returns the number of handles still in the mixer
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mixer.Len()
}

// StopAll stops every live handle
func (p *Player) StopAll() {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Close stops every handle and the send loop
func (p *Player) Close() {
	p.StopAll()
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// mix fills samples from the mixer; it reports false when nothing is playing
func (p *Player) mix(samples [][2]float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mixer.Len() == 0 {
		p.handles = p.handles[:0]
		return false
	}
	p.mixer.Stream(samples)

	live := p.handles[:0]
	for _, h := range p.handles {
		if !h.Finished() {
			live = append(live, h)
		}
	}
	p.handles = live
	return true
}

func (p *Player) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	samples := make([][2]float64, frameSize)
	pcm := make([]int16, frameSize*track.Channels)
	speaking := false

	setSpeaking := func(on bool) {
		if speaking == on {
			return
		}
		speaking = on
		if err := p.sink.Speaking(on); err != nil {
			p.logger.Debug("speaking update failed", pipeline.Error(err))
		}
	}
	defer setSpeaking(false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.mix(samples) {
			setSpeaking(false)
			continue
		}
		setSpeaking(true)

		toInt16(pcm, samples)
		frame, err := p.encoder.Encode(pcm, frameSize, maxOpusBytes)
		if err != nil {
			p.logger.Warn("opus encoding error", pipeline.Error(err))
			continue
		}

		if err := p.sink.SendOpus(ctx, frame); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Debug("frame not sent", pipeline.Error(err))
		}
	}
}
