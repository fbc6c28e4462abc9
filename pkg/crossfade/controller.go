package crossfade

import (
	"context"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Slots holds the crossfade handles and step counter of a guild's queue
type Slots interface {
	CrossfadeOutgoing() *common.Handle
	CrossfadeIncoming() *common.Handle
	SetCrossfadeIncoming(h *common.Handle) error
	PromoteIncoming() *common.Handle
	NextStep() int
	ResetStep()
}

// Player starts playables
type Player interface {
	Play(p *common.Playable, volume float64) *common.Handle
}

// NextFunc produces the next playable, or nil when there is none
type NextFunc func(ctx context.Context) (*common.Playable, error)

// Controller drives one guild's fade, one Tick per timer period.
// Callers serialize Tick with every other mutation of the guild's queue.
type Controller struct {
	Envelope Envelope
	Slots    Slots
	Next     NextFunc
	Player   Player

	// OnSwap is called with the promoted handle before the outgoing one stops.
	OnSwap func(h *common.Handle)

	Logger  pipeline.Logger
	Metrics *pipeline.Metrics
}

// Tick advances the fade by one step. It reports done when the periodic
// registration should be cancelled: after a swap, or when there is nothing
// to fade to.
func (c *Controller) Tick(ctx context.Context) (done bool, err error) {
	out := c.Slots.CrossfadeOutgoing()
	if out == nil || out.Finished() {
		c.Slots.ResetStep()
		return true, nil
	}

	in := c.Slots.CrossfadeIncoming()
	if in == nil {
		p, err := c.Next(ctx)
		if err != nil {
			c.Slots.ResetStep()
			return true, err
		}
		if p == nil {
			c.Slots.ResetStep()
			return true, nil
		}

		in = c.Player.Play(p, c.Envelope.Floor())
		if err := c.Slots.SetCrossfadeIncoming(in); err != nil {
			in.Stop()
			return false, err
		}
		c.logger().Debug("crossfade started",
			pipeline.String("outgoing", out.Metadata().DisplayTitle()),
			pipeline.String("incoming", in.Metadata().DisplayTitle()))
	}

	x := c.Slots.NextStep()
	out.SetVolume(clamp01(c.Envelope.Outgoing(x)))
	in.SetVolume(clamp01(c.Envelope.Incoming(x)))

	if x <= c.Envelope.Steps() {
		return false, nil
	}

	promoted := c.Slots.PromoteIncoming()
	if c.OnSwap != nil {
		c.OnSwap(promoted)
	}
	out.Stop()
	c.Metrics.IncCrossfades()

	c.logger().Debug("crossfade complete", pipeline.String("handle", promoted.ID()))
	return true, nil
}

func (c *Controller) logger() pipeline.Logger {
	if c.Logger == nil {
		return pipeline.NullLogger()
	}
	return c.Logger
}
