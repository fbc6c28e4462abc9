// Package crossfade fades between the outgoing and incoming track of a guild
// on a quadratic volume curve.
package crossfade

import (
	"math"
	"time"
)

// DefaultPeak gives a fade of 100 steps
const DefaultPeak = 10000

// Envelope is the quadratic volume curve. At step x the outgoing track plays
// at (Peak - x²) / Peak and the incoming track at the complement.
type Envelope struct {
	Peak int
}

// Steps is the number of ticks in a full fade, the integer square root of Peak
func (e Envelope) Steps() int {
	return int(math.Sqrt(float64(e.peak())))
}

// Outgoing returns the outgoing volume factor at step x; it reaches zero at Steps and goes negative after
func (e Envelope) Outgoing(x int) float64 {
	p := e.peak()
	return float64(p-x*x) / float64(p)
}

// Incoming returns the incoming volume factor at step x
func (e Envelope) Incoming(x int) float64 {
	return 1 - e.Outgoing(x)
}

// Floor is the near-silent volume an incoming track starts at
func (e Envelope) Floor() float64 {
	return 1 / float64(e.peak())
}

// Interval is the tick period that spreads Steps ticks over fade
func (e Envelope) Interval(fade time.Duration) time.Duration {
	return fade / time.Duration(e.Steps())
}

func (e Envelope) peak() int {
	if e.Peak <= 0 {
		return DefaultPeak
	}
	return e.Peak
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
