package pipe

import (
	"context"
	"os"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// DefaultPollInterval is the sleep between FIONREAD polls
const DefaultPollInterval = 500 * time.Microsecond

// Poller reports the number of bytes waiting to be read
type Poller interface {
	Unread() (int, error)
}

// FilePoller polls an os.File pipe with FIONREAD
type FilePoller struct {
	File *os.File
}

// Unread returns the bytes queued on the pipe
func (p FilePoller) Unread() (int, error) {
	return unreadBytes(p.File)
}

// Gate blocks a consumer until a pipe is filled past Threshold of its capacity
type Gate struct {
	Threshold float64
	Interval  time.Duration
	Metrics   *pipeline.Metrics
}

// Wait polls p until unread/capacity reaches the threshold.
//
// A poll error or negative count means the pipe is closed or drained and is
// treated as satisfied. There is no timeout; cancel ctx to give up, in which
// case ctx.Err() is returned.
func (g Gate) Wait(ctx context.Context, p Poller, capacity int) error {
	if capacity <= 0 || g.Threshold <= 0 {
		return nil
	}

	interval := g.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := time.Now()
	defer func() { g.Metrics.ObserveGateWait(time.Since(start)) }()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		n, err := p.Unread()
		if err != nil || n < 0 {
			return nil
		}
		if float64(n)/float64(capacity) >= g.Threshold {
			return nil
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
