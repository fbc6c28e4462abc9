// Package queue holds the per-guild playback state: the pending URIs, the
// preload slots, the radio queue, the play history and the crossfade handles.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/radio"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// DefaultRetryBudget is the number of pending URIs tried before a batch halts
const DefaultRetryBudget = 4

// Materializer turns a URI into a decoded stream
type Materializer interface {
	Materialize(ctx context.Context, uri string) (*source.Track, error)
}

// RadioPreloader produces a ready-to-play radio track from the queue's radio state
type RadioPreloader interface {
	PreloadOne(ctx context.Context, q radio.Queue) (*common.Playable, error)
}

// FailureFunc is told about every pending URI that failed to materialize
type FailureFunc func(uri string, err error)

// Options configures a PlaybackQueue
type Options struct {
	HistorySize int
	RetryBudget int
	Radio       RadioPreloader
	OnFailure   FailureFunc
	Logger      pipeline.Logger
}

// PlaybackQueue is the "what plays next" state of one guild.
//
// The short internal mutex only guards structural mutations; callers that
// need Next and crossfade ticks to be mutually exclusive hold their own guild
// lock around them, taken before this one. Preload may run without that lock:
// Next waits for an in-flight preload so queue order is kept.
type PlaybackQueue struct {
	mu sync.Mutex

	pending      []string
	preloadNext  *common.Playable
	radioQueue   []string
	radioPreload *common.Playable
	history      *track.History

	crossfadeOutgoing *common.Handle
	crossfadeIncoming *common.Handle
	crossfadeStep     int

	radioEnabled bool
	crossfade    atomic.Bool

	// loading is closed when the in-flight Preload returns; nil when idle
	loading chan struct{}
	closed  bool

	dispatcher Materializer
	radio      RadioPreloader
	retries    int
	onFailure  FailureFunc
	now        func() time.Time
	logger     pipeline.Logger
}

// New creates an empty queue that materializes through dispatcher
func New(dispatcher Materializer, opts Options) *PlaybackQueue {
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultRetryBudget
	}
	if opts.Logger == nil {
		opts.Logger = pipeline.NullLogger()
	}
	return &PlaybackQueue{
		history:    track.NewHistory(opts.HistorySize),
		dispatcher: dispatcher,
		radio:      opts.Radio,
		retries:    opts.RetryBudget,
		onFailure:  opts.OnFailure,
		now:        time.Now,
		logger:     opts.Logger.With(pipeline.Component("queue")),
	}
}

// Next produces the next track to play, in strict priority order:
// the preload-next slot, then the pending queue, then the radio preload.
// It returns nil with no error when there is nothing to play. At most one
// slot is consumed per call.
func (q *PlaybackQueue) Next(ctx context.Context) (*common.Playable, error) {
	q.mu.Lock()
	for q.loading != nil {
		done := q.loading
		q.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		q.mu.Lock()
	}
	if p := q.preloadNext; p != nil {
		q.preloadNext = nil
		q.history.Push(p.Metadata, q.now())
		q.mu.Unlock()
		return p, nil
	}
	hasPending := len(q.pending) > 0
	q.mu.Unlock()

	if hasPending {
		p, err := q.popPending(ctx)
		if err != nil || p != nil {
			if p != nil {
				q.HistoryPush(p)
			}
			return p, err
		}
	}

	p, err := q.takeRadio(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	q.HistoryPush(p)
	return p, nil
}

// Preload fills the slot one unit ahead: a pending URI into preload-next,
// or with an empty pending queue and radio enabled, a radio track into
// radio-preload. It is a no-op when the relevant slot is already filled or
// another preload is running.
func (q *PlaybackQueue) Preload(ctx context.Context) error {
	q.mu.Lock()
	if q.preloadNext != nil || q.loading != nil || q.closed {
		q.mu.Unlock()
		return nil
	}
	hasPending := len(q.pending) > 0
	wantRadio := q.radioEnabled && q.radioPreload == nil && q.radio != nil
	if !hasPending && !wantRadio {
		q.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	q.loading = done
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.loading = nil
		q.mu.Unlock()
		close(done)
	}()

	if hasPending {
		p, err := q.popPending(ctx)
		if err != nil {
			return err
		}
		if p != nil {
			q.storePreload(&q.preloadNext, p)
			return nil
		}
	}

	if !wantRadio {
		return nil
	}
	p, err := q.radio.PreloadOne(ctx, q)
	if err != nil {
		return err
	}
	q.storePreload(&q.radioPreload, p)
	return nil
}

// HasPreload reports whether either preload slot is filled
func (q *PlaybackQueue) HasPreload() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.preloadNext != nil || q.radioPreload != nil
}

func (q *PlaybackQueue) storePreload(slot **common.Playable, p *common.Playable) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if *slot != nil || q.closed || (slot == &q.radioPreload && !q.radioEnabled) {
		_ = p.Close()
		return
	}
	*slot = p
	q.logger.Debug("preloaded", pipeline.String("uri", p.URI))
}

// popPending pops pending URIs until one materializes. Each failure is
// reported and costs one attempt of the retry budget; a different URI is
// tried every time.
func (q *PlaybackQueue) popPending(ctx context.Context) (*common.Playable, error) {
	var (
		lastURI  string
		lastErr  error
		attempts int
	)

	for attempts < q.retries {
		uri, ok := q.pop()
		if !ok {
			break
		}

		t, err := q.dispatcher.Materialize(ctx, uri)
		if err == nil {
			if len(t.Followups) > 0 {
				q.PushFront(t.Followups...)
			}
			return t.Playable(), nil
		}
		if ctx.Err() != nil {
			// an aborted load is not a failure of the URI
			q.PushFront(uri)
			return nil, ctx.Err()
		}

		attempts++
		lastURI, lastErr = uri, err
		q.logger.Warn("pending track failed",
			pipeline.String("uri", uri),
			pipeline.Int("attempt", attempts),
			pipeline.Int("budget", q.retries),
			pipeline.Error(err))
		if q.onFailure != nil {
			q.onFailure(uri, err)
		}
	}

	if lastErr == nil {
		return nil, nil
	}
	return nil, &BatchHaltedError{Attempts: attempts, LastURI: lastURI, Err: lastErr}
}

// takeRadio consumes the radio preload. When radio is on but nothing was
// preloaded in time, one radio track is produced synchronously.
func (q *PlaybackQueue) takeRadio(ctx context.Context) (*common.Playable, error) {
	q.mu.Lock()
	if !q.radioEnabled {
		q.mu.Unlock()
		return nil, nil
	}
	if p := q.radioPreload; p != nil {
		q.radioPreload = nil
		q.mu.Unlock()
		return p, nil
	}
	q.mu.Unlock()

	if q.radio == nil {
		return nil, nil
	}
	return q.radio.PreloadOne(ctx, q)
}

func (q *PlaybackQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	uri := q.pending[0]
	q.pending = q.pending[1:]
	return uri, true
}

// HistoryPush records that p started playing
func (q *PlaybackQueue) HistoryPush(p *common.Playable) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history.Push(p.Metadata, q.now())
}

// MarkSkipped marks the current history record Skipped
func (q *PlaybackQueue) MarkSkipped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.history.MarkSkipped(q.now())
}

// History returns a copy of the play history, oldest first
func (q *PlaybackQueue) History() []track.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.history.Records()
}

// NowPlaying returns the most recent history record
func (q *PlaybackQueue) NowPlaying() (track.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.history.Current()
}

// Push appends URIs to the pending queue
func (q *PlaybackQueue) Push(uris ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, uris...)
}

// PushFront puts URIs at the head of the pending queue, keeping their order
func (q *PlaybackQueue) PushFront(uris ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(append(make([]string, 0, len(uris)+len(q.pending)), uris...), q.pending...)
}

// Pending returns a copy of the pending URIs
func (q *PlaybackQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pending...)
}

// Len returns the number of pending URIs
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops the pending and radio queues and releases both preload slots
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = nil
	q.radioQueue = nil
	_ = q.preloadNext.Close()
	_ = q.radioPreload.Close()
	q.preloadNext, q.radioPreload = nil, nil
}

// PopRadio pops the head of the radio queue
func (q *PlaybackQueue) PopRadio() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.radioQueue) == 0 {
		return "", false
	}
	uri := q.radioQueue[0]
	q.radioQueue = q.radioQueue[1:]
	return uri, true
}

// PushRadioFront puts URIs at the head of the radio queue, in order
func (q *PlaybackQueue) PushRadioFront(uris ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.radioQueue = append(append(make([]string, 0, len(uris)+len(q.radioQueue)), uris...), q.radioQueue...)
}

// SetRadioQueue replaces the radio queue
func (q *PlaybackQueue) SetRadioQueue(uris []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.radioQueue = append([]string(nil), uris...)
}

// SetRadio toggles radio mode; turning it off releases the radio preload
func (q *PlaybackQueue) SetRadio(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.radioEnabled = enabled
	if !enabled {
		_ = q.radioPreload.Close()
		q.radioPreload = nil
		q.radioQueue = nil
	}
}

// RadioEnabled reports whether radio mode is on
func (q *PlaybackQueue) RadioEnabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.radioEnabled
}

// SetCrossfade toggles crossfade mode
func (q *PlaybackQueue) SetCrossfade(enabled bool) {
	q.crossfade.Store(enabled)
}

// CrossfadeEnabled reports whether crossfade mode is on
func (q *PlaybackQueue) CrossfadeEnabled() bool {
	return q.crossfade.Load()
}

// Close clears the queue and stops both crossfade handles
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Clear()

	q.mu.Lock()
	out, in := q.crossfadeOutgoing, q.crossfadeIncoming
	q.crossfadeOutgoing, q.crossfadeIncoming = nil, nil
	q.crossfadeStep = 0
	q.mu.Unlock()

	if out != nil {
		out.Stop()
	}
	if in != nil {
		in.Stop()
	}
}
