package queue

import (
	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// SetCurrent records the handle that is now playing; it becomes the
// outgoing side of the next fade
func (q *PlaybackQueue) SetCurrent(h *common.Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.crossfadeOutgoing = h
}

// Current returns the playing handle
func (q *PlaybackQueue) Current() *common.Handle {
	return q.CrossfadeOutgoing()
}

// CrossfadeOutgoing returns the handle being faded out
func (q *PlaybackQueue) CrossfadeOutgoing() *common.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.crossfadeOutgoing
}

// CrossfadeIncoming returns the handle being faded in, if a fade is running
func (q *PlaybackQueue) CrossfadeIncoming() *common.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.crossfadeIncoming
}

// SetCrossfadeIncoming assigns the incoming handle. A second assignment
// before the swap is rejected with ErrHandleExhausted.
func (q *PlaybackQueue) SetCrossfadeIncoming(h *common.Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.crossfadeIncoming != nil {
		q.logger.Warn("crossfade incoming already set", pipeline.String("handle", q.crossfadeIncoming.ID()))
		return classify(ErrHandleExhausted)
	}
	q.crossfadeIncoming = h
	return nil
}

// PromoteIncoming makes the incoming handle the outgoing one, clears the
// incoming slot and resets the step counter
func (q *PlaybackQueue) PromoteIncoming() *common.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.crossfadeOutgoing, q.crossfadeIncoming = q.crossfadeIncoming, nil
	q.crossfadeStep = 0
	return q.crossfadeOutgoing
}

// NextStep advances the crossfade step counter and returns the new value,
// starting at 1
func (q *PlaybackQueue) NextStep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.crossfadeStep++
	return q.crossfadeStep
}

// ResetStep resets the crossfade step counter
func (q *PlaybackQueue) ResetStep() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.crossfadeStep = 0
}
