package queue

import "github.com/latoulicious/TarumaeRadio/pkg/track"

// Snapshot is the cold form of a queue, kept while the guild has no voice
// session. Preloaded tracks are folded back into their queues as URIs.
type Snapshot struct {
	Pending    []string       `msgpack:"pending"`
	RadioQueue []string       `msgpack:"radio_queue"`
	History    []track.Record `msgpack:"history"`
	Radio      bool           `msgpack:"radio"`
	Crossfade  bool           `msgpack:"crossfade"`
}

// Empty reports whether restoring the snapshot would change nothing
func (s *Snapshot) Empty() bool {
	return len(s.Pending) == 0 && len(s.RadioQueue) == 0 && len(s.History) == 0 && !s.Radio && !s.Crossfade
}

// Snapshot captures the queue's cold state
func (q *PlaybackQueue) Snapshot() *Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &Snapshot{
		History:   q.history.Records(),
		Radio:     q.radioEnabled,
		Crossfade: q.crossfade.Load(),
	}
	if q.preloadNext != nil {
		s.Pending = append(s.Pending, q.preloadNext.URI)
	}
	s.Pending = append(s.Pending, q.pending...)
	if q.radioPreload != nil {
		s.RadioQueue = append(s.RadioQueue, q.radioPreload.URI)
	}
	s.RadioQueue = append(s.RadioQueue, q.radioQueue...)
	return s
}

// Restore replaces the queue's cold state with s. Preload slots are
// released; they refill on the next Preload.
func (q *PlaybackQueue) Restore(s *Snapshot) {
	q.Clear()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]string(nil), s.Pending...)
	q.radioQueue = append([]string(nil), s.RadioQueue...)
	q.history.Restore(s.History)
	q.radioEnabled = s.Radio
	q.crossfade.Store(s.Crossfade)
}
