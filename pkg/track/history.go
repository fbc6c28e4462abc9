package track

import "time"

// DefaultHistorySize is the ring size used when none is configured
const DefaultHistorySize = 10

// History is a bounded FIFO of play records, oldest first.
// It is not safe for concurrent use; the owning queue serializes access.
type History struct {
	max     int
	records []Record
}

// NewHistory creates a ring holding at most max records
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max, records: make([]Record, 0, max)}
}

// Push records that a new track started at now.
//
// Tracks are finalized lazily: the previous record becomes Finished only
// when the next one starts, because pause, skip and leave all raise the same
// end signal as a natural finish. A record already marked Skipped keeps
// that reason. Callers must hold the same lock for Push and MarkSkipped.
func (h *History) Push(meta Metadata, now time.Time) {
	if n := len(h.records); n > 0 {
		current := &h.records[n-1]
		if current.EndReason == Unmarked {
			current.EndReason = Finished
			current.End = now
		}
	}

	if len(h.records) >= h.max {
		copy(h.records, h.records[1:])
		h.records = h.records[:len(h.records)-1]
	}

	h.records = append(h.records, Record{Metadata: meta, EndReason: Unmarked, Start: now})
}

// MarkSkipped marks the current record Skipped. It reports false when the
// history is empty or the record was already finalized.
func (h *History) MarkSkipped(now time.Time) bool {
	n := len(h.records)
	if n == 0 || h.records[n-1].EndReason != Unmarked {
		return false
	}
	h.records[n-1].EndReason = Skipped
	h.records[n-1].End = now
	return true
}

// Current returns the most recent record
func (h *History) Current() (Record, bool) {
	if len(h.records) == 0 {
		return Record{}, false
	}
	return h.records[len(h.records)-1], true
}

// Records returns a copy of the ring, oldest first
func (h *History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns the number of records held
func (h *History) Len() int { return len(h.records) }

// Cap returns the configured maximum
func (h *History) Cap() int { return h.max }

// Restore replaces the ring contents, keeping only the newest max records
func (h *History) Restore(records []Record) {
	if len(records) > h.max {
		records = records[len(records)-h.max:]
	}
	h.records = append(h.records[:0], records...)
}

// Seeds returns recommendation seeds from records that were not skipped
func Seeds(records []Record) []string {
	seeds := make([]string, 0, len(records))
	for _, r := range records {
		if r.EndReason == Skipped {
			continue
		}
		if id := r.Metadata.SeedID(); id != "" {
			seeds = append(seeds, id)
		}
	}
	return seeds
}
