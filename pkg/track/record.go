package track

import "time"

// EndReason records how a history entry stopped playing
type EndReason int

const (
	Unmarked EndReason = iota
	Finished
	Skipped
)

func (r EndReason) String() string {
	switch r {
	case Unmarked:
		return "unmarked"
	case Finished:
		return "finished"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Record is one entry in the play history
type Record struct {
	Metadata  Metadata  `msgpack:"metadata"`
	EndReason EndReason `msgpack:"end_reason"`
	Start     time.Time `msgpack:"start"`
	End       time.Time `msgpack:"end"`
}
