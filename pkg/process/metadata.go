package process

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Metadata is the single JSON object a decoder writes to stderr before audio
type Metadata struct {
	Duration float64 `json:"duration"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	SeedID   string  `json:"seed_id,omitempty"`
	Filesize int64   `json:"filesize,omitempty"`
}

// Length returns Duration as a time.Duration
func (m *Metadata) Length() time.Duration {
	if m == nil || m.Duration <= 0 {
		return 0
	}
	return time.Duration(m.Duration * float64(time.Second))
}

var errMissingDuration = errors.New("metadata has no duration")

func parseMetadata(line []byte) (*Metadata, error) {
	var raw struct {
		Duration *float64 `json:"duration"`
		Metadata
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	if raw.Duration == nil || math.IsNaN(*raw.Duration) || *raw.Duration < 0 {
		return nil, errMissingDuration
	}
	md := raw.Metadata
	md.Duration = *raw.Duration
	return &md, nil
}
