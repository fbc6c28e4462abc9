package common

import "github.com/latoulicious/TarumaeRadio/pkg/track"

// Playable is a materialized track that has not started yet
type Playable struct {
	URI      string
	Metadata track.Metadata
	Source   AudioSource

	// Compressed is set when the track was decoded ahead of time.
	Compressed *Compressed
}

// Close releases the source of a playable that will never be played
func (p *Playable) Close() error {
	if p == nil || p.Source == nil {
		return nil
	}
	return p.Source.Close()
}
