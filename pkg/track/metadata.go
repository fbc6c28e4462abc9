package track

import "time"

// Output format of every stream leaving the transcoder
const (
	SampleRate = 48000
	Channels   = 2
)

// Kind tags the variant carried by Metadata
type Kind int

const (
	// KindStandard comes from the streaming extractor and may carry a source id.
	KindStandard Kind = iota
	// KindSourceSpecific comes from a catalog download and may carry an ISRC.
	KindSourceSpecific
	// KindDiskPath is a local file.
	KindDiskPath
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindSourceSpecific:
		return "source_specific"
	case KindDiskPath:
		return "disk_path"
	default:
		return "unknown"
	}
}

// Metadata describes one playable track. Duration is zero when unknown.
type Metadata struct {
	Kind     Kind          `msgpack:"kind"`
	Duration time.Duration `msgpack:"duration"`
	Title    string        `msgpack:"title"`
	Artist   string        `msgpack:"artist"`

	// SourceID is the recommendation seed, set only on KindStandard.
	SourceID string `msgpack:"source_id,omitempty"`
	// ISRC is set only on KindSourceSpecific.
	ISRC string `msgpack:"isrc,omitempty"`
	// Path is set only on KindDiskPath.
	Path string `msgpack:"path,omitempty"`
}

// Standard builds extractor metadata
func Standard(title, artist, sourceID string, duration time.Duration) Metadata {
	return Metadata{Kind: KindStandard, Title: title, Artist: artist, SourceID: sourceID, Duration: duration}
}

// SourceSpecific builds catalog-download metadata
func SourceSpecific(title, artist, isrc string, duration time.Duration) Metadata {
	return Metadata{Kind: KindSourceSpecific, Title: title, Artist: artist, ISRC: isrc, Duration: duration}
}

// DiskPath builds metadata for a local file
func DiskPath(path, title string, duration time.Duration) Metadata {
	return Metadata{Kind: KindDiskPath, Path: path, Title: title, Duration: duration}
}

// SampleRate is fixed regardless of source.
func (m Metadata) SampleRate() int { return SampleRate }

// Channels is fixed regardless of source.
func (m Metadata) Channels() int { return Channels }

// SeedID returns the recommendation seed, or "" when the variant has none.
func (m Metadata) SeedID() string {
	if m.Kind != KindStandard {
		return ""
	}
	return m.SourceID
}

// DisplayTitle falls back through title, path and a placeholder
func (m Metadata) DisplayTitle() string {
	switch {
	case m.Title != "" && m.Artist != "":
		return m.Artist + " - " + m.Title
	case m.Title != "":
		return m.Title
	case m.Path != "":
		return m.Path
	default:
		return "Unknown track"
	}
}
