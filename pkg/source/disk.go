package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/pkg/errors"
)

// diskBackend plays local files through the transcoder alone
type diskBackend struct {
	chain Chain
}

func (d *diskBackend) materialize(ctx context.Context, uri string) (*Track, error) {
	path := strings.TrimPrefix(uri, "file://")

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Wrap(ErrNotAFile, path)
	}

	stream, err := d.chain.Transcode(ctx, path)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Track{
		URI:      uri,
		Metadata: track.DiskPath(path, title, probeDuration(path)),
		Stream:   stream,
	}, nil
}

// probeDuration reads the length of mp3 and wav files; other formats report 0
func probeDuration(path string) time.Duration {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		dec, err := mp3.NewDecoder(f)
		if err != nil || dec.SampleRate() <= 0 {
			return 0
		}
		// decoded output is 16-bit stereo
		samples := dec.Length() / 4
		return time.Duration(samples) * time.Second / time.Duration(dec.SampleRate())
	case ".wav":
		streamer, format, err := wav.Decode(f)
		if err != nil {
			return 0
		}
		defer streamer.Close()
		return format.SampleRate.D(streamer.Len())
	default:
		return 0
	}
}
