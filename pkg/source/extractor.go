package source

import (
	"context"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// extractorBackend streams through the decoder → transcoder chain
type extractorBackend struct {
	chain Chain
}

func (e *extractorBackend) materialize(ctx context.Context, uri string) (*Track, error) {
	stream, md, err := e.chain.Spawn(ctx, uri, nil)
	if err != nil {
		return nil, err
	}

	seed := md.SeedID
	if seed == "" {
		seed = common.ExtractYouTubeVideoID(uri)
	}

	return &Track{
		URI:      uri,
		Metadata: track.Standard(md.Title, md.Artist, seed, md.Length()),
		Stream:   stream,
	}, nil
}
