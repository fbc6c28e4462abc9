// Package radio refills an empty queue from recommendations seeded by the
// play history.
package radio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/patrickmn/go-cache"
)

// ErrNoCandidates means the history has no usable seeds or the recommender returned nothing
var ErrNoCandidates = errors.New("radio has nothing to play")

// ExhaustedError is returned when every preload attempt failed
type ExhaustedError struct {
	Attempts int
	LastURI  string
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("radio preload failed after %d attempts (last %s): %v", e.Attempts, e.LastURI, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Materializer turns a URI into a decoded stream
type Materializer interface {
	Materialize(ctx context.Context, uri string) (*source.Track, error)
}

// Queue is the part of the playback queue the engine reads and refills
type Queue interface {
	PopRadio() (string, bool)
	PushRadioFront(uris ...string)
	SetRadioQueue(uris []string)
	History() []track.Record
}

// Engine runs the recommender and preloads compressed radio tracks
type Engine struct {
	recommender pipeline.CommandConfig
	limit       int
	retries     int
	bitrate     int
	dispatcher  Materializer
	memo        *cache.Cache
	logger      pipeline.Logger
	metrics     *pipeline.Metrics
}

// NewEngine creates a radio engine from the engine configuration
func NewEngine(config *pipeline.PipelineConfig, dispatcher Materializer, logger pipeline.Logger, metrics *pipeline.Metrics) *Engine {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Engine{
		recommender: config.Recommender,
		limit:       config.Playback.RadioLimit,
		retries:     config.Playback.RadioRetryBudget,
		bitrate:     config.Playback.RadioBitrate,
		dispatcher:  dispatcher,
		memo:        cache.New(10*time.Minute, 0),
		logger:      logger.With(pipeline.Component("radio")),
		metrics:     metrics,
	}
}

// Reseed asks the recommender for URIs seeded by the history. Skipped
// records and records without a seed are ignored; with no seeds left the
// result is empty and the recommender is not run.
func (e *Engine) Reseed(ctx context.Context, history []track.Record) ([]string, error) {
	seeds := track.Seeds(history)
	if len(seeds) == 0 {
		return nil, nil
	}

	key := strings.Join(seeds, "\x00")
	if cached, ok := e.memo.Get(key); ok {
		return append([]string(nil), cached.([]string)...), nil
	}

	args := make([]string, 0, len(e.recommender.Args)+len(seeds)+2)
	args = append(args, e.recommender.Args...)
	args = append(args, "--limit", strconv.Itoa(e.limit))
	args = append(args, seeds...)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.recommender.BinaryPath, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, pipeline.NewPipelineError(
			fmt.Errorf("recommender: %w: %s", err, strings.TrimSpace(stderr.String())),
			pipeline.CategoryProcess, pipeline.SeverityMedium)
	}
	e.metrics.IncRadioReseeds()

	seen := make(map[string]bool)
	var uris []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		uris = append(uris, line)
	}

	e.memo.SetDefault(key, append([]string(nil), uris...))
	e.logger.Info("radio reseeded",
		pipeline.Int("seeds", len(seeds)),
		pipeline.Int("candidates", len(uris)))
	return uris, nil
}

// PreloadOne pops radio URIs, reseeding when the radio queue is empty, until
// one materializes. Each attempt uses a different URI. The winner is decoded
// ahead of time into memory.
func (e *Engine) PreloadOne(ctx context.Context, q Queue) (*common.Playable, error) {
	var (
		lastURI string
		lastErr error
	)

	for attempt := 1; attempt <= e.retries; attempt++ {
		uri, ok := q.PopRadio()
		if !ok {
			uris, err := e.Reseed(ctx, q.History())
			if err != nil {
				return nil, err
			}
			q.SetRadioQueue(uris)
			if uri, ok = q.PopRadio(); !ok {
				return nil, ErrNoCandidates
			}
		}

		p, err := e.compress(ctx, q, uri)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastURI, lastErr = uri, err
		e.logger.Warn("radio candidate failed",
			pipeline.String("uri", uri),
			pipeline.Int("attempt", attempt),
			pipeline.Error(err))
	}

	return nil, &ExhaustedError{Attempts: e.retries, LastURI: lastURI, Err: lastErr}
}

// compress preloads uri into memory. Further files of a multi-file download
// go to the front of the radio queue so they play next.
func (e *Engine) compress(ctx context.Context, q Queue, uri string) (*common.Playable, error) {
	t, err := e.dispatcher.Materialize(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer t.Stream.Close()

	c, err := common.Compress(ctx, t.Stream, e.bitrate)
	if err != nil {
		return nil, err
	}
	src, err := c.Source()
	if err != nil {
		return nil, err
	}
	if len(t.Followups) > 0 {
		q.PushRadioFront(t.Followups...)
	}

	md := t.Metadata
	if md.Duration <= 0 {
		md.Duration = c.Duration()
	}

	e.logger.Debug("radio track preloaded",
		pipeline.String("uri", uri),
		pipeline.Int("frames", c.Frames()),
		pipeline.Int("bytes", c.Size()))

	return &common.Playable{URI: uri, Metadata: md, Source: src, Compressed: c}, nil
}
