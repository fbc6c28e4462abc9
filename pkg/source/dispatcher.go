package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// Backend is the extraction strategy selected for a URI
type Backend int

const (
	BackendDisk Backend = iota
	BackendDownloader
	BackendExtractor
	BackendDirect
)

func (b Backend) String() string {
	switch b {
	case BackendDisk:
		return "disk"
	case BackendDownloader:
		return "downloader"
	case BackendExtractor:
		return "extractor"
	case BackendDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Rule pairs a URI predicate with the backend that handles it
type Rule struct {
	Name    string
	Match   func(uri string) bool
	Backend Backend
}

// Source families, matched against the URI host and its subdomains
var (
	StreamingServiceDomains = []string{"open.spotify.com", "deezer.com", "tidal.com", "music.apple.com"}
	SharingDomains          = []string{"youtube.com", "youtu.be", "music.youtube.com", "soundcloud.com", "bandcamp.com", "vimeo.com", "twitch.tv"}
	DirectMediaHosts        = []string{"cdn.discordapp.com", "media.discordapp.net"}
)

// DefaultRules is the ordered rule list; the first match wins. Only files
// inside cacheDir are playable from disk.
func DefaultRules(cacheDir string, extraDirectHosts []string) []Rule {
	direct := append(append([]string{}, DirectMediaHosts...), extraDirectHosts...)
	return []Rule{
		{Name: "disk", Match: inDir(cacheDir), Backend: BackendDisk},
		{Name: "streaming-service", Match: hostIn(StreamingServiceDomains), Backend: BackendDownloader},
		{Name: "sharing-site", Match: hostIn(SharingDomains), Backend: BackendExtractor},
		{Name: "direct-media", Match: hostIn(direct), Backend: BackendDirect},
	}
}

// inDir matches absolute paths and file:// URIs that resolve inside root.
// Symlinks are followed, so a link in the cache cannot lead out of it.
func inDir(root string) func(string) bool {
	return func(uri string) bool {
		path := strings.TrimPrefix(uri, "file://")
		if root == "" || !filepath.IsAbs(path) {
			return false
		}
		rel, err := filepath.Rel(realPath(root), realPath(path))
		if err != nil || rel == "." {
			return false
		}
		return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
}

// realPath resolves symlinks; a missing file is resolved through its directory
func realPath(p string) string {
	p = filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return p
}

func hostIn(domains []string) func(string) bool {
	return func(uri string) bool {
		u, err := url.Parse(uri)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	}
}

// Chain is the process chain used by the extractor and disk backends
type Chain interface {
	Spawn(ctx context.Context, uri string, extraArgs []string) (*process.Stream, *process.Metadata, error)
	Transcode(ctx context.Context, path string) (*process.Stream, error)
}

// Track is a materialized URI: a decoded f32le stream plus its metadata
type Track struct {
	URI      string
	Backend  Backend
	Metadata track.Metadata
	Stream   io.ReadCloser

	// Followups are further playable paths produced by the same URI, in order.
	Followups []string
}

// Playable wraps the track stream for the player
func (t *Track) Playable() *common.Playable {
	return &common.Playable{
		URI:      t.URI,
		Metadata: t.Metadata,
		Source:   common.NewPCMSource(t.Stream),
	}
}

type materializer interface {
	materialize(ctx context.Context, uri string) (*Track, error)
}

// Dispatcher resolves URIs to backends and materializes them
type Dispatcher struct {
	rules    []Rule
	backends map[Backend]materializer
	logger   pipeline.Logger
	metrics  *pipeline.Metrics
}

// NewDispatcher wires every backend from the engine configuration
func NewDispatcher(config *pipeline.PipelineConfig, chain Chain, client *http.Client, logger pipeline.Logger, metrics *pipeline.Metrics) *Dispatcher {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger = logger.With(pipeline.Component("dispatcher"))

	disk := &diskBackend{chain: chain}
	return &Dispatcher{
		rules: DefaultRules(config.Cache.Dir, config.Direct.Hosts),
		backends: map[Backend]materializer{
			BackendDisk:       disk,
			BackendExtractor:  &extractorBackend{chain: chain},
			BackendDownloader: newDownloaderBackend(config.Downloader, config.Cache.Dir, disk, logger),
			BackendDirect:     newDirectBackend(client, config.Cache, config.Direct, disk, logger),
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Rules returns the ordered rule list
func (d *Dispatcher) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Resolve walks the rules top to bottom and returns the first matching backend
func (d *Dispatcher) Resolve(uri string) (Backend, error) {
	for _, r := range d.rules {
		if r.Match(uri) {
			return r.Backend, nil
		}
	}
	return 0, ErrNoExtractor
}

// Materialize turns a URI into a playable stream. Failures are not retried.
func (d *Dispatcher) Materialize(ctx context.Context, uri string) (*Track, error) {
	backend, err := d.Resolve(uri)
	if err != nil {
		d.logger.Info("no extractor", pipeline.String("uri", uri))
		return nil, err
	}

	t, err := d.backends[backend].materialize(ctx, uri)
	if err != nil {
		d.metrics.RecordMaterializeFailure(backend.String())
		d.logger.Warn("materialize failed",
			pipeline.String("uri", uri),
			pipeline.String("backend", backend.String()),
			pipeline.Error(err))
		return nil, err
	}

	t.Backend = backend
	d.logger.Debug("materialized",
		pipeline.String("uri", uri),
		pipeline.String("backend", backend.String()),
		pipeline.Int("followups", len(t.Followups)))
	return t, nil
}
