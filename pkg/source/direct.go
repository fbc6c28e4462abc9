package source

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// AllowedContentTypes lists the media types the direct backend accepts
var AllowedContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/ogg":   true,
	"audio/opus":  true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/flac":  true,
	"audio/webm":  true,
	"audio/aac":   true,
	"audio/mp4":   true,
}

// directBackend downloads a media file over HTTP and plays it from disk
type directBackend struct {
	client *http.Client
	dir    string
	memo   *cache.Cache
	disk   *diskBackend
	logger pipeline.Logger
}

func newDirectBackend(client *http.Client, cacheConfig pipeline.CacheConfig, direct pipeline.DirectConfig, disk *diskBackend, logger pipeline.Logger) *directBackend {
	if client == nil {
		client = &http.Client{Timeout: direct.Timeout}
	}
	return &directBackend{
		client: client,
		dir:    filepath.Join(cacheConfig.Dir, "direct"),
		memo:   cache.New(cacheConfig.DownloadTTL, cacheConfig.DownloadTTL/2),
		disk:   disk,
		logger: logger.With(pipeline.String("backend", "direct")),
	}
}

func (d *directBackend) materialize(ctx context.Context, uri string) (*Track, error) {
	if cached, ok := d.memo.Get(uri); ok {
		if p := cached.(string); fileExists(p) {
			return d.play(ctx, uri, p)
		}
		d.memo.Delete(uri)
	}

	p, err := d.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	d.memo.SetDefault(uri, p)

	return d.play(ctx, uri, p)
}

func (d *directBackend) play(ctx context.Context, uri, p string) (*Track, error) {
	t, err := d.disk.materialize(ctx, p)
	if err != nil {
		return nil, err
	}
	t.URI = uri
	return t, nil
}

// fetch downloads uri into the cache; nothing is written unless the content
// type is allowed
func (d *directBackend) fetch(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", pipeline.NewPipelineError(errors.Wrapf(err, "fetch %s", uri), pipeline.CategoryNetwork, pipeline.SeverityMedium)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pipeline.NewPipelineError(errors.Errorf("fetch %s: unexpected status %s", uri, resp.Status), pipeline.CategoryNetwork, pipeline.SeverityMedium)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !AllowedContentTypes[strings.ToLower(mediaType)] {
		return "", errors.Wrapf(ErrUnsupportedContent, "%q", resp.Header.Get("Content-Type"))
	}

	name := fileName(resp.Header.Get("Content-Disposition"), req.URL.Path)
	// one directory per URI so equal file names from different URIs never collide
	dir := filepath.Join(d.dir, uuid.NewSHA1(uuid.NameSpaceURL, []byte(uri)).String())

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}
	part, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}

	n, err := io.Copy(part, resp.Body)
	if cerr := part.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part.Name())
		return "", pipeline.NewPipelineError(errors.Wrapf(err, "download %s", uri), pipeline.CategoryNetwork, pipeline.SeverityMedium)
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(part.Name(), target); err != nil {
		os.Remove(part.Name())
		return "", errors.Wrap(err, "store download")
	}

	d.logger.Debug("downloaded",
		pipeline.String("uri", uri),
		pipeline.String("path", target),
		pipeline.Int64("bytes", n))
	return target, nil
}

// fileName prefers the RFC 5987 filename* parameter, then the plain
// filename parameter, then the last URL path segment
func fileName(disposition, urlPath string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			// ParseMediaType decodes filename*=UTF-8''... into "filename"
			if name := safeBase(params["filename"]); name != "" {
				return name
			}
		}
	}
	if name := safeBase(path.Base(urlPath)); name != "" {
		return name
	}
	return "download"
}

func safeBase(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
