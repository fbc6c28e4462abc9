package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/pkg/errors"
)

// sidecar is an optional JSON line the downloader prints per file
type sidecar struct {
	File   string `json:"file"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	ISRC   string `json:"isrc"`
}

// downloaderBackend runs a bulk downloader and plays the resulting files in order
type downloaderBackend struct {
	cmd      pipeline.CommandConfig
	cacheDir string
	disk     *diskBackend
	logger   pipeline.Logger
}

func newDownloaderBackend(cmd pipeline.CommandConfig, cacheDir string, disk *diskBackend, logger pipeline.Logger) *downloaderBackend {
	return &downloaderBackend{
		cmd:      cmd,
		cacheDir: cacheDir,
		disk:     disk,
		logger:   logger.With(pipeline.String("backend", "downloader")),
	}
}

func (d *downloaderBackend) materialize(ctx context.Context, uri string) (*Track, error) {
	paths, sidecars, err := d.download(ctx, uri)
	if err != nil {
		return nil, err
	}

	t, err := d.disk.materialize(ctx, paths[0])
	if err != nil {
		return nil, err
	}

	if sc, ok := sidecars[filepath.Base(paths[0])]; ok && sc.ISRC != "" {
		title := sc.Title
		if title == "" {
			title = t.Metadata.Title
		}
		t.Metadata = track.SourceSpecific(title, sc.Artist, sc.ISRC, t.Metadata.Duration)
	}

	t.URI = uri
	t.Followups = paths[1:]
	return t, nil
}

// download runs `<bin> [args] --output <tmp> <uri>` and moves the files into
// the cache in track order
func (d *downloaderBackend) download(ctx context.Context, uri string) ([]string, map[string]sidecar, error) {
	if d.cmd.BinaryPath == "" {
		return nil, nil, pipeline.NewPipelineError(errors.New("downloader not configured"), pipeline.CategoryProcess, pipeline.SeverityMedium)
	}

	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create cache dir")
	}
	tmp, err := os.MkdirTemp(d.cacheDir, ".download-*")
	if err != nil {
		return nil, nil, errors.Wrap(err, "create download dir")
	}
	defer os.RemoveAll(tmp)

	args := make([]string, 0, len(d.cmd.Args)+3)
	args = append(args, d.cmd.Args...)
	args = append(args, "--output", tmp, uri)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.cmd.BinaryPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		d.logger.Warn("downloader failed",
			pipeline.String("uri", uri),
			pipeline.String("stderr", tail(stderr.Bytes(), 512)),
			pipeline.Error(err))
		return nil, nil, pipeline.NewPipelineError(errors.Wrapf(err, "download %s", uri), pipeline.CategoryProcess, pipeline.SeverityMedium)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read download dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil, errors.Wrap(ErrEmptyDownload, uri)
	}

	dest := filepath.Join(d.cacheDir, sanitize(uri))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create track dir")
	}

	ordered := orderByIndex(names)
	paths := make([]string, 0, len(ordered))
	for _, name := range ordered {
		target := filepath.Join(dest, name)
		if err := os.Rename(filepath.Join(tmp, name), target); err != nil {
			return nil, nil, errors.Wrapf(err, "move %s", name)
		}
		paths = append(paths, target)
	}

	d.logger.Info("download complete",
		pipeline.String("uri", uri),
		pipeline.Int("files", len(paths)))

	return paths, parseSidecars(stdout.Bytes()), nil
}

var indexPrefix = regexp.MustCompile(`^(\d+)[ ._\-]`)

// orderByIndex sorts file names by their leading track number. Names without
// one take their position in the listing.
func orderByIndex(names []string) []string {
	type indexed struct {
		name  string
		index int
	}

	items := make([]indexed, len(names))
	for i, name := range names {
		idx := i
		if m := indexPrefix.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				idx = n
			}
		}
		items[i] = indexed{name: name, index: idx}
	}

	sort.SliceStable(items, func(a, b int) bool { return items[a].index < items[b].index })

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out
}

func parseSidecars(out []byte) map[string]sidecar {
	result := make(map[string]sidecar)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var sc sidecar
		if err := json.Unmarshal(scanner.Bytes(), &sc); err != nil || sc.File == "" {
			continue
		}
		result[filepath.Base(sc.File)] = sc
	}
	return result
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitize turns a URI into a stable directory name
func sanitize(uri string) string {
	name := unsafeChars.ReplaceAllString(uri, "_")
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(bytes.TrimSpace(b))
}
