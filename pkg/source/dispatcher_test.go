package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passthrough = `#!/bin/sh
in=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-i" ]; then shift; in="$1"; fi
	shift
done
if [ "$in" = "pipe:0" ]; then exec cat; fi
exec cat "$in"
`

type fixture struct {
	config     *pipeline.PipelineConfig
	dispatcher *Dispatcher
	client     *http.Client
}

func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func newFixture(t *testing.T, decoder, downloader string) *fixture {
	t.Helper()
	bin := t.TempDir()

	config := pipeline.DefaultPipelineConfig()
	config.Cache.Dir = t.TempDir()
	config.Pipe.PollInterval = time.Millisecond
	config.Transcoder = pipeline.TranscodeConfig{BinaryPath: script(t, bin, "transcoder", passthrough)}
	if decoder != "" {
		config.Decoder = pipeline.CommandConfig{BinaryPath: script(t, bin, "decoder", decoder)}
	}
	if downloader != "" {
		config.Downloader = pipeline.CommandConfig{BinaryPath: script(t, bin, "downloader", downloader)}
	}
	config.Direct.Hosts = []string{"files.example.net"}

	client := &http.Client{}
	chain := process.NewChain(config, pipeline.NullLogger(), nil)
	return &fixture{
		config:     config,
		dispatcher: NewDispatcher(config, chain, client, pipeline.NullLogger(), nil),
		client:     client,
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestResolveRules(t *testing.T) {
	f := newFixture(t, "", "")
	d := f.dispatcher
	cache := f.config.Cache.Dir

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(cache, "escape")))

	tests := []struct {
		uri     string
		backend Backend
		err     error
	}{
		{filepath.Join(cache, "direct", "song.mp3"), BackendDisk, nil},
		{"file://" + filepath.Join(cache, "album", "01.flac"), BackendDisk, nil},
		{"/etc/passwd", 0, ErrNoExtractor},
		{"file:///etc/passwd", 0, ErrNoExtractor},
		{"/srv/music/song.mp3", 0, ErrNoExtractor},
		{cache + "/../passwd", 0, ErrNoExtractor},
		{cache, 0, ErrNoExtractor},
		{filepath.Join(cache, "escape", "secret.mp3"), 0, ErrNoExtractor},
		{filepath.Join(outside, "secret.mp3"), 0, ErrNoExtractor},
		{"https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy", BackendDownloader, nil},
		{"https://www.deezer.com/track/3135556", BackendDownloader, nil},
		{"https://listen.tidal.com/album/1", BackendDownloader, nil},
		{"https://music.apple.com/us/album/x/1", BackendDownloader, nil},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", BackendExtractor, nil},
		{"https://youtu.be/dQw4w9WgXcQ", BackendExtractor, nil},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", BackendExtractor, nil},
		{"https://soundcloud.com/a/b", BackendExtractor, nil},
		{"https://artist.bandcamp.com/track/x", BackendExtractor, nil},
		{"https://vimeo.com/1", BackendExtractor, nil},
		{"https://www.twitch.tv/x", BackendExtractor, nil},
		{"https://cdn.discordapp.com/attachments/1/2/a.mp3", BackendDirect, nil},
		{"https://media.discordapp.net/attachments/1/2/a.ogg", BackendDirect, nil},
		{"https://files.example.net/a.wav", BackendDirect, nil},
		{"https://example.com/a.mp3", 0, ErrNoExtractor},
		{"https://notyoutube.com/watch?v=x", 0, ErrNoExtractor},
		{"relative/path.mp3", 0, ErrNoExtractor},
		{"ftp://cdn.discordapp.com/a.mp3", 0, ErrNoExtractor},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			backend, err := d.Resolve(tt.uri)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, backend)
		})
	}
}

func TestRulesAreOrderedAndDisjoint(t *testing.T) {
	f := newFixture(t, "", "")
	rules := f.dispatcher.Rules()
	require.Len(t, rules, 4)
	assert.Equal(t, []string{"disk", "streaming-service", "sharing-site", "direct-media"},
		[]string{rules[0].Name, rules[1].Name, rules[2].Name, rules[3].Name})

	samples := []string{
		filepath.Join(f.config.Cache.Dir, "a.mp3"),
		"https://open.spotify.com/track/1",
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"https://cdn.discordapp.com/a.mp3",
	}
	for _, uri := range samples {
		matches := 0
		for _, r := range rules {
			if r.Match(uri) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, uri)
	}
}

func TestMaterializeExtractor(t *testing.T) {
	f := newFixture(t, `#!/bin/sh
echo '{"duration": 3, "title": "Never", "artist": "Rick"}' >&2
printf 'PCM'
`, "")

	tr, err := f.dispatcher.Materialize(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, BackendExtractor, tr.Backend)
	assert.Equal(t, track.KindStandard, tr.Metadata.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", tr.Metadata.SeedID())
	assert.Equal(t, 3*time.Second, tr.Metadata.Duration)
	assert.Equal(t, "PCM", readAll(t, tr.Stream))
}

func TestMaterializeNoExtractor(t *testing.T) {
	_, err := newFixture(t, "", "").dispatcher.Materialize(context.Background(), "https://example.com/x")
	assert.ErrorIs(t, err, ErrNoExtractor)
	assert.Equal(t, pipeline.CategoryContent, pipeline.Classify(err).Category)
}

func TestMaterializeDisk(t *testing.T) {
	f := newFixture(t, "", "")
	p := filepath.Join(f.config.Cache.Dir, "07 - Local Song.flac")
	require.NoError(t, os.WriteFile(p, []byte("FLACDATA"), 0o644))

	tr, err := f.dispatcher.Materialize(context.Background(), "file://"+p)
	require.NoError(t, err)

	assert.Equal(t, track.KindDiskPath, tr.Metadata.Kind)
	assert.Equal(t, p, tr.Metadata.Path)
	assert.Equal(t, "07 - Local Song", tr.Metadata.Title)
	assert.Empty(t, tr.Metadata.SeedID())
	assert.Equal(t, "FLACDATA", readAll(t, tr.Stream))

	_, err = f.dispatcher.Materialize(context.Background(), filepath.Join(f.config.Cache.Dir, "missing.mp3"))
	assert.Error(t, err)

	outside := filepath.Join(t.TempDir(), "host.flac")
	require.NoError(t, os.WriteFile(outside, []byte("HOST"), 0o644))
	_, err = f.dispatcher.Materialize(context.Background(), outside)
	assert.ErrorIs(t, err, ErrNoExtractor)
}

func TestDirectRejectsUnsupportedContent(t *testing.T) {
	f := newFixture(t, "", "")
	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	uri := "https://cdn.discordapp.com/attachments/1/2/page"
	httpmock.RegisterResponder(http.MethodGet, uri, func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, "<html><body>not audio</body></html>")
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	})

	tr, err := f.dispatcher.Materialize(context.Background(), uri)
	assert.Nil(t, tr)
	assert.ErrorIs(t, err, ErrUnsupportedContent)
	assert.False(t, pipeline.Classify(err).Retryable)

	var files []string
	require.NoError(t, filepath.Walk(f.config.Cache.Dir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return err
	}))
	assert.Empty(t, files, "rejected content must not be written")
}

func TestDirectDownloadsAndMemoizes(t *testing.T) {
	f := newFixture(t, "", "")
	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	uri := "https://cdn.discordapp.com/attachments/1/2/abc123"
	httpmock.RegisterResponder(http.MethodGet, uri, func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, "OGGDATA")
		resp.Header.Set("Content-Type", "audio/ogg")
		resp.Header.Set("Content-Disposition", `attachment; filename*=UTF-8''caf%C3%A9%20song.ogg`)
		return resp, nil
	})

	tr, err := f.dispatcher.Materialize(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, BackendDirect, tr.Backend)
	assert.Equal(t, uri, tr.URI)
	assert.Equal(t, "café song.ogg", filepath.Base(tr.Metadata.Path))
	assert.Equal(t, "OGGDATA", readAll(t, tr.Stream))

	again, err := f.dispatcher.Materialize(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, "OGGDATA", readAll(t, again.Stream))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDirectSameFileNameDifferentURIs(t *testing.T) {
	f := newFixture(t, "", "")
	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	bodies := map[string]string{
		"https://cdn.discordapp.com/attachments/1/1/a": "FIRST",
		"https://cdn.discordapp.com/attachments/2/2/b": "SECOND",
	}
	for uri, body := range bodies {
		body := body
		httpmock.RegisterResponder(http.MethodGet, uri, func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusOK, body)
			resp.Header.Set("Content-Type", "audio/mpeg")
			resp.Header.Set("Content-Disposition", `attachment; filename="voice-message.mp3"`)
			return resp, nil
		})
	}

	first, err := f.dispatcher.Materialize(context.Background(), "https://cdn.discordapp.com/attachments/1/1/a")
	require.NoError(t, err)
	assert.Equal(t, "FIRST", readAll(t, first.Stream))

	second, err := f.dispatcher.Materialize(context.Background(), "https://cdn.discordapp.com/attachments/2/2/b")
	require.NoError(t, err)
	assert.Equal(t, "SECOND", readAll(t, second.Stream))
	assert.NotEqual(t, first.Metadata.Path, second.Metadata.Path)
	assert.Equal(t, "voice-message.mp3", filepath.Base(second.Metadata.Path))

	// the memo of the first URI still plays its own file
	again, err := f.dispatcher.Materialize(context.Background(), "https://cdn.discordapp.com/attachments/1/1/a")
	require.NoError(t, err)
	assert.Equal(t, "FIRST", readAll(t, again.Stream))
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestDirectHTTPError(t *testing.T) {
	f := newFixture(t, "", "")
	httpmock.ActivateNonDefault(f.client)
	defer httpmock.DeactivateAndReset()

	uri := "https://cdn.discordapp.com/attachments/gone.mp3"
	httpmock.RegisterResponder(http.MethodGet, uri, httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	_, err := f.dispatcher.Materialize(context.Background(), uri)
	require.Error(t, err)
	assert.Equal(t, pipeline.CategoryNetwork, pipeline.Classify(err).Category)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		urlPath     string
		want        string
	}{
		{"extended parameter", `attachment; filename*=UTF-8''track%201.mp3`, "/x/y", "track 1.mp3"},
		{"plain parameter", `attachment; filename="plain.wav"`, "/x/y", "plain.wav"},
		{"traversal stripped", `attachment; filename="../../etc/passwd"`, "/x/y", "passwd"},
		{"url fallback", "", "/attachments/1/2/song.opus", "song.opus"},
		{"nothing usable", "", "/", "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fileName(tt.disposition, tt.urlPath))
		})
	}
}

func TestMaterializeDownloader(t *testing.T) {
	f := newFixture(t, "", `#!/bin/sh
out="$2"
printf 'SECOND' > "$out/02 - b.mp3"
printf 'FIRST' > "$out/01 - a.mp3"
printf 'THIRD' > "$out/intro.mp3"
echo '{"file": "01 - a.mp3", "title": "A Song", "artist": "X", "isrc": "USRC17607839"}'
`)

	uri := "https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy"
	tr, err := f.dispatcher.Materialize(context.Background(), uri)
	require.NoError(t, err)

	assert.Equal(t, BackendDownloader, tr.Backend)
	assert.Equal(t, uri, tr.URI)
	assert.Equal(t, track.KindSourceSpecific, tr.Metadata.Kind)
	assert.Equal(t, "USRC17607839", tr.Metadata.ISRC)
	assert.Equal(t, "A Song", tr.Metadata.Title)
	assert.Equal(t, "FIRST", readAll(t, tr.Stream))

	require.Len(t, tr.Followups, 2)
	assert.Equal(t, "02 - b.mp3", filepath.Base(tr.Followups[0]))
	assert.Equal(t, "intro.mp3", filepath.Base(tr.Followups[1]))
	for _, p := range tr.Followups {
		assert.FileExists(t, p)
		backend, err := f.dispatcher.Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, BackendDisk, backend)
	}
}

func TestMaterializeDownloaderFailure(t *testing.T) {
	f := newFixture(t, "", "#!/bin/sh\necho 'region locked' >&2\nexit 3\n")

	_, err := f.dispatcher.Materialize(context.Background(), "https://www.deezer.com/track/1")
	require.Error(t, err)
	assert.Equal(t, pipeline.CategoryProcess, pipeline.Classify(err).Category)

	f = newFixture(t, "", "#!/bin/sh\nexit 0\n")
	_, err = f.dispatcher.Materialize(context.Background(), "https://www.deezer.com/track/1")
	assert.True(t, errors.Is(err, ErrEmptyDownload))
}

func TestOrderByIndex(t *testing.T) {
	assert.Equal(t,
		[]string{"1.w.mp3", "2 y.mp3", "z.mp3", "10-x.mp3"},
		orderByIndex([]string{"10-x.mp3", "2 y.mp3", "z.mp3", "1.w.mp3"}))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "https_open.spotify.com_album_1", sanitize("https://open.spotify.com/album/1"))
	assert.Equal(t, "_", sanitize(""))
}
