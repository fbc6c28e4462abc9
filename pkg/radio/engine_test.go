package radio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	fail      map[string]bool
	followups map[string][]string
	calls     []string
}

func (f *fakeDispatcher) Materialize(ctx context.Context, uri string) (*source.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, uri)
	if f.fail[uri] {
		return nil, errors.New("extractor exploded")
	}

	var pcm bytes.Buffer
	for i := 0; i < 4800; i++ { // 100ms of silence
		_ = binary.Write(&pcm, binary.LittleEndian, [2]float32{})
	}
	return &source.Track{
		URI:      uri,
		Metadata:  track.Standard("radio "+uri, "", "", 0),
		Stream:    io.NopCloser(&pcm),
		Followups: f.followups[uri],
	}, nil
}

type fakeQueue struct {
	radio   []string
	history []track.Record
}

func (q *fakeQueue) PopRadio() (string, bool) {
	if len(q.radio) == 0 {
		return "", false
	}
	uri := q.radio[0]
	q.radio = q.radio[1:]
	return uri, true
}

func (q *fakeQueue) PushRadioFront(uris ...string) {
	q.radio = append(append([]string(nil), uris...), q.radio...)
}

func (q *fakeQueue) SetRadioQueue(uris []string) { q.radio = uris }
func (q *fakeQueue) History() []track.Record   { return q.history }

// recommender writes its arguments to argsFile and prints the given lines
func newEngine(t *testing.T, output string, d Materializer) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	body := "#!/bin/sh\necho \"$@\" >> " + argsFile + "\nprintf '" + output + "'\n"
	bin := filepath.Join(dir, "recommend")
	require.NoError(t, os.WriteFile(bin, []byte(body), 0o755))

	config := pipeline.DefaultPipelineConfig()
	config.Recommender = pipeline.CommandConfig{BinaryPath: bin}
	config.Playback.RadioLimit = 7
	return NewEngine(config, d, nil, nil), argsFile
}

func history() []track.Record {
	return []track.Record{
		{Metadata: track.Standard("a", "", "seed-a", 0), EndReason: track.Finished},
		{Metadata: track.Standard("b", "", "seed-b", 0), EndReason: track.Skipped},
		{Metadata: track.DiskPath("/c.mp3", "c", 0), EndReason: track.Finished},
		{Metadata: track.Standard("d", "", "seed-d", 0), EndReason: track.Unmarked},
	}
}

func invocations(t *testing.T, argsFile string) []string {
	data, err := os.ReadFile(argsFile)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestReseedFiltersAndDeduplicates(t *testing.T) {
	engine, argsFile := newEngine(t, `https://youtu.be/one\n\nhttps://youtu.be/two\nhttps://youtu.be/one\n  \nhttps://youtu.be/three\n`, &fakeDispatcher{})

	uris, err := engine.Reseed(context.Background(), history())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtu.be/one", "https://youtu.be/two", "https://youtu.be/three"}, uris)
	assert.Equal(t, []string{"--limit 7 seed-a seed-d"}, invocations(t, argsFile))
}

func TestReseedWithoutSeedsSkipsRecommender(t *testing.T) {
	engine, argsFile := newEngine(t, `x\n`, &fakeDispatcher{})

	uris, err := engine.Reseed(context.Background(), []track.Record{
		{Metadata: track.Standard("b", "", "seed-b", 0), EndReason: track.Skipped},
		{Metadata: track.DiskPath("/c.mp3", "c", 0)},
	})
	require.NoError(t, err)
	assert.Empty(t, uris)
	assert.Empty(t, invocations(t, argsFile))
}

func TestReseedIsMemoizedPerSeedSet(t *testing.T) {
	engine, argsFile := newEngine(t, `https://youtu.be/one\n`, &fakeDispatcher{})

	for i := 0; i < 3; i++ {
		uris, err := engine.Reseed(context.Background(), history())
		require.NoError(t, err)
		assert.Equal(t, []string{"https://youtu.be/one"}, uris)
	}
	assert.Len(t, invocations(t, argsFile), 1)
}

func TestPreloadOneReseedsEmptyQueue(t *testing.T) {
	d := &fakeDispatcher{}
	engine, _ := newEngine(t, `https://youtu.be/one\nhttps://youtu.be/two\n`, d)
	q := &fakeQueue{history: history()}

	p, err := engine.PreloadOne(context.Background(), q)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "https://youtu.be/one", p.URI)
	require.NotNil(t, p.Compressed)
	assert.Equal(t, 5, p.Compressed.Frames())
	assert.Equal(t, 100*time.Millisecond, p.Metadata.Duration)
	assert.Equal(t, []string{"https://youtu.be/two"}, q.radio)
}

func TestPreloadOneRetriesDifferentURIs(t *testing.T) {
	d := &fakeDispatcher{fail: map[string]bool{"u1": true, "u2": true, "u3": true}}
	engine, _ := newEngine(t, ``, d)
	q := &fakeQueue{radio: []string{"u1", "u2", "u3", "u4", "u5"}}

	p, err := engine.PreloadOne(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "u4", p.URI)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, d.calls)
}

func TestPreloadOneQueuesFollowups(t *testing.T) {
	d := &fakeDispatcher{followups: map[string][]string{
		"https://open.spotify.com/album/1": {"/cache/album/02.mp3", "/cache/album/03.mp3"},
	}}
	engine, _ := newEngine(t, ``, d)
	q := &fakeQueue{radio: []string{"https://open.spotify.com/album/1", "u2"}}

	p, err := engine.PreloadOne(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/album/1", p.URI)
	assert.Equal(t, []string{"/cache/album/02.mp3", "/cache/album/03.mp3", "u2"}, q.radio)
}

func TestPreloadOneGivesUpAfterFiveAttempts(t *testing.T) {
	fail := map[string]bool{}
	radio := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, u := range radio {
		fail[u] = true
	}
	d := &fakeDispatcher{fail: fail}
	engine, _ := newEngine(t, ``, d)
	q := &fakeQueue{radio: radio}

	_, err := engine.PreloadOne(context.Background(), q)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, "u5", exhausted.LastURI)
	assert.Len(t, d.calls, 5)
	assert.Equal(t, []string{"u6"}, q.radio)
}

func TestPreloadOneWithNothingToPlay(t *testing.T) {
	engine, _ := newEngine(t, ``, &fakeDispatcher{})

	_, err := engine.PreloadOne(context.Background(), &fakeQueue{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}
