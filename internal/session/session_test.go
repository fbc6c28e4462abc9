package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/cron"
	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	frames atomic.Int64
}

func (s *fakeSink) SendOpus(ctx context.Context, frame []byte) error {
	s.frames.Add(1)
	return nil
}

func (s *fakeSink) Speaking(bool) error { return nil }

type fakeVoice struct {
	sink         *fakeSink
	listeners    atomic.Bool
	disconnected atomic.Int32
}

func (v *fakeVoice) Join(guildID, channelID string) (common.OpusSink, func() error, error) {
	return v.sink, func() error { v.disconnected.Add(1); return nil }, nil
}

func (v *fakeVoice) HasListeners(guildID, channelID string) bool { return v.listeners.Load() }

type message struct {
	title, description, file string
	data                     []byte
}

type recorder struct {
	mu       sync.Mutex
	messages []message
}

func (r *recorder) Notify(channelID, title, description string, color int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message{title: title, description: description})
}

func (r *recorder) NotifyFile(channelID, title, description, fileName string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message{title: title, description: description, file: fileName, data: data})
}

func (r *recorder) titled(title string) []message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []message
	for _, m := range r.messages {
		if m.title == title {
			out = append(out, m)
		}
	}
	return out
}

type fakeTrack struct {
	pcm      time.Duration
	duration time.Duration
	err      error
	// stalled is closed when loading starts; the load then hangs until ctx ends
	stalled chan struct{}
}

type fakeDispatcher struct {
	tracks map[string]fakeTrack
}

func (d *fakeDispatcher) Materialize(ctx context.Context, uri string) (*source.Track, error) {
	ft, ok := d.tracks[uri]
	if !ok {
		return nil, source.ErrNoExtractor
	}
	if ft.err != nil {
		return nil, ft.err
	}
	if ft.stalled != nil {
		close(ft.stalled)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	frames := int(ft.pcm.Seconds() * track.SampleRate)
	var pcm bytes.Buffer
	_ = binary.Write(&pcm, binary.LittleEndian, make([]float32, frames*track.Channels))

	return &source.Track{
		URI:      uri,
		Backend:  source.BackendExtractor,
		Metadata: track.Standard(uri, "", "seed-"+uri, ft.duration),
		Stream:   io.NopCloser(&pcm),
	}, nil
}

type harness struct {
	manager  *Manager
	voice    *fakeVoice
	notifier *recorder
	metrics  *pipeline.Metrics
	config   *pipeline.PipelineConfig
}

func newHarness(t *testing.T, tracks map[string]fakeTrack, store database.DatabaseManager) *harness {
	t.Helper()

	config := pipeline.DefaultPipelineConfig()
	config.Playback.CrossfadeDuration = 100 * time.Millisecond
	config.Playback.PreloadLookahead = 50 * time.Millisecond

	scheduler := cron.NewScheduler(nil)
	t.Cleanup(scheduler.Stop)

	h := &harness{
		voice:    &fakeVoice{sink: &fakeSink{}},
		notifier: &recorder{},
		metrics:  pipeline.NewMetrics(nil),
		config:   config,
	}
	h.voice.listeners.Store(true)
	h.manager = NewManager(Options{
		Config:     config,
		Dispatcher: &fakeDispatcher{tracks: tracks},
		Scheduler:  scheduler,
		Voice:      h.voice,
		Notifier:   h.notifier,
		Store:      store,
		Metrics:    h.metrics,
	})
	t.Cleanup(h.manager.Close)
	return h
}

func (h *harness) uri(t *testing.T) string {
	st, err := h.manager.Status("g1")
	require.NoError(t, err)
	return st.URI
}

func TestJoinPlayLeave(t *testing.T) {
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/a": {pcm: 60 * time.Millisecond, duration: 60 * time.Millisecond},
	}, nil)

	qc, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)
	assert.Equal(t, "voice", qc.VoiceChannelID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActiveGuilds))

	again, err := h.manager.Join("g1", "other", "other")
	require.NoError(t, err)
	assert.Same(t, qc, again)

	started, err := h.manager.Enqueue("g1", "https://youtube.com/a")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Len(t, h.notifier.titled("🎵 Now Playing"), 1)

	assert.Eventually(t, func() bool { return h.uri(t) == "" }, 2*time.Second, 10*time.Millisecond)
	assert.Positive(t, h.voice.sink.frames.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TracksStarted))

	require.NoError(t, h.manager.Leave("g1", "test"))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveGuilds))
	assert.Equal(t, int32(1), h.voice.disconnected.Load())

	err = h.manager.Leave("g1", "test")
	assert.ErrorIs(t, err, common.ErrNoVoiceSession)
	assert.Equal(t, pipeline.CategoryVoice, pipeline.Classify(err).Category)
}

func TestControlsWithoutSession(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.manager.Enqueue("g1", "x")
	assert.ErrorIs(t, err, common.ErrNoVoiceSession)
	assert.ErrorIs(t, h.manager.Skip("g1"), common.ErrNoVoiceSession)
	assert.ErrorIs(t, h.manager.SetRadio("g1", true), common.ErrNoVoiceSession)
}

func TestBadMetadataIsAttached(t *testing.T) {
	raw := []byte("WARNING: not json at all\n")
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/bad":  {err: &process.BadMetadataError{Raw: raw, Err: errors.New("invalid character")}},
		"https://youtube.com/good": {pcm: 10 * time.Second, duration: 10 * time.Second},
	}, nil)

	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	started, err := h.manager.Enqueue("g1", "https://youtube.com/bad", "https://youtube.com/good")
	require.NoError(t, err)
	assert.True(t, started)

	bad := h.notifier.titled("❌ Bad Metadata")
	require.Len(t, bad, 1)
	assert.Equal(t, "metadata.txt", bad[0].file)
	assert.Equal(t, raw, bad[0].data)
	assert.Equal(t, "https://youtube.com/good", h.uri(t))
}

func TestBatchHaltNotifies(t *testing.T) {
	h := newHarness(t, map[string]fakeTrack{}, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	started, err := h.manager.Enqueue("g1", "gopher://1", "gopher://2", "gopher://3", "gopher://4", "gopher://5")
	require.NoError(t, err)
	assert.False(t, started)

	assert.Len(t, h.notifier.titled("🚫 Unsupported"), 4)
	halted := h.notifier.titled("⏹️ Playback Stopped")
	require.Len(t, halted, 1)
	assert.Contains(t, halted[0].description, "gopher://4")

	st, err := h.manager.Status("g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"gopher://5"}, st.Pending)
}

func TestSkip(t *testing.T) {
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/a": {pcm: 10 * time.Second, duration: 10 * time.Second},
		"https://youtube.com/b": {pcm: 10 * time.Second, duration: 10 * time.Second},
	}, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	_, err = h.manager.Enqueue("g1", "https://youtube.com/a", "https://youtube.com/b")
	require.NoError(t, err)
	require.Equal(t, "https://youtube.com/a", h.uri(t))

	require.NoError(t, h.manager.Skip("g1"))
	assert.Eventually(t, func() bool { return h.uri(t) == "https://youtube.com/b" }, 2*time.Second, 5*time.Millisecond)

	st, err := h.manager.Status("g1")
	require.NoError(t, err)
	require.Len(t, st.History, 2)
	assert.Equal(t, track.Skipped, st.History[0].EndReason)
	assert.Equal(t, track.Unmarked, st.History[1].EndReason)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/a": {pcm: 10 * time.Second, duration: 10 * time.Second},
	}, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	assert.ErrorIs(t, h.manager.Pause("g1", true), ErrNothingPlaying)

	_, err = h.manager.Enqueue("g1", "https://youtube.com/a")
	require.NoError(t, err)

	require.NoError(t, h.manager.Pause("g1", true))
	st, err := h.manager.Status("g1")
	require.NoError(t, err)
	assert.True(t, st.Paused)

	require.NoError(t, h.manager.Pause("g1", false))
	st, err = h.manager.Status("g1")
	require.NoError(t, err)
	assert.False(t, st.Paused)
}

func TestCrossfadeSwap(t *testing.T) {
	h := newHarness(t, map[string]fakeTrack{
		// reported shorter than the audio so the fade starts before a natural end
		"https://youtube.com/a": {pcm: 5 * time.Second, duration: 300 * time.Millisecond},
		"https://youtube.com/b": {pcm: 10 * time.Second, duration: 10 * time.Second},
	}, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)
	require.NoError(t, h.manager.SetCrossfade("g1", true))

	_, err = h.manager.Enqueue("g1", "https://youtube.com/a", "https://youtube.com/b")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.uri(t) == "https://youtube.com/b" }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		st, _ := h.manager.Status("g1")
		return !st.Fading
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Crossfades))
	assert.Len(t, h.notifier.titled("🎵 Now Playing"), 2)

	st, err := h.manager.Status("g1")
	require.NoError(t, err)
	require.Len(t, st.History, 2)
	assert.Equal(t, track.Finished, st.History[0].EndReason)
}

func TestHeartbeatLeavesEmptyChannel(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	g, ok := h.manager.Get("g1")
	require.True(t, ok)

	g.heartbeat()
	_, ok = h.manager.Get("g1")
	assert.True(t, ok, "listeners present")

	h.voice.listeners.Store(false)
	g.heartbeat()
	_, ok = h.manager.Get("g1")
	assert.False(t, ok)
	assert.Len(t, h.notifier.titled("👋 Left Voice"), 1)
	assert.Equal(t, int32(1), h.voice.disconnected.Load())
}

func TestColdQueueSurvivesLeave(t *testing.T) {
	store, err := database.NewDatabaseManager(database.DefaultDatabaseConfig(filepath.Join(t.TempDir(), "q.db")), nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })

	h := newHarness(t, nil, store)
	qc, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)
	qc.Queue.Push("https://youtube.com/a", "https://youtube.com/b")
	qc.Queue.SetCrossfade(true)

	require.NoError(t, h.manager.Leave("g1", "test"))

	qc, err = h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtube.com/a", "https://youtube.com/b"}, qc.Queue.Pending())
	assert.True(t, qc.Queue.CrossfadeEnabled())
}

func TestLeaveWhileTrackIsLoading(t *testing.T) {
	store, err := database.NewDatabaseManager(database.DefaultDatabaseConfig(filepath.Join(t.TempDir(), "q.db")), nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })

	stalled := make(chan struct{})
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/slow": {stalled: stalled},
	}, store)
	_, err = h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	enqueued := make(chan bool, 1)
	go func() {
		started, _ := h.manager.Enqueue("g1", "https://youtube.com/slow")
		enqueued <- started
	}()
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("track never started loading")
	}

	left := make(chan error, 1)
	go func() { left <- h.manager.Leave("g1", "test") }()
	select {
	case err := <-left:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("leave blocked behind a loading track")
	}

	select {
	case started := <-enqueued:
		assert.False(t, started)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue never returned")
	}
	assert.Equal(t, int32(1), h.voice.disconnected.Load())
	assert.Empty(t, h.notifier.titled("🎵 Now Playing"))
	assert.Empty(t, h.notifier.titled("❌ Failed To Play"))

	// the aborted track is kept in the cold queue
	qc, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtube.com/slow"}, qc.Queue.Pending())
}

func TestControlsDuringSlowPreload(t *testing.T) {
	stalled := make(chan struct{})
	h := newHarness(t, map[string]fakeTrack{
		"https://youtube.com/a":    {pcm: 5 * time.Second, duration: 100 * time.Millisecond},
		"https://youtube.com/slow": {stalled: stalled},
	}, nil)
	_, err := h.manager.Join("g1", "text", "voice")
	require.NoError(t, err)

	started, err := h.manager.Enqueue("g1", "https://youtube.com/a", "https://youtube.com/slow")
	require.NoError(t, err)
	require.True(t, started)

	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("preload never started")
	}

	paused := make(chan error, 1)
	go func() { paused <- h.manager.Pause("g1", true) }()
	select {
	case err := <-paused:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pause blocked behind a running preload")
	}

	require.NoError(t, h.manager.Leave("g1", "test"))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "_empty_", Describe(nil, 5))
	assert.Equal(t, "1. a\n2. b\n", Describe([]string{"a", "b"}, 5))
	assert.Equal(t, "1. a\n…and 2 more", Describe([]string{"a", "b", "c"}, 1))
}
