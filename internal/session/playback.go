package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/radio"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

// Status is a point-in-time view of a guild's playback
type Status struct {
	NowPlaying *track.Metadata
	URI        string
	Position   time.Duration
	Remaining  time.Duration
	Paused     bool
	Fading     bool
	Pending    []string
	History    []track.Record
	Radio      bool
	Crossfade  bool
}

// Enqueue appends URIs to a guild's queue and starts playback when idle.
// It reports whether a track started.
func (m *Manager) Enqueue(guildID string, uris ...string) (bool, error) {
	g, err := m.mustGet(guildID)
	if err != nil {
		return false, err
	}

	g.ctx.Queue.Push(uris...)
	return g.kick(), nil
}

// kick advances when nothing is playing
func (g *Guild) kick() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.playing() {
		return false
	}
	return g.advance()
}

func (g *Guild) playing() bool {
	h := g.ctx.Queue.Current()
	return h != nil && !h.Finished()
}

// advance starts the next track. Callers hold g.mu.
func (g *Guild) advance() bool {
	q := g.ctx.Queue

	p, err := q.Next(g.runCtx)
	if err != nil {
		if g.runCtx.Err() != nil {
			return false
		}
		g.logger.Warn("no next track", pipeline.Error(err))
		if errors.Is(err, radio.ErrNoCandidates) {
			g.manager.notifier.Notify(g.ctx.TextChannelID, "📻 Radio",
				"Radio has nothing to play yet. Queue a track to seed it.", ColorWarning)
		} else {
			g.reportError("next track", err)
		}
		g.idle()
		return false
	}
	if p == nil {
		g.idle()
		return false
	}

	h := g.player.Play(p, 1)
	q.SetCurrent(h)
	g.started(h)
	return true
}

// started does the bookkeeping of a track that became current
func (g *Guild) started(h *common.Handle) {
	md := h.Metadata()
	g.logger.Info("now playing",
		pipeline.String("uri", h.URI()),
		pipeline.String("title", md.DisplayTitle()),
		pipeline.Duration("duration", md.Duration))

	go g.watch(h)
	g.scheduleTrackTimers(h)
	g.recordPlay(h)

	if g.manager.presence != nil {
		g.manager.presence.UpdateMusicPresence(md.DisplayTitle())
	}

	desc := fmt.Sprintf("**%s**", md.DisplayTitle())
	if md.Artist != "" {
		desc += " by " + md.Artist
	}
	if md.Duration > 0 {
		desc += fmt.Sprintf(" (%s)", md.Duration.Round(time.Second))
	}
	g.manager.notifier.Notify(g.ctx.TextChannelID, "🎵 Now Playing", desc, ColorInfo)
}

func (g *Guild) idle() {
	if g.manager.presence != nil {
		g.manager.presence.ClearMusicPresence()
	}
}

func (g *Guild) recordPlay(h *common.Handle) {
	store := g.manager.store
	if store == nil {
		return
	}

	md := h.Metadata()
	ctx, cancel := context.WithTimeout(g.runCtx, 2*time.Second)
	defer cancel()

	err := store.Plays().Record(ctx, &database.Play{
		GuildID:   g.ctx.GuildID,
		URI:       h.URI(),
		Title:     md.DisplayTitle(),
		Artist:    md.Artist,
		SeedID:    md.SeedID(),
		StartedAt: time.Now(),
	})
	if err != nil {
		g.logger.Debug("play not logged", pipeline.Error(err))
	}
}

// watch waits for a handle's end event
func (g *Guild) watch(h *common.Handle) {
	select {
	case <-h.Done():
		g.trackEnded(h)
	case <-g.runCtx.Done():
	}
}

// trackEnded handles an end event. Ends of handles that are no longer
// current are ignored; that covers the faded-out side of a crossfade.
func (g *Guild) trackEnded(h *common.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q := g.ctx.Queue
	if g.closed || q.Current() != h {
		return
	}
	if err := h.Err(); err != nil {
		g.logger.Warn("track ended with error", pipeline.String("uri", h.URI()), pipeline.Error(err))
		g.reportError(h.URI(), err)
	}

	if q.CrossfadeIncoming() != nil {
		g.completeFade()
		return
	}

	g.cancelTrackTimers()
	g.advance()
}

// scheduleTrackTimers arms the preload and crossfade timers of the current track
func (g *Guild) scheduleTrackTimers(h *common.Handle) {
	remaining := h.Remaining()
	if remaining <= 0 {
		// unknown length: preload right away so the next track is ready
		g.manager.scheduler.After(g.ctx.GuildID, JobPreload, 0, g.preload)
		return
	}

	cfg := g.manager.config.Playback
	g.manager.scheduler.After(g.ctx.GuildID, JobPreload, nonNegative(remaining-cfg.PreloadLookahead), g.preload)

	if g.ctx.Queue.CrossfadeEnabled() {
		g.manager.scheduler.After(g.ctx.GuildID, JobCrossfadeStart, nonNegative(remaining-cfg.CrossfadeDuration), g.startCrossfade)
	}
}

func (g *Guild) cancelTrackTimers() {
	s := g.manager.scheduler
	s.Cancel(g.ctx.GuildID, JobPreload)
	s.Cancel(g.ctx.GuildID, JobCrossfadeStart)
	s.Cancel(g.ctx.GuildID, JobCrossfade)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// preload fills the next slot ahead of the track end. g.mu is not held
// during the load; the queue orders it against Next.
func (g *Guild) preload() {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}

	err := g.ctx.Queue.Preload(g.runCtx)
	switch {
	case err == nil:
	case g.runCtx.Err() != nil:
	case errors.Is(err, radio.ErrNoCandidates):
		g.logger.Debug("radio has no candidates")
	default:
		g.logger.Warn("preload failed", pipeline.Error(err))
		g.reportError("preload", err)
	}
}

// startCrossfade begins ticking the fade into the next track
func (g *Guild) startCrossfade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armCrossfade()
}

// armCrossfade registers the fade ticker. Callers hold g.mu.
func (g *Guild) armCrossfade() {
	if g.closed || !g.ctx.Queue.CrossfadeEnabled() || !g.playing() {
		return
	}

	interval := g.fade.Envelope.Interval(g.manager.config.Playback.CrossfadeDuration)
	g.manager.scheduler.Tick(g.ctx.GuildID, JobCrossfade, interval, g.tickCrossfade)
}

func (g *Guild) tickCrossfade() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return true
	}

	done, err := g.fade.Tick(g.runCtx)
	if err != nil && g.runCtx.Err() == nil {
		g.logger.Warn("crossfade tick failed", pipeline.Error(err))
		if pipeline.Classify(err).Category != pipeline.CategoryInvariant {
			g.reportError("crossfade", err)
		}
	}
	return done
}

// swapped is called by the crossfade controller once the incoming track took over
func (g *Guild) swapped(h *common.Handle) {
	g.manager.scheduler.Cancel(g.ctx.GuildID, JobPreload)
	g.manager.scheduler.Cancel(g.ctx.GuildID, JobCrossfadeStart)
	g.started(h)
}

// completeFade jumps straight to the end of a running fade. Callers hold g.mu.
func (g *Guild) completeFade() {
	q := g.ctx.Queue
	g.manager.scheduler.Cancel(g.ctx.GuildID, JobCrossfade)

	out := q.CrossfadeOutgoing()
	in := q.PromoteIncoming()
	in.SetVolume(1)
	g.manager.metrics.IncCrossfades()
	g.swapped(in)
	if out != nil {
		out.Stop()
	}
}

// Skip ends the current track; the next one starts through the normal
// track-end path. During a fade the incoming track takes over at once.
func (m *Manager) Skip(guildID string) error {
	g, err := m.mustGet(guildID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	q := g.ctx.Queue
	if q.CrossfadeIncoming() != nil {
		g.completeFade()
		g.mu.Unlock()
		return nil
	}

	h := q.Current()
	if h == nil || h.Finished() {
		g.mu.Unlock()
		return ErrNothingPlaying
	}
	q.MarkSkipped()
	g.mu.Unlock()

	// the end event takes g.mu
	h.Stop()
	return nil
}

// Pause pauses or resumes the current track
func (m *Manager) Pause(guildID string, paused bool) error {
	g, err := m.mustGet(guildID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.ctx.Queue.Current()
	if h == nil || h.Finished() {
		return ErrNothingPlaying
	}
	h.SetPaused(paused)
	if in := g.ctx.Queue.CrossfadeIncoming(); in != nil {
		in.SetPaused(paused)
	}

	if paused {
		g.cancelTrackTimers()
	} else if g.ctx.Queue.CrossfadeIncoming() != nil {
		g.armCrossfade()
	} else {
		g.scheduleTrackTimers(h)
	}
	return nil
}

// SetRadio toggles radio mode and starts playback when idle
func (m *Manager) SetRadio(guildID string, enabled bool) error {
	g, err := m.mustGet(guildID)
	if err != nil {
		return err
	}

	g.ctx.Queue.SetRadio(enabled)
	if enabled {
		g.kick()
	}
	return nil
}

// SetCrossfade toggles crossfade mode for the following track changes
func (m *Manager) SetCrossfade(guildID string, enabled bool) error {
	g, err := m.mustGet(guildID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx.Queue.SetCrossfade(enabled)
	if !enabled {
		m.scheduler.Cancel(guildID, JobCrossfadeStart)
		if g.ctx.Queue.CrossfadeIncoming() != nil {
			g.completeFade()
		}
		return nil
	}

	if h := g.ctx.Queue.Current(); h != nil && !h.Finished() && h.Remaining() > 0 {
		fade := m.config.Playback.CrossfadeDuration
		m.scheduler.After(guildID, JobCrossfadeStart, nonNegative(h.Remaining()-fade), g.startCrossfade)
	}
	return nil
}

// Clear drops everything queued for a guild without stopping the current track
func (m *Manager) Clear(guildID string) error {
	g, err := m.mustGet(guildID)
	if err != nil {
		return err
	}
	g.ctx.Queue.Clear()
	return nil
}

// Status returns a guild's playback state
func (m *Manager) Status(guildID string) (*Status, error) {
	g, err := m.mustGet(guildID)
	if err != nil {
		return nil, err
	}

	q := g.ctx.Queue
	st := &Status{
		Pending:   q.Pending(),
		History:   q.History(),
		Radio:     q.RadioEnabled(),
		Crossfade: q.CrossfadeEnabled(),
		Fading:    q.CrossfadeIncoming() != nil,
	}
	if h := q.Current(); h != nil && !h.Finished() {
		md := h.Metadata()
		st.NowPlaying = &md
		st.URI = h.URI()
		st.Position = h.Position()
		st.Remaining = h.Remaining()
		st.Paused = h.Paused()
	}
	return st, nil
}

// Recent returns the newest logged plays of a guild
func (m *Manager) Recent(ctx context.Context, guildID string, limit int) ([]*database.Play, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Plays().Recent(ctx, guildID, limit)
}

// Describe renders a URI list for chat
func Describe(uris []string, limit int) string {
	if len(uris) == 0 {
		return "_empty_"
	}

	var b strings.Builder
	for i, uri := range uris {
		if i == limit {
			fmt.Fprintf(&b, "…and %d more", len(uris)-limit)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, uri)
	}
	return b.String()
}
