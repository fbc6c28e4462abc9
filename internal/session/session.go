// Package session owns the per-guild voice sessions: joining and leaving,
// reacting to track ends, and the timers that preload, crossfade and check
// for an abandoned channel.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/cron"
	"github.com/latoulicious/TarumaeRadio/pkg/crossfade"
	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/queue"
)

// Scheduled job names, per guild
const (
	JobHeartbeat      = "heartbeat"
	JobPreload        = "preload"
	JobCrossfadeStart = "crossfade-start"
	JobCrossfade      = "crossfade"
)

// Presence shows what is playing
type Presence interface {
	UpdateMusicPresence(title string)
	ClearMusicPresence()
}

// QueueContext is the immutable join-scoped bundle shared by every handler of a guild
type QueueContext struct {
	GuildID        string
	TextChannelID  string
	VoiceChannelID string
	Manager        *Manager
	Queue          *queue.PlaybackQueue
}

// Guild is one live voice session
type Guild struct {
	ctx     *QueueContext
	manager *Manager
	logger  pipeline.Logger

	// mu serializes track ends, preloads and crossfade ticks; taken before the queue's own lock
	mu         sync.Mutex
	closed     bool
	player     *common.Player
	fade       *crossfade.Controller
	disconnect func() error

	runCtx context.Context
	cancel context.CancelFunc
}

// Context returns the guild's queue context
func (g *Guild) Context() *QueueContext { return g.ctx }

// Options configures a Manager
type Options struct {
	Config     *pipeline.PipelineConfig
	Dispatcher queue.Materializer
	Radio      queue.RadioPreloader
	Scheduler  *cron.Scheduler
	Voice      Voice
	Notifier   Notifier
	Store      database.DatabaseManager
	Presence   Presence
	Logger     pipeline.Logger
	Metrics    *pipeline.Metrics
}

// Manager is the arena of live guild sessions
type Manager struct {
	mu     sync.Mutex
	guilds map[string]*Guild

	config     *pipeline.PipelineConfig
	dispatcher queue.Materializer
	radio      queue.RadioPreloader
	scheduler  *cron.Scheduler
	voice      Voice
	notifier   Notifier
	store      database.DatabaseManager
	presence   Presence
	logger     pipeline.Logger
	metrics    *pipeline.Metrics
}

// NewManager creates an empty session arena
func NewManager(opts Options) *Manager {
	if opts.Config == nil {
		opts.Config = pipeline.DefaultPipelineConfig()
	}
	if opts.Logger == nil {
		opts.Logger = pipeline.NullLogger()
	}
	return &Manager{
		guilds:     make(map[string]*Guild),
		config:     opts.Config,
		dispatcher: opts.Dispatcher,
		radio:      opts.Radio,
		scheduler:  opts.Scheduler,
		voice:      opts.Voice,
		notifier:   opts.Notifier,
		store:      opts.Store,
		presence:   opts.Presence,
		logger:     opts.Logger.With(pipeline.Component("session")),
		metrics:    opts.Metrics,
	}
}

// Get returns the live session of a guild
func (m *Manager) Get(guildID string) (*Guild, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	return g, ok
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guilds)
}

func (m *Manager) mustGet(guildID string) (*Guild, error) {
	g, ok := m.Get(guildID)
	if !ok {
		return nil, &common.VoiceError{Err: common.ErrNoVoiceSession}
	}
	return g, nil
}

// Join connects a guild to a voice channel and builds its queue. Joining a
// guild that already has a session returns the existing one.
func (m *Manager) Join(guildID, textChannelID, voiceChannelID string) (*QueueContext, error) {
	if g, ok := m.Get(guildID); ok {
		return g.ctx, nil
	}

	sink, disconnect, err := m.voice.Join(guildID, voiceChannelID)
	if err != nil {
		return nil, err
	}

	logger := m.logger.With(pipeline.GuildID(guildID))
	player, err := common.NewPlayer(sink, m.config.Session.OpusBitrate, logger, m.metrics)
	if err != nil {
		_ = disconnect()
		return nil, err
	}

	g := &Guild{
		manager:    m,
		logger:     logger,
		player:     player,
		disconnect: disconnect,
	}
	g.runCtx, g.cancel = context.WithCancel(context.Background())

	q := queue.New(m.dispatcher, queue.Options{
		HistorySize: m.config.Playback.HistorySize,
		RetryBudget: m.config.Playback.RetryBudget,
		Radio:       m.radio,
		OnFailure:   g.reportError,
		Logger:      logger,
	})
	g.ctx = &QueueContext{
		GuildID:        guildID,
		TextChannelID:  textChannelID,
		VoiceChannelID: voiceChannelID,
		Manager:        m,
		Queue:          q,
	}
	g.fade = &crossfade.Controller{
		Envelope: crossfade.Envelope{Peak: m.config.Playback.CrossfadePeak},
		Slots:    q,
		Next:     q.Next,
		Player:   player,
		OnSwap:   g.swapped,
		Logger:   logger,
		Metrics:  m.metrics,
	}
	g.restore()

	m.mu.Lock()
	if existing, ok := m.guilds[guildID]; ok {
		m.mu.Unlock()
		g.cancel()
		_ = disconnect()
		return existing.ctx, nil
	}
	m.guilds[guildID] = g
	m.metrics.SetActiveGuilds(len(m.guilds))
	m.mu.Unlock()

	player.Start(g.runCtx)
	if err := m.scheduler.Every(guildID, JobHeartbeat, m.config.Session.HeartbeatInterval, g.heartbeat); err != nil {
		logger.Warn("heartbeat not scheduled", pipeline.Error(err))
	}

	logger.Info("joined voice channel", pipeline.String("channel_id", voiceChannelID))
	return g.ctx, nil
}

// restore loads the guild's cold queue, if any
func (g *Guild) restore() {
	store := g.manager.store
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(g.runCtx, 5*time.Second)
	defer cancel()

	snapshot, err := store.Queues().Load(ctx, g.ctx.GuildID)
	if err != nil {
		if !errors.Is(err, database.ErrQueueNotFound) {
			g.logger.Warn("failed to load cold queue", pipeline.Error(err))
		}
		return
	}
	g.ctx.Queue.Restore(snapshot)
	g.logger.Info("cold queue restored", pipeline.Int("pending", len(snapshot.Pending)))
}

// Leave ends a guild's session: every timer is cancelled, playback stops,
// the queue is stored cold and the voice connection closes
func (m *Manager) Leave(guildID, reason string) error {
	m.mu.Lock()
	g, ok := m.guilds[guildID]
	if ok {
		delete(m.guilds, guildID)
		m.metrics.SetActiveGuilds(len(m.guilds))
	}
	m.mu.Unlock()

	if !ok {
		return &common.VoiceError{Err: common.ErrNoVoiceSession}
	}

	m.scheduler.RemoveGuild(guildID)
	// a track being loaded holds g.mu until its materialize sees runCtx end
	g.cancel()

	g.mu.Lock()
	g.closed = true
	g.persist()
	g.ctx.Queue.Close()
	g.mu.Unlock()

	g.player.Close()
	if m.presence != nil {
		m.presence.ClearMusicPresence()
	}

	if err := g.disconnect(); err != nil {
		g.logger.Warn("voice disconnect failed", pipeline.Error(err))
	}

	g.logger.Info("left voice channel", pipeline.String("reason", reason))
	return nil
}

func (g *Guild) persist() {
	store := g.manager.store
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Queues().Save(ctx, g.ctx.GuildID, g.ctx.Queue.Snapshot()); err != nil {
		g.logger.Warn("failed to store cold queue", pipeline.Error(err))
	}
}

// Close leaves every guild
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Leave(id, "shutdown"); err != nil {
			m.logger.Warn("leave failed", pipeline.GuildID(id), pipeline.Error(err))
		}
	}
}

// heartbeat leaves a channel that has no listeners left
func (g *Guild) heartbeat() {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}

	if g.manager.voice.HasListeners(g.ctx.GuildID, g.ctx.VoiceChannelID) {
		return
	}

	g.logger.Info("voice channel abandoned")
	g.manager.notifier.Notify(g.ctx.TextChannelID, "👋 Left Voice",
		"Everyone left the voice channel, so I did too. The queue is saved for next time.", ColorIdle)
	if err := g.manager.Leave(g.ctx.GuildID, "abandoned"); err != nil {
		g.logger.Debug("heartbeat leave", pipeline.Error(err))
	}
}

