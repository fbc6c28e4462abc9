// Package cron schedules guild-scoped background work: periodic heartbeats on
// a shared cron, one-shot timers, and fast tickers. Everything registered for
// a guild is cancelled together by RemoveGuild.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/robfig/cron/v3"
)

// Scheduler owns every timed handler of every guild
type Scheduler struct {
	cron   *cron.Cron
	mu     sync.Mutex
	guilds map[string]*guildJobs
	seq    uint64
	logger pipeline.Logger
}

type guildJobs struct {
	entries map[string]cron.EntryID
	timers  map[string]*timer
	tickers map[string]*ticker
}

type timer struct {
	t   *time.Timer
	seq uint64
}

type ticker struct {
	cancel context.CancelFunc
	seq    uint64
}

// NewScheduler creates and starts a scheduler
func NewScheduler(logger pipeline.Logger) *Scheduler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger = logger.With(pipeline.Component("scheduler"))

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		guilds: make(map[string]*guildJobs),
		logger: logger,
	}
	s.cron.Start()
	return s
}

func (s *Scheduler) jobs(guildID string) *guildJobs {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &guildJobs{
			entries: make(map[string]cron.EntryID),
			timers:  make(map[string]*timer),
			tickers: make(map[string]*ticker),
		}
		s.guilds[guildID] = g
	}
	return g
}

// Every runs fn on the shared cron every interval. A run that is still going
// when the next one is due is skipped. Registering the same name again
// replaces the previous entry.
func (s *Scheduler) Every(guildID, name string, interval time.Duration, fn func()) error {
	if interval < time.Second {
		return fmt.Errorf("interval %s is below the cron resolution", interval)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(fn))
	id, err := s.cron.AddJob("@every "+interval.String(), job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.mu.Lock()
	g := s.jobs(guildID)
	if old, ok := g.entries[name]; ok {
		s.cron.Remove(old)
	}
	g.entries[name] = id
	s.mu.Unlock()

	s.logger.Debug("scheduled periodic job",
		pipeline.GuildID(guildID),
		pipeline.String("job", name),
		pipeline.Duration("interval", interval))
	return nil
}

// After runs fn once after d, replacing any pending timer of the same name.
// A timer cancelled or replaced before it fires never runs fn.
func (s *Scheduler) After(guildID, name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.jobs(guildID)
	if old, ok := g.timers[name]; ok {
		old.t.Stop()
	}

	s.seq++
	seq := s.seq
	g.timers[name] = &timer{
		seq: seq,
		t: time.AfterFunc(d, func() {
			if !s.claimTimer(guildID, name, seq) {
				return
			}
			fn()
		}),
	}
}

// claimTimer removes a fired timer, reporting false if it was cancelled or replaced
func (s *Scheduler) claimTimer(guildID, name string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return false
	}
	t, ok := g.timers[name]
	if !ok || t.seq != seq {
		return false
	}
	delete(g.timers, name)
	return true
}

// Tick calls fn every period until it reports done or the ticker is
// cancelled, replacing any ticker of the same name
func (s *Scheduler) Tick(guildID, name string, period time.Duration, fn func() (done bool)) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	g := s.jobs(guildID)
	if old, ok := g.tickers[name]; ok {
		old.cancel()
	}
	s.seq++
	seq := s.seq
	g.tickers[name] = &ticker{cancel: cancel, seq: seq}
	s.mu.Unlock()

	go func() {
		defer s.releaseTicker(guildID, name, seq)

		t := time.NewTicker(period)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ctx.Err() != nil {
					return
				}
				if fn() {
					return
				}
			}
		}
	}()
}

func (s *Scheduler) releaseTicker(guildID, name string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return
	}
	if t, ok := g.tickers[name]; ok && t.seq == seq {
		t.cancel()
		delete(g.tickers, name)
	}
}

// Cancel stops the named job of a guild, whatever its kind
func (s *Scheduler) Cancel(guildID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return
	}
	if id, ok := g.entries[name]; ok {
		s.cron.Remove(id)
		delete(g.entries, name)
	}
	if t, ok := g.timers[name]; ok {
		t.t.Stop()
		delete(g.timers, name)
	}
	if t, ok := g.tickers[name]; ok {
		t.cancel()
		delete(g.tickers, name)
	}
}

// Active reports whether the named job of a guild is registered
func (s *Scheduler) Active(guildID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return false
	}
	_, entry := g.entries[name]
	_, timer := g.timers[name]
	_, ticker := g.tickers[name]
	return entry || timer || ticker
}

// RemoveGuild cancels everything registered for a guild
func (s *Scheduler) RemoveGuild(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return
	}
	for _, id := range g.entries {
		s.cron.Remove(id)
	}
	for _, t := range g.timers {
		t.t.Stop()
	}
	for _, t := range g.tickers {
		t.cancel()
	}
	delete(s.guilds, guildID)

	s.logger.Debug("guild jobs removed", pipeline.GuildID(guildID))
}

// NextRun returns the next run time of a periodic job
func (s *Scheduler) NextRun(guildID, name string) time.Time {
	s.mu.Lock()
	g, ok := s.guilds[guildID]
	var id cron.EntryID
	if ok {
		id, ok = g.entries[name]
	}
	s.mu.Unlock()

	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Stop cancels every guild and stops the cron, waiting for running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	guilds := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		guilds = append(guilds, id)
	}
	s.mu.Unlock()

	for _, id := range guilds {
		s.RemoveGuild(id)
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// cronLogger adapts the pipeline logger to cron.Logger
type cronLogger struct {
	logger pipeline.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, pipeline.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, pipeline.Error(err), pipeline.Any("details", keysAndValues))
}
