package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Presence kinds
const (
	KindDefault = "default"
	KindMusic   = "music"
)

// Gateway is the part of a discordgo session the presence manager needs
type Gateway interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// GuildCounter reports how many guilds the bot is in and how many of them are playing
type GuildCounter func() (guilds, playing int)

// PresenceManager manages the bot's presence
type PresenceManager struct {
	gateway Gateway
	count   GuildCounter
	logger  pipeline.Logger

	mu      sync.RWMutex
	current string
	title   string
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(gateway Gateway, count GuildCounter, logger pipeline.Logger) *PresenceManager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &PresenceManager{
		gateway: gateway,
		count:   count,
		logger:  logger.With(pipeline.Component("presence")),
	}
}

// UpdateDefaultPresence shows how many servers the radio is on air in
func (pm *PresenceManager) UpdateDefaultPresence() {
	guilds, playing := 0, 0
	if pm.count != nil {
		guilds, playing = pm.count()
	}

	err := pm.gateway.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "radio in " + strconv.Itoa(playing) + " servers",
				Type:  discordgo.ActivityTypeWatching,
				State: "of " + strconv.Itoa(guilds) + " servers",
			},
		},
	})
	if err != nil {
		pm.logger.Warn("failed to update bot presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current, pm.title = KindDefault, ""
	pm.mu.Unlock()
}

// UpdateMusicPresence updates the bot's presence to show currently playing music
func (pm *PresenceManager) UpdateMusicPresence(songTitle string) {
	err := pm.gateway.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "to",
				Type:  discordgo.ActivityTypeListening,
				State: songTitle,
			},
		},
	})
	if err != nil {
		pm.logger.Warn("failed to update music presence", pipeline.Error(err))
	}

	pm.mu.Lock()
	pm.current, pm.title = KindMusic, songTitle
	pm.mu.Unlock()
}

// ClearMusicPresence clears the music presence and returns to default
func (pm *PresenceManager) ClearMusicPresence() {
	pm.UpdateDefaultPresence()
}

// GetCurrentPresence returns the current presence kind and, for music, the title
func (pm *PresenceManager) GetCurrentPresence() (string, string) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.current, pm.title
}

// StartPeriodicUpdates refreshes the default presence until ctx is done
func (pm *PresenceManager) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Only update if we're not showing music
				if kind, _ := pm.GetCurrentPresence(); kind != KindMusic {
					pm.UpdateDefaultPresence()
				}
			}
		}
	}()
}
