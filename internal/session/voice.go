package session

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Voice connects guilds to voice channels
type Voice interface {
	// Join connects to a channel and returns the frame sink and a disconnect func.
	Join(guildID, channelID string) (common.OpusSink, func() error, error)
	// HasListeners reports whether any non-bot member is in the channel.
	HasListeners(guildID, channelID string) bool
}

// DiscordVoice joins voice channels through a discordgo session
type DiscordVoice struct {
	Session *discordgo.Session
	Retries int
	Timeout time.Duration
	Logger  pipeline.Logger
}

// Join implements Voice
func (v *DiscordVoice) Join(guildID, channelID string) (common.OpusSink, func() error, error) {
	logger := v.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	vc, err := common.JoinVoiceChannel(v.Session, guildID, channelID, v.Retries, v.Timeout, logger)
	if err != nil {
		return nil, nil, err
	}
	return common.VoiceSink{Conn: vc}, vc.Disconnect, nil
}

// HasListeners implements Voice
func (v *DiscordVoice) HasListeners(guildID, channelID string) bool {
	return common.HasListeners(v.Session.State, guildID, channelID)
}
