package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Voice errors
var (
	ErrNotInVoice      = errors.New("you must be in a voice channel to play music")
	ErrNoVoiceSession  = errors.New("not connected to a voice channel in this server")
	ErrVoiceNotReady   = errors.New("voice connection timed out")
	ErrGuildNotInState = errors.New("could not find guild")
)

// VoiceError marks failures that go straight back to the user without retry
type VoiceError struct {
	Err error
}

func (e *VoiceError) Error() string { return e.Err.Error() }

func (e *VoiceError) Unwrap() error { return e.Err }

// ErrorCategory implements pipeline.CategorizedError
func (e *VoiceError) ErrorCategory() pipeline.ErrorCategory { return pipeline.CategoryVoice }

// UserVoiceChannel returns the voice channel a user is currently in
func UserVoiceChannel(state *discordgo.State, guildID, userID string) (string, error) {
	guild, err := state.Guild(guildID)
	if err != nil {
		return "", &VoiceError{Err: fmt.Errorf("%w: %v", ErrGuildNotInState, err)}
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", &VoiceError{Err: ErrNotInVoice}
}

// JoinVoiceChannel joins a channel with retry and waits for the connection to be ready
func JoinVoiceChannel(s *discordgo.Session, guildID, channelID string, retries int, timeout time.Duration, logger pipeline.Logger) (*discordgo.VoiceConnection, error) {
	if retries <= 0 {
		retries = 1
	}
	logger = logger.With(pipeline.GuildID(guildID), pipeline.String("channel_id", channelID))

	var (
		vc  *discordgo.VoiceConnection
		err error
	)
	for i := 0; i < retries; i++ {
		vc, err = s.ChannelVoiceJoin(guildID, channelID, false, true)
		if err == nil {
			break
		}

		logger.Warn("voice join attempt failed",
			pipeline.Int("attempt", i+1),
			pipeline.Int("max_attempts", retries),
			pipeline.Error(err))
		if i < retries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return nil, &VoiceError{Err: fmt.Errorf("failed to join voice channel after %d attempts: %w", retries, err)}
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			_ = vc.Disconnect()
			return nil, &VoiceError{Err: ErrVoiceNotReady}
		case <-ticker.C:
			vc.RLock()
			ready := vc.Ready
			vc.RUnlock()
			if ready {
				logger.Info("voice connection ready")
				return vc, nil
			}
		}
	}
}

// HasListeners reports whether any non-bot member is in the voice channel.
// Members missing from the state count as listeners.
func HasListeners(state *discordgo.State, guildID, channelID string) bool {
	guild, err := state.Guild(guildID)
	if err != nil {
		return false
	}

	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}

		member := vs.Member
		if member == nil || member.User == nil {
			member, err = state.Member(guildID, vs.UserID)
			if err != nil || member.User == nil {
				return true
			}
		}
		if !member.User.Bot {
			return true
		}
	}
	return false
}
