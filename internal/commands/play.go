package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
)

const playUsage = "play <uri> [uri...]"

var playCommand = &Command{
	Name:        "play",
	Aliases:     []string{"p"},
	Usage:       playUsage,
	Description: "Join your voice channel and queue tracks by URL",
	Option: &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "uri",
		Description: "Track URL",
		Required:    true,
	},
	Run: runPlay,
}

func runPlay(ctx context.Context, env *Env, req *Request) *Reply {
	if len(req.Args) == 0 {
		return usage(playUsage)
	}

	voiceChannel, err := env.Locate(req.GuildID, req.UserID)
	if err != nil {
		return failure(err)
	}
	if _, err := env.Sessions.Join(req.GuildID, req.ChannelID, voiceChannel); err != nil {
		return failure(err)
	}

	started, err := env.Sessions.Enqueue(req.GuildID, req.Args...)
	if err != nil {
		return failure(err)
	}
	if started {
		return ok("▶️ Starting", fmt.Sprintf("Queued %d track(s) and started playback.", len(req.Args)))
	}

	st, err := env.Sessions.Status(req.GuildID)
	if err != nil {
		return failure(err)
	}
	if st.URI == "" && len(st.Pending) == 0 {
		// every queued track failed, the failures were already posted
		return &Reply{Title: "⚠️ Nothing Queued", Description: "None of those could be played.", Color: session.ColorWarning}
	}
	return ok("✅ Added To Queue", fmt.Sprintf("Queued %d track(s). %d waiting.", len(req.Args), len(st.Pending)))
}
