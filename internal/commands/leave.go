package commands

import (
	"context"

	"github.com/latoulicious/TarumaeRadio/internal/session"
)

var leaveCommand = &Command{
	Name:        "leave",
	Aliases:     []string{"stop", "dc"},
	Usage:       "leave",
	Description: "Stop playback and leave the voice channel. The queue is kept for next time.",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		if err := env.Sessions.Leave(req.GuildID, "command"); err != nil {
			return failure(err)
		}
		return &Reply{Title: "👋 Left Voice", Description: "Bye for now. Your queue is saved.", Color: session.ColorIdle}
	},
}
