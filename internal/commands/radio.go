package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

var modeOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "mode",
	Description: "Turn it on or off, leave empty to toggle",
	Choices: []*discordgo.ApplicationCommandOptionChoice{
		{Name: "on", Value: "on"},
		{Name: "off", Value: "off"},
	},
}

const (
	radioUsage     = "radio [on|off]"
	crossfadeUsage = "crossfade [on|off]"
)

var radioCommand = &Command{
	Name:        "radio",
	Usage:       radioUsage,
	Description: "Keep playing recommendations seeded by recent tracks when the queue runs dry",
	Option:      modeOption,
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		st, err := env.Sessions.Status(req.GuildID)
		if err != nil {
			return failure(err)
		}
		enabled, valid := toggle(req.Args, st.Radio)
		if !valid {
			return usage(radioUsage)
		}
		if err := env.Sessions.SetRadio(req.GuildID, enabled); err != nil {
			return failure(err)
		}
		return ok("📻 Radio", "Radio is "+onOff(enabled)+".")
	},
}

var crossfadeCommand = &Command{
	Name:        "crossfade",
	Aliases:     []string{"xf", "fade"},
	Usage:       crossfadeUsage,
	Description: "Fade each track into the next",
	Option:      modeOption,
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		st, err := env.Sessions.Status(req.GuildID)
		if err != nil {
			return failure(err)
		}
		enabled, valid := toggle(req.Args, st.Crossfade)
		if !valid {
			return usage(crossfadeUsage)
		}
		if err := env.Sessions.SetCrossfade(req.GuildID, enabled); err != nil {
			return failure(err)
		}
		return ok("🔀 Crossfade", "Crossfade is "+onOff(enabled)+".")
	},
}
