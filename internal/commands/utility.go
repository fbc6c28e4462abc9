package commands

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
)

const utilityUsage = "utility cron"

var utilityCommand = &Command{
	Name:        "utility",
	Usage:       utilityUsage,
	Description: "Scheduler status for this server (bot owner only)",
	Option: &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "subcommand",
		Description: "What to show",
		Required:    true,
		Choices:     []*discordgo.ApplicationCommandOptionChoice{{Name: "cron", Value: "cron"}},
	},
	Run: runUtility,
}

func runUtility(ctx context.Context, env *Env, req *Request) *Reply {
	if env.OwnerID == "" || req.UserID != env.OwnerID {
		return &Reply{Title: "❌ Restricted", Description: "This command is restricted to the bot owner only.", Color: session.ColorError}
	}
	if len(req.Args) == 0 || strings.ToLower(req.Args[0]) != "cron" {
		return usage(utilityUsage)
	}

	jobs := []string{session.JobHeartbeat, session.JobPreload, session.JobCrossfadeStart, session.JobCrossfade}
	fields := make([]*discordgo.MessageEmbedField, 0, len(jobs)+1)
	for _, name := range jobs {
		state := "idle"
		if env.Scheduler.Active(req.GuildID, name) {
			state = "active"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: name, Value: state, Inline: true})
	}

	next := "Not scheduled"
	if t := env.Scheduler.NextRun(req.GuildID, session.JobHeartbeat); !t.IsZero() {
		next = t.Format("2006-01-02 15:04:05")
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Next Heartbeat", Value: next})

	return &Reply{
		Title:       "⏰ Cron Job Status",
		Description: "Timers of this server's voice session",
		Color:       0x7289DA,
		Fields:      fields,
	}
}
