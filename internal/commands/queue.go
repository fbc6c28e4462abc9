package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
)

const queueListLimit = 10

var queueCommand = &Command{
	Name:        "queue",
	Aliases:     []string{"q", "list"},
	Usage:       "queue",
	Description: "Show the queue and playback modes",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		st, err := env.Sessions.Status(req.GuildID)
		if err != nil {
			return failure(err)
		}

		current := "_nothing_"
		if st.NowPlaying != nil {
			current = st.NowPlaying.DisplayTitle()
		}

		return &Reply{
			Title:       "📜 Queue",
			Description: session.Describe(st.Pending, queueListLimit),
			Color:       session.ColorInfo,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Now Playing", Value: current},
				{Name: "Radio", Value: onOff(st.Radio), Inline: true},
				{Name: "Crossfade", Value: onOff(st.Crossfade), Inline: true},
				{Name: "Waiting", Value: strconv.Itoa(len(st.Pending)), Inline: true},
			},
		}
	},
}

const (
	historyUsage        = "history [plays [n]]"
	defaultPlaysListing = 10
	maxPlaysListing     = 50
)

var historyCommand = &Command{
	Name:        "history",
	Aliases:     []string{"hist"},
	Usage:       historyUsage,
	Description: "Show recently played tracks; `plays` lists the longer play log",
	Option: &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "source",
		Description: "Where to read from",
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "session", Value: "session"},
			{Name: "plays", Value: "plays"},
		},
	},
	Run: runHistory,
}

func runHistory(ctx context.Context, env *Env, req *Request) *Reply {
	if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "plays") {
		return runPlays(ctx, env, req)
	}

	st, err := env.Sessions.Status(req.GuildID)
	if err != nil {
		return failure(err)
	}
	if len(st.History) == 0 {
		return &Reply{Title: "🕘 History", Description: "_empty_", Color: session.ColorIdle}
	}

	var b strings.Builder
	for i := len(st.History) - 1; i >= 0; i-- {
		r := st.History[i]
		fmt.Fprintf(&b, "%d. %s", len(st.History)-i, r.Metadata.DisplayTitle())
		if r.EndReason != track.Unmarked {
			fmt.Fprintf(&b, " _(%s)_", r.EndReason)
		}
		b.WriteByte('\n')
	}
	return ok("🕘 History", b.String())
}

func runPlays(ctx context.Context, env *Env, req *Request) *Reply {
	limit := defaultPlaysListing
	if len(req.Args) > 1 {
		n, err := strconv.Atoi(req.Args[1])
		if err != nil || n <= 0 {
			return usage(historyUsage)
		}
		limit = min(n, maxPlaysListing)
	}

	plays, err := env.Sessions.Recent(ctx, req.GuildID, limit)
	if err != nil {
		return failure(err)
	}
	if len(plays) == 0 {
		return &Reply{Title: "🕘 Play Log", Description: "No plays logged yet.", Color: session.ColorIdle}
	}

	var b strings.Builder
	for i, p := range plays {
		fmt.Fprintf(&b, "%d. %s <t:%d:R>\n", i+1, p.Title, p.StartedAt.Unix())
	}
	return ok("🕘 Play Log", b.String())
}
