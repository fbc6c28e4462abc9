package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
	"github.com/latoulicious/TarumaeRadio/pkg/common"
)

var nowPlayingCommand = &Command{
	Name:        "nowplaying",
	Aliases:     []string{"np"},
	Usage:       "nowplaying",
	Description: "Show the current track",
	Run:         runNowPlaying,
}

func runNowPlaying(ctx context.Context, env *Env, req *Request) *Reply {
	st, err := env.Sessions.Status(req.GuildID)
	if err != nil {
		return failure(err)
	}
	if st.NowPlaying == nil {
		return failure(session.ErrNothingPlaying)
	}

	md := st.NowPlaying
	title := "🎵 Now Playing"
	if st.Paused {
		title = "⏸️ Paused"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Position", Value: st.Position.Round(time.Second).String(), Inline: true},
	}
	if md.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Length", Value: md.Duration.Round(time.Second).String(), Inline: true})
	}
	if st.Fading {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Crossfade", Value: "fading in the next track", Inline: true})
	}

	return &Reply{
		Title:       title,
		Description: "**" + md.DisplayTitle() + "**\n" + st.URI,
		Color:       session.ColorInfo,
		Thumbnail:   common.GetYouTubeThumbnailURL(common.ExtractYouTubeVideoID(st.URI)),
		Fields:      fields,
	}
}
