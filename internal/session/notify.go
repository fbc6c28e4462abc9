package session

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/queue"
)

// Embed colors
const (
	ColorInfo    = 0x00ff00
	ColorWarning = 0xffa500
	ColorError   = 0xff0000
	ColorIdle    = 0x808080
)

// Notifier posts messages to a guild's text channel
type Notifier interface {
	Notify(channelID, title, description string, color int)
	NotifyFile(channelID, title, description, fileName string, data []byte)
}

// DiscordNotifier sends embeds through a discordgo session
type DiscordNotifier struct {
	Session *discordgo.Session
	Logger  pipeline.Logger
}

// Notify implements Notifier
func (n *DiscordNotifier) Notify(channelID, title, description string, color int) {
	_, err := n.Session.ChannelMessageSendEmbed(channelID, Embed(title, description, color))
	if err != nil && n.Logger != nil {
		n.Logger.Warn("failed to send notification", pipeline.String("channel_id", channelID), pipeline.Error(err))
	}
}

// NotifyFile implements Notifier, attaching data as fileName
func (n *DiscordNotifier) NotifyFile(channelID, title, description, fileName string, data []byte) {
	_, err := n.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{Embed(title, description, ColorError)},
		Files: []*discordgo.File{{
			Name:        fileName,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(data),
		}},
	})
	if err != nil && n.Logger != nil {
		n.Logger.Warn("failed to send file notification", pipeline.String("channel_id", channelID), pipeline.Error(err))
	}
}

// Embed builds the bot's standard embed
func Embed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Hokko Tarumae | Radio",
		},
	}
}

// reportError turns a playback failure into a chat notification
func (g *Guild) reportError(uri string, err error) {
	channel := g.ctx.TextChannelID
	n := g.manager.notifier

	var bad *process.BadMetadataError
	var halted *queue.BatchHaltedError
	switch {
	case errors.As(err, &bad):
		n.NotifyFile(channel, "❌ Bad Metadata",
			fmt.Sprintf("The extractor returned unreadable metadata for `%s`. Raw output attached.", uri),
			"metadata.txt", bad.Raw)
	case errors.As(err, &halted):
		n.Notify(channel, "⏹️ Playback Stopped",
			fmt.Sprintf("Too many tracks failed in a row. Last tried `%s`.", halted.LastURI), ColorError)
	default:
		pe := pipeline.Classify(err)
		title := "❌ Failed To Play"
		if pe.Category == pipeline.CategoryContent {
			title = "🚫 Unsupported"
		}
		n.Notify(channel, title, fmt.Sprintf("`%s`: %v", uri, err), ColorError)
	}
}
