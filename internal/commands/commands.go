// Package commands implements the chat commands of the radio. Commands are
// transport agnostic: the message and slash handlers turn their events into
// a Request and render the returned Reply.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/cron"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Env carries what commands act on
type Env struct {
	Sessions  *session.Manager
	Scheduler *cron.Scheduler
	// Locate returns the voice channel a user is in
	Locate  func(guildID, userID string) (string, error)
	OwnerID string
	Logger  pipeline.Logger
}

// Request is one command invocation
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Args      []string
}

// Reply is what a command answers with
type Reply struct {
	Title       string
	Description string
	Color       int
	Thumbnail   string
	Fields      []*discordgo.MessageEmbedField
}

// Embed renders the reply
func (r *Reply) Embed() *discordgo.MessageEmbed {
	e := session.Embed(r.Title, r.Description, r.Color)
	e.Fields = r.Fields
	if r.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.Thumbnail}
	}
	return e
}

// Command is one chat command
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	// Option is the single slash command option, if the command takes one
	Option *discordgo.ApplicationCommandOption
	Run    func(ctx context.Context, env *Env, req *Request) *Reply
}

// All returns every command in help order
func All() []*Command {
	return []*Command{
		playCommand,
		skipCommand,
		pauseCommand,
		resumeCommand,
		nowPlayingCommand,
		queueCommand,
		historyCommand,
		clearCommand,
		radioCommand,
		crossfadeCommand,
		leaveCommand,
		aboutCommand,
		utilityCommand,
		helpCommand,
	}
}

// Lookup finds a command by name or alias
func Lookup(name string) (*Command, bool) {
	name = strings.ToLower(name)
	for _, c := range All() {
		if c.Name == name {
			return c, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c, true
			}
		}
	}
	return nil, false
}

// Dispatch runs the named command
func Dispatch(ctx context.Context, env *Env, name string, req *Request) *Reply {
	c, ok := Lookup(name)
	if !ok {
		return &Reply{
			Title:       "❓ Unknown Command",
			Description: fmt.Sprintf("`%s` is not a command. Try `help`.", name),
			Color:       session.ColorWarning,
		}
	}
	if env.Logger != nil {
		env.Logger.Debug("command",
			pipeline.GuildID(req.GuildID),
			pipeline.String("command", c.Name),
			pipeline.Int("args", len(req.Args)))
	}
	return c.Run(ctx, env, req)
}

func failure(err error) *Reply {
	switch {
	case errors.Is(err, common.ErrNoVoiceSession):
		return &Reply{Title: "❌ Not Connected", Description: "I'm not in a voice channel here. Use `play` first.", Color: session.ColorError}
	case errors.Is(err, session.ErrNothingPlaying):
		return &Reply{Title: "🔇 Nothing Playing", Description: "Nothing is playing right now.", Color: session.ColorIdle}
	}

	title := "❌ Error"
	if pipeline.Classify(err).Category == pipeline.CategoryVoice {
		title = "❌ Voice Error"
	}
	return &Reply{Title: title, Description: err.Error(), Color: session.ColorError}
}

func usage(u string) *Reply {
	return &Reply{Title: "❌ Usage Error", Description: "Usage: `" + u + "`", Color: session.ColorError}
}

func ok(title, description string) *Reply {
	return &Reply{Title: title, Description: description, Color: session.ColorInfo}
}

// toggle reads an on/off argument; without one the current state flips
func toggle(args []string, current bool) (bool, bool) {
	if len(args) == 0 {
		return !current, true
	}
	switch strings.ToLower(args[0]) {
	case "on", "enable", "true", "1":
		return true, true
	case "off", "disable", "false", "0":
		return false, true
	}
	return false, false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
