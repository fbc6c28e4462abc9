package handlers

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/commands"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// commandTimeout bounds a single command, materializing the first track included
const commandTimeout = 2 * time.Minute

var mentionResponses = []string{
	"I'm Hokko Tarumae, Tomakomai's Tourism Ambassador!★",
	"Hmm, would ah look cuter if ah was lookin' up more?",
	"A paper-winged migrating bird from the port in the north ♪ The name's Hokko Tarumae, Tomakomai's local-dol, eh! ...Yeah, maybe I should work on it more",
}

// ParseCommand splits a prefixed message into a command name and its arguments
func ParseCommand(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// MessageHandler returns the handler for prefixed chat commands
func MessageHandler(env *commands.Env, prefix string) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore all messages created by the bot itself
		if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}

		for _, mention := range m.Mentions {
			if mention.ID == s.State.User.ID {
				s.ChannelMessageSend(m.ChannelID, mentionResponses[rand.Intn(len(mentionResponses))])
				return
			}
		}

		name, args, ok := ParseCommand(prefix, m.Content)
		if !ok || m.GuildID == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		reply := commands.Dispatch(ctx, env, name, &commands.Request{
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			UserID:    m.Author.ID,
			Args:      args,
		})
		if _, err := s.ChannelMessageSendEmbed(m.ChannelID, reply.Embed()); err != nil && env.Logger != nil {
			env.Logger.Warn("failed to send reply",
				pipeline.GuildID(m.GuildID),
				pipeline.String("command", name),
				pipeline.Error(err))
		}
	}
}
