package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/commands"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// SlashArgs flattens the options of a slash invocation into command arguments
func SlashArgs(data discordgo.ApplicationCommandInteractionData) []string {
	args := make([]string, 0, len(data.Options))
	for _, option := range data.Options {
		if option.Type == discordgo.ApplicationCommandOptionString {
			args = append(args, option.StringValue())
		}
	}
	return args
}

// SlashCommandHandler returns the handler for slash command interactions
func SlashCommandHandler(env *commands.Env) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		// Ignore interactions outside guilds and from bots
		if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
			return
		}

		logger := env.Logger
		if logger == nil {
			logger = pipeline.NullLogger()
		}

		// Acknowledge the interaction immediately
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
		if err != nil {
			logger.Warn("failed to acknowledge interaction", pipeline.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		data := i.ApplicationCommandData()
		reply := commands.Dispatch(ctx, env, data.Name, &commands.Request{
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			UserID:    i.Member.User.ID,
			Args:      SlashArgs(data),
		})

		embeds := []*discordgo.MessageEmbed{reply.Embed()}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
			logger.Warn("failed to send interaction response",
				pipeline.GuildID(i.GuildID),
				pipeline.String("command", data.Name),
				pipeline.Error(err))
		}
	}
}
