package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// slash command descriptions are capped by discord
const maxSlashDescription = 100

// SlashDefinitions returns the application commands mirroring the chat commands
func SlashDefinitions() []*discordgo.ApplicationCommand {
	all := All()
	defs := make([]*discordgo.ApplicationCommand, 0, len(all))
	for _, c := range all {
		def := &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: truncate(c.Description, maxSlashDescription),
		}
		if c.Option != nil {
			def.Options = []*discordgo.ApplicationCommandOption{c.Option}
		}
		defs = append(defs, def)
	}
	return defs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RegisterSlashCommands registers all slash commands globally
func RegisterSlashCommands(s *discordgo.Session, logger pipeline.Logger) error {
	logger.Info("registering global slash commands")

	for _, cmd := range SlashDefinitions() {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			logger.Error("failed to create slash command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("registered slash command", pipeline.String("command", cmd.Name))
	}

	logger.Info("all slash commands registered")
	return nil
}

// DeleteAllSlashCommands deletes all global slash commands
func DeleteAllSlashCommands(s *discordgo.Session, logger pipeline.Logger) error {
	cmds, err := s.ApplicationCommands(s.State.User.ID, "")
	if err != nil {
		return err
	}

	for _, cmd := range cmds {
		if err := s.ApplicationCommandDelete(s.State.User.ID, "", cmd.ID); err != nil {
			logger.Error("failed to delete slash command", pipeline.String("command", cmd.Name), pipeline.Error(err))
			return err
		}
		logger.Debug("deleted slash command", pipeline.String("command", cmd.Name))
	}
	return nil
}
