package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/commands"
	"github.com/latoulicious/TarumaeRadio/internal/config"
	"github.com/spf13/cobra"
)

func slashCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "slash <register|delete-all>",
		Short:     "Manage the global slash commands",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"register", "delete-all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			_, logger, err := flags.tunables()
			if err != nil {
				return err
			}

			dg, err := discordgo.New("Bot " + cfg.DiscordToken)
			if err != nil {
				return err
			}
			if err := dg.Open(); err != nil {
				return err
			}
			defer dg.Close()

			switch args[0] {
			case "register":
				err = commands.RegisterSlashCommands(dg, logger)
			case "delete-all":
				err = commands.DeleteAllSlashCommands(dg, logger)
			default:
				err = fmt.Errorf("unknown action %q", args[0])
			}
			return err
		},
	}
}
