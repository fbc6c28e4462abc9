package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/latoulicious/TarumaeRadio/internal/session"
)

var helpCommand = &Command{
	Name:        "help",
	Aliases:     []string{"h"},
	Usage:       "help",
	Description: "Show this help message",
}

// runHelp is assigned in init since it lists helpCommand itself
func init() {
	helpCommand.Run = runHelp
}

func runHelp(ctx context.Context, env *Env, req *Request) *Reply {
	lines := make([]string, 0, len(All()))
	for _, c := range All() {
		line := fmt.Sprintf("• `%s` - %s", c.Usage, c.Description)
		if len(c.Aliases) > 0 {
			line += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		lines = append(lines, line)
	}

	return &Reply{
		Title:       "Hokko Tarumae",
		Description: "Here are all the available commands for the bot:\n\n" + strings.Join(lines, "\n"),
		Color:       session.ColorInfo,
	}
}
