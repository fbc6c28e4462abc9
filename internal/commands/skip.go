package commands

import "context"

var skipCommand = &Command{
	Name:        "skip",
	Aliases:     []string{"s", "next"},
	Usage:       "skip",
	Description: "Skip the current track",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		if err := env.Sessions.Skip(req.GuildID); err != nil {
			return failure(err)
		}
		return ok("⏭️ Skipped", "Skipped to the next track.")
	},
}
