package commands

import "context"

var clearCommand = &Command{
	Name:        "clear",
	Usage:       "clear",
	Description: "Drop every queued track, the current one keeps playing",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		if err := env.Sessions.Clear(req.GuildID); err != nil {
			return failure(err)
		}
		return ok("🗑️ Queue Cleared", "The queue is empty.")
	},
}
