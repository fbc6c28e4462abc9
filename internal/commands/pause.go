package commands

import "context"

var pauseCommand = &Command{
	Name:        "pause",
	Usage:       "pause",
	Description: "Pause playback",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		if err := env.Sessions.Pause(req.GuildID, true); err != nil {
			return failure(err)
		}
		return ok("⏸️ Paused", "Playback paused.")
	},
}

var resumeCommand = &Command{
	Name:        "resume",
	Aliases:     []string{"unpause"},
	Usage:       "resume",
	Description: "Resume paused playback",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		if err := env.Sessions.Pause(req.GuildID, false); err != nil {
			return failure(err)
		}
		return ok("▶️ Resumed", "Playback resumed.")
	},
}
