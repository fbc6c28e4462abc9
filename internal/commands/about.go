package commands

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/session"
)

var startTime = time.Now()

var aboutCommand = &Command{
	Name:        "about",
	Usage:       "about",
	Description: "Show bot info, uptime and stats",
	Run: func(ctx context.Context, env *Env, req *Request) *Reply {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		return &Reply{
			Title:       "Bot Information",
			Description: "Tomakomai's Tourism Ambassador!★ Now on air.",
			Color:       session.ColorInfo,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Uptime", Value: formatUptime(time.Since(startTime)), Inline: true},
				{Name: "Memory Usage", Value: fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024), Inline: true},
				{Name: "Go Version", Value: runtime.Version(), Inline: true},
				{Name: "Platform", Value: runtime.GOOS + "/" + runtime.GOARCH, Inline: true},
				{Name: "Goroutines", Value: strconv.Itoa(runtime.NumGoroutine()), Inline: true},
				{Name: "Live Sessions", Value: strconv.Itoa(env.Sessions.Len()), Inline: true},
			},
		}
	},
}

// formatUptime formats the uptime duration into a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
