package config

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// ErrDiscordTokenNotSet is returned when DISCORD_TOKEN is missing
var ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken string
	Prefix       string
	OwnerID      string
}

// LoadConfig reads the .env file, when there is one, and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	discordToken := os.Getenv("DISCORD_TOKEN")
	if discordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}

	prefix := os.Getenv("COMMAND_PREFIX")
	if prefix == "" {
		prefix = "!"
	}

	return &Config{
		DiscordToken: discordToken,
		Prefix:       prefix,
		OwnerID:      os.Getenv("OWNER_ID"),
	}, nil
}

var (
	tunables     *pipeline.PipelineConfig
	tunablesErr  error
	tunablesOnce sync.Once
)

// Tunables returns the engine configuration, built once from defaults and the environment
func Tunables() (*pipeline.PipelineConfig, error) {
	tunablesOnce.Do(func() {
		cfg := pipeline.DefaultPipelineConfig()
		cfg.LoadFromEnvironment()
		if err := cfg.Validate(); err != nil {
			tunablesErr = err
			return
		}
		tunables = cfg
	})
	return tunables, tunablesErr
}
