package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/TarumaeRadio/internal/commands"
	"github.com/latoulicious/TarumaeRadio/internal/config"
	"github.com/latoulicious/TarumaeRadio/internal/handlers"
	"github.com/latoulicious/TarumaeRadio/internal/presence"
	"github.com/latoulicious/TarumaeRadio/internal/session"
	"github.com/latoulicious/TarumaeRadio/pkg/common"
	"github.com/latoulicious/TarumaeRadio/pkg/cron"
	"github.com/latoulicious/TarumaeRadio/pkg/database"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/radio"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const presenceInterval = 5 * time.Minute

// flags overriding the environment
type rootFlags struct {
	logLevel  string
	logFormat string
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "tarumae",
		Short:         "Hokko Tarumae radio bot",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Override LOG_FORMAT (json, console)")

	root.AddCommand(
		runCommand(flags),
		probeCommand(flags),
		slashCommand(flags),
		doctorCommand(flags),
	)
	return root
}

// tunables returns the engine configuration with flag overrides applied
func (f *rootFlags) tunables() (*pipeline.PipelineConfig, pipeline.Logger, error) {
	tunables, err := config.Tunables()
	if err != nil {
		return nil, nil, err
	}

	logging := tunables.Logging
	if f.logLevel != "" {
		logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		logging.Format = f.logFormat
	}
	return tunables, pipeline.NewStructuredLogger(logging), nil
}

func runCommand(flags *rootFlags) *cobra.Command {
	var registerSlash bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve the radio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, flags, registerSlash)
		},
	}
	cmd.Flags().BoolVar(&registerSlash, "register-slash", false, "Register the slash commands after connecting")
	return cmd
}

func run(ctx context.Context, flags *rootFlags, registerSlash bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	tunables, logger, err := flags.tunables()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := pipeline.NewMetrics(registry)
	if tunables.Metrics.Addr != "" {
		srv := serveMetrics(tunables.Metrics.Addr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// the cold queue store is optional, playback works without it
	var store database.DatabaseManager
	if dm, err := openStore(tunables, logger); err != nil {
		logger.Warn("cold queue store unavailable", pipeline.Error(err))
	} else {
		store = dm
		defer dm.Close()
	}

	chain := process.NewChain(tunables, logger, metrics)
	dispatcher := source.NewDispatcher(tunables, chain, nil, logger, metrics)
	engine := radio.NewEngine(tunables, dispatcher, logger, metrics)

	scheduler := cron.NewScheduler(logger)
	defer scheduler.Stop()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	var sessions *session.Manager
	presenceManager := presence.NewPresenceManager(dg, func() (int, int) {
		return len(dg.State.Guilds), sessions.Len()
	}, logger)

	sessions = session.NewManager(session.Options{
		Config:     tunables,
		Dispatcher: dispatcher,
		Radio:      engine,
		Scheduler:  scheduler,
		Voice: &session.DiscordVoice{
			Session: dg,
			Retries: tunables.Session.JoinRetries,
			Timeout: tunables.Session.JoinTimeout,
			Logger:  logger,
		},
		Notifier: &session.DiscordNotifier{Session: dg, Logger: logger},
		Store:    store,
		Presence: presenceManager,
		Logger:   logger,
		Metrics:  metrics,
	})

	env := &commands.Env{
		Sessions:  sessions,
		Scheduler: scheduler,
		Locate: func(guildID, userID string) (string, error) {
			return common.UserVoiceChannel(dg.State, guildID, userID)
		},
		OwnerID: cfg.OwnerID,
		Logger:  logger,
	}
	dg.AddHandler(handlers.MessageHandler(env, cfg.Prefix))
	dg.AddHandler(handlers.SlashCommandHandler(env))

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	if registerSlash {
		if err := commands.RegisterSlashCommands(dg, logger); err != nil {
			logger.Warn("slash commands not registered", pipeline.Error(err))
		}
	}

	presenceManager.UpdateDefaultPresence()
	presenceManager.StartPeriodicUpdates(ctx, presenceInterval)

	logger.Info("bot is running", pipeline.String("prefix", cfg.Prefix))
	<-ctx.Done()

	logger.Info("shutting down")
	// leaving stores every cold queue before the store closes
	sessions.Close()
	return nil
}

func openStore(tunables *pipeline.PipelineConfig, logger pipeline.Logger) (database.DatabaseManager, error) {
	dm, err := database.NewDatabaseManager(database.DefaultDatabaseConfig(tunables.Database.Path), logger)
	if err != nil {
		return nil, err
	}
	if err := dm.Connect(); err != nil {
		return nil, err
	}
	return dm, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger pipeline.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", pipeline.Error(err))
		}
	}()
	logger.Info("serving metrics", pipeline.String("addr", addr))
	return srv
}
