package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avarcorg/chatops-bot/internal/bot"
	"github.com/avarcorg/chatops-bot/internal/channel"
	"github.com/avarcorg/chatops-bot/internal/cli"
	"github.com/avarcorg/chatops-bot/internal/config"
	"github.com/avarcorg/chatops-bot/internal/logging"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Mattermost and answer messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadFrom(cfgPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  "+err.Error()))
				return errReported
			}
			return runBot(cmd.Context(), cfg)
		},
	}
}

func runBot(parent context.Context, cfg *config.Config) error {
	logger, closeLog, err := logging.Setup(logging.Config{
		Debug:         cfg.Log.Debug,
		Dir:           cfg.Log.Dir,
		RetentionDays: cfg.Log.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverURL := cfg.ServerURL()
	logger.Info("Starting bot", "version", cli.Version, "server", serverURL, "team", cfg.Mattermost.Team)

	client := channel.NewMattermost(channel.Options{
		ServerURL:    serverURL,
		Token:        cfg.Mattermost.Token,
		NetworkDebug: cfg.Mattermost.NetworkDebug,
		Logger:       logger.With("component", "mattermost"),
	})

	b := bot.New(bot.Config{
		Client:         client,
		ServerURL:      serverURL,
		TeamName:       cfg.Mattermost.Team,
		MentionName:    cfg.Bot.MentionName,
		PollInterval:   cfg.Bot.PollInterval,
		ReconnectAfter: cfg.Bot.ReconnectAfter,
		RestartDelay:   cfg.Bot.RestartDelay,
		RestartGrace:   cfg.Bot.RestartGrace,
		Logger:         logger,
	})

	err = b.Run(ctx)
	switch {
	case errors.Is(err, bot.ErrRestartRequested):
		// Exit cleanly; the process manager starts a fresh instance.
		logger.Info("Exiting for restart")
		return nil
	case err != nil:
		logger.Error("Bot failed", "err", err)
		return errReported
	}
	logger.Info("Shut down")
	return nil
}
