// Package bot wires bootstrap, dispatcher and supervisor together and keeps
// them running.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/avarcorg/chatops-bot/internal/bootstrap"
	"github.com/avarcorg/chatops-bot/internal/dispatch"
	"github.com/avarcorg/chatops-bot/internal/router"
	"github.com/avarcorg/chatops-bot/internal/supervisor"
)

// DefaultRestartDelay is the pause between a failure and the next start.
const DefaultRestartDelay = 10 * time.Second

// ErrRestartRequested is returned by Run when an operator asked the bot to
// restart itself. The process should exit successfully and let its process
// manager start it again.
var ErrRestartRequested = dispatch.ErrRestartRequested

// Client is the full chat server surface the bot uses.
type Client interface {
	bootstrap.Client
	supervisor.Transport
}

// Config holds configuration for creating a Bot.
type Config struct {
	Client      Client
	ServerURL   string
	TeamName    string
	MentionName string

	PollInterval   time.Duration
	ReconnectAfter time.Duration
	// RestartDelay is the pause before bootstrapping again after a failure.
	RestartDelay time.Duration
	// RestartGrace is the pause after the farewell post before Run returns
	// ErrRestartRequested, so the post can flush. Zero means no pause.
	RestartGrace time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Bot runs the startup sequence and the connection supervisor, starting
// over after any failure.
type Bot struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Bot.
func New(cfg Config) *Bot {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.RestartGrace < 0 {
		cfg.RestartGrace = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bot{cfg: cfg, clock: cfg.Clock, logger: cfg.Logger}
}

// Run blocks until ctx is cancelled (returning nil) or a restart is
// requested (returning ErrRestartRequested). Every other failure, including
// panics, is logged and followed by a fresh start after RestartDelay.
func (b *Bot) Run(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(b.cfg.RestartDelay), ctx)

	err := backoff.RetryNotify(func() error {
		err := b.runOnce(ctx)
		switch {
		case errors.Is(err, ErrRestartRequested):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		b.logger.Error("Bot stopped with error, restarting", "err", err, "delay", wait)
	})

	if errors.Is(err, ErrRestartRequested) {
		b.logger.Info("Restarting process", "grace", b.cfg.RestartGrace)
		if b.cfg.RestartGrace > 0 {
			select {
			case <-ctx.Done():
			case <-b.clock.After(b.cfg.RestartGrace):
			}
		}
		return ErrRestartRequested
	}
	if ctx.Err() != nil {
		b.logger.Info("Bot stopped")
		return nil
	}
	return err
}

func (b *Bot) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bot panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sess, err := bootstrap.Run(ctx, b.cfg.Client, bootstrap.Options{
		ServerURL:   b.cfg.ServerURL,
		TeamName:    b.cfg.TeamName,
		MentionName: b.cfg.MentionName,
		Logger:      b.logger,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	d := dispatch.New(dispatch.Config{
		Poster:    b.cfg.Client,
		Router:    router.New(sess.MentionName),
		BotUserID: sess.BotUserID,
		Logger:    b.logger,
	})

	sup := supervisor.New(supervisor.Config{
		Transport:      b.cfg.Client,
		Handler:        d.Dispatch,
		UserID:         sess.BotUserID,
		TeamID:         sess.TeamID,
		PollInterval:   b.cfg.PollInterval,
		ReconnectAfter: b.cfg.ReconnectAfter,
		Clock:          b.clock,
		Logger:         b.logger,
	})

	b.logger.Info("Bot started", "team", sess.TeamName, "mention", sess.MentionName)
	return sup.Run(ctx)
}
