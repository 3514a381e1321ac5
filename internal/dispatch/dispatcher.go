package dispatch

import (
	"context"
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/avarcorg/chatops-bot/internal/channel"
	"github.com/avarcorg/chatops-bot/internal/router"
)

// ErrRestartRequested is returned by Dispatch after an operator asked the
// bot to restart itself.
var ErrRestartRequested = errors.New("restart requested")

const defaultSeenSize = 1024

// Poster sends posts to a channel.
type Poster interface {
	CreatePost(ctx context.Context, channelID, message string) (*channel.Post, error)
}

// Config holds configuration for creating a Dispatcher.
type Config struct {
	Poster    Poster
	Router    *router.Router
	BotUserID string
	Logger    *slog.Logger
	// SeenSize bounds the number of post ids remembered for deduplication.
	SeenSize int
}

// Dispatcher turns inbound posts into replies.
type Dispatcher struct {
	poster    Poster
	router    *router.Router
	botUserID string
	logger    *slog.Logger
	seen      *lru.Cache[string, struct{}]
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	size := cfg.SeenSize
	if size <= 0 {
		size = defaultSeenSize
	}
	seen, _ := lru.New[string, struct{}](size)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		poster:    cfg.Poster,
		router:    cfg.Router,
		botUserID: cfg.BotUserID,
		logger:    logger,
		seen:      seen,
	}
}

// Dispatch handles one inbound post. Send failures are logged, never
// returned; the only error is ErrRestartRequested.
func (d *Dispatcher) Dispatch(ctx context.Context, post channel.Post) error {
	if post.UserID == d.botUserID {
		return nil
	}
	if post.ID != "" {
		if seen, _ := d.seen.ContainsOrAdd(post.ID, struct{}{}); seen {
			d.logger.Debug("Skipping duplicate post", "post", post.ID)
			return nil
		}
	}

	d.logger.Info("New message received", "channel", post.ChannelID, "user", post.UserID, "preview", truncate(post.Message, 80))

	decision := d.router.Route(router.Tokenize(post.Message))
	if decision.Empty() {
		d.logger.Debug("Message not directed at the bot and contains no keywords", "channel", post.ChannelID)
		return nil
	}

	for _, reply := range decision.Replies {
		d.send(ctx, post.ChannelID, reply)
	}

	if decision.Restart {
		d.logger.Warn("Restart requested", "channel", post.ChannelID, "user", post.UserID)
		return ErrRestartRequested
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, channelID, message string) {
	d.logger.Info("Sending reply", "channel", channelID, "preview", truncate(message, 80))
	if _, err := d.poster.CreatePost(ctx, channelID, message); err != nil {
		d.logger.Error("Failed to send reply", "channel", channelID, "err", err)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
