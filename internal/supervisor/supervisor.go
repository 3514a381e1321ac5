// Package supervisor keeps a live message feed: it listens on the websocket
// when it can, falls back to polling the REST API when it cannot, and
// periodically tries to get back to the websocket.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/avarcorg/chatops-bot/internal/channel"
)

const (
	// DefaultPollInterval is the time between two polling cycles.
	DefaultPollInterval = 10 * time.Second
	// DefaultReconnectAfter is how long to stay in polling before trying
	// the websocket again.
	DefaultReconnectAfter = 15 * time.Minute
)

// State is the active transport.
type State int

const (
	Streaming State = iota
	Polling
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Polling:
		return "polling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport is what the supervisor needs from the chat server.
type Transport interface {
	Connect(ctx context.Context) (channel.Stream, error)
	ChannelsForUser(ctx context.Context, userID, teamID string) ([]channel.Channel, error)
	PostsSince(ctx context.Context, channelID string, since time.Time) ([]channel.Post, error)
}

// Handler receives every post. A non-nil error stops the supervisor and is
// returned from Run.
type Handler func(ctx context.Context, post channel.Post) error

// Config holds configuration for creating a Supervisor.
type Config struct {
	Transport Transport
	Handler   Handler
	UserID    string
	TeamID    string

	PollInterval   time.Duration
	ReconnectAfter time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
	// OnStateChange is called from the supervisor goroutine on every
	// transition, including the initial one.
	OnStateChange func(State)
}

// Supervisor owns the transport lifecycle. Run must not be called
// concurrently.
type Supervisor struct {
	transport      Transport
	handler        Handler
	userID         string
	teamID         string
	pollInterval   time.Duration
	reconnectAfter time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	onStateChange  func(State)

	state State
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectAfter <= 0 {
		cfg.ReconnectAfter = DefaultReconnectAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		transport:      cfg.Transport,
		handler:        cfg.Handler,
		userID:         cfg.UserID,
		teamID:         cfg.TeamID,
		pollInterval:   cfg.PollInterval,
		reconnectAfter: cfg.ReconnectAfter,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		onStateChange:  cfg.OnStateChange,
		state:          -1,
	}
}

// Run supervises the feed until ctx is cancelled or the handler returns an
// error. Transport failures never end Run.
func (s *Supervisor) Run(ctx context.Context) error {
	stream, err := s.transport.Connect(ctx)
	if err != nil {
		s.logger.Warn("Websocket unavailable, falling back to polling", "err", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if stream != nil {
			s.setState(Streaming)
			err := stream.Listen(ctx, s.onEvent)
			stream.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, channel.ErrSubscriptionClosed) && !errors.Is(err, channel.ErrAuth) {
				return err
			}
			s.logger.Warn("Websocket connection closed, falling back to polling", "err", err)
		}

		s.setState(Polling)
		stream, err = s.poll(ctx)
		if err != nil {
			return err
		}
	}
}

func (s *Supervisor) onEvent(ctx context.Context, ev channel.Event) error {
	if ev.Type != channel.EventPosted || ev.Post == nil {
		s.logger.Debug("Ignoring websocket event", "event", ev.Type, "seq", ev.Seq)
		return nil
	}
	return s.handler(ctx, *ev.Post)
}

// poll runs polling cycles until a reconnect attempt succeeds, returning
// the new stream.
func (s *Supervisor) poll(ctx context.Context) (channel.Stream, error) {
	start := s.clock.Now()
	watermark := start

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.pollInterval):
		}

		cycleStart := s.clock.Now()
		advanced, err := s.pollOnce(ctx, watermark)
		if err != nil {
			return nil, err
		}
		if advanced {
			watermark = cycleStart
		}

		if s.clock.Since(start) < s.reconnectAfter {
			continue
		}

		s.logger.Info("Attempting to reconnect websocket", "polling_for", s.clock.Since(start).Round(time.Second))
		stream, err := s.transport.Connect(ctx)
		if err == nil {
			s.logger.Info("Websocket reconnected")
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Websocket reconnect failed, continuing to poll", "err", err)
		start = s.clock.Now()
	}
}

// pollOnce fetches and dispatches posts newer than since across all the
// bot's channels. It reports whether every fetch succeeded, so the caller
// only advances the watermark when nothing was missed. Only handler errors
// are returned.
func (s *Supervisor) pollOnce(ctx context.Context, since time.Time) (bool, error) {
	channels, err := s.transport.ChannelsForUser(ctx, s.userID, s.teamID)
	if err != nil {
		s.logger.Error("Polling: failed to list channels", "err", err)
		return false, nil
	}

	complete := true
	for _, ch := range channels {
		posts, err := s.transport.PostsSince(ctx, ch.ID, since)
		if err != nil {
			s.logger.Error("Polling: failed to fetch posts", "channel", ch.ID, "err", err)
			complete = false
			continue
		}
		for _, post := range posts {
			if err := s.handler(ctx, post); err != nil {
				return false, err
			}
		}
	}
	return complete, nil
}

func (s *Supervisor) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.logger.Info("Transport state changed", "state", state)
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}
