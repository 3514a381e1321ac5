package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avarcorg/chatops-bot/internal/channel"
)

const noChannelsText = "No channels found."

// Client is what bootstrap needs from the chat server.
type Client interface {
	Login(ctx context.Context) (channel.User, error)
	CurrentUser(ctx context.Context) (channel.User, error)
	TeamByName(ctx context.Context, name string) (channel.Team, error)
	EnsureDirectChannel(ctx context.Context, userID string) (string, error)
	ChannelsForUser(ctx context.Context, userID, teamID string) ([]channel.Channel, error)
	CreatePost(ctx context.Context, channelID, message string) (*channel.Post, error)
}

// Session is the resolved identity of the bot. It is filled in once by Run
// and read-only afterwards.
type Session struct {
	ServerURL string
	TeamName  string
	TeamID    string

	BotUserID   string
	BotUsername string
	// MentionName is the name the bot answers to when addressed directly.
	MentionName string

	// PrivateChannelID is the bot's own direct-message channel. Empty when
	// it could not be resolved.
	PrivateChannelID string
}

// Options holds the inputs of the startup sequence.
type Options struct {
	ServerURL string
	TeamName  string
	// MentionName overrides the bot username as the direct-address name.
	MentionName string
	Logger      *slog.Logger
}

// Run logs in, resolves the team and the bot user, finds the bot's private
// channel and posts the startup announcement there. Login and team errors
// are fatal; the private channel and the announcement are best effort.
func Run(ctx context.Context, c Client, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Logging in to Mattermost...", "server", opts.ServerURL)
	if _, err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	logger.Info("Login successful")

	team, err := c.TeamByName(ctx, opts.TeamName)
	if err != nil {
		return nil, fmt.Errorf("team %q: %w", opts.TeamName, err)
	}

	me, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	logger.Info("Bot user resolved", "user_id", me.ID, "username", me.Username)

	s := &Session{
		ServerURL:   opts.ServerURL,
		TeamName:    team.Name,
		TeamID:      team.ID,
		BotUserID:   me.ID,
		BotUsername: me.Username,
		MentionName: opts.MentionName,
	}
	if s.MentionName == "" {
		s.MentionName = me.Username
	}

	logger.Info("Retrieving bot's private channel...")
	s.PrivateChannelID, err = c.EnsureDirectChannel(ctx, me.ID)
	if err != nil {
		logger.Error("Failed to find or create a private channel for the bot", "err", err)
		return s, nil
	}
	logger.Info("Private channel resolved", "channel", s.PrivateChannelID)

	names := channelNames(ctx, c, logger, me.ID, team.ID)
	announcement := "Bot is now active and ready to assist. Here are the channels you have access to:\n" + names

	logger.Info("Sending announcement to bot's private channel")
	if _, err := c.CreatePost(ctx, s.PrivateChannelID, announcement); err != nil {
		logger.Error("Failed to send startup announcement", "err", err)
	}
	return s, nil
}

func channelNames(ctx context.Context, c Client, logger *slog.Logger, userID, teamID string) string {
	channels, err := c.ChannelsForUser(ctx, userID, teamID)
	if err != nil {
		logger.Error("Error retrieving channel names", "err", err)
		return noChannelsText
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.DisplayName != "" {
			names = append(names, ch.DisplayName)
		}
	}
	if len(names) == 0 {
		return noChannelsText
	}
	logger.Debug("Channel names", "channels", names)
	return strings.Join(names, "\n")
}
