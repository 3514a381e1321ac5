package channel

import (
	"context"
	"time"
)

// Post is a single Mattermost message, inbound or outbound.
type Post struct {
	ID        string
	ChannelID string
	UserID    string
	Message   string
	CreatedAt time.Time
}

// Channel is a channel the bot is a member of.
type Channel struct {
	ID          string
	Name        string
	DisplayName string
	Type        string
}

// User is a Mattermost user account.
type User struct {
	ID       string
	Username string
}

// Team is a Mattermost team.
type Team struct {
	ID   string
	Name string
}

// Event types delivered over the websocket that the bot cares about.
const (
	EventHello  = "hello"
	EventPosted = "posted"
)

// Event is a server push event. Post is set for "posted" events only.
type Event struct {
	Type string
	Seq  int64
	Post *Post
}

// EventHandler is invoked once per event in delivery order. A non-nil
// return ends the subscription and is returned from Listen unchanged.
type EventHandler func(ctx context.Context, ev Event) error

// Stream is an open push subscription.
type Stream interface {
	// Listen blocks until the subscription ends. It returns an error
	// wrapping ErrSubscriptionClosed when the remote side goes away, or the
	// handler's error if the handler stopped it.
	Listen(ctx context.Context, fn EventHandler) error
	Close() error
}
