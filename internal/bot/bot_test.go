package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avarcorg/chatops-bot/internal/channel"
	"github.com/avarcorg/chatops-bot/internal/router"
)

type scriptedStream struct {
	posts []channel.Post
}

func (s *scriptedStream) Listen(ctx context.Context, fn channel.EventHandler) error {
	for i := range s.posts {
		if err := fn(ctx, channel.Event{Type: channel.EventPosted, Post: &s.posts[i]}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return fmt.Errorf("%w: %v", channel.ErrSubscriptionClosed, ctx.Err())
}

func (s *scriptedStream) Close() error { return nil }

type fakeClient struct {
	mu         sync.Mutex
	loginCalls int
	failLogins int
	panicOnce  bool
	stream     *scriptedStream
	sent       []string
}

func (f *fakeClient) Login(context.Context) (channel.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.panicOnce {
		f.panicOnce = false
		panic("nil map write")
	}
	if f.loginCalls <= f.failLogins {
		return channel.User{}, &channel.NetworkError{Op: "login", Err: fmt.Errorf("connection reset")}
	}
	return channel.User{ID: "BOT", Username: "bot"}, nil
}

func (f *fakeClient) CurrentUser(context.Context) (channel.User, error) {
	return channel.User{ID: "BOT", Username: "bot"}, nil
}

func (f *fakeClient) TeamByName(_ context.Context, name string) (channel.Team, error) {
	return channel.Team{ID: "T1", Name: name}, nil
}

func (f *fakeClient) EnsureDirectChannel(context.Context, string) (string, error) {
	return "DM", nil
}

func (f *fakeClient) ChannelsForUser(context.Context, string, string) ([]channel.Channel, error) {
	return []channel.Channel{{ID: "C1", DisplayName: "Town Square"}}, nil
}

func (f *fakeClient) CreatePost(_ context.Context, channelID, message string) (*channel.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+": "+message)
	return &channel.Post{ChannelID: channelID, Message: message, UserID: "BOT"}, nil
}

func (f *fakeClient) PostsSince(context.Context, string, time.Time) ([]channel.Post, error) {
	return nil, nil
}

func (f *fakeClient) Connect(context.Context) (channel.Stream, error) {
	return f.stream, nil
}

func (f *fakeClient) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newBot(c *fakeClient) *Bot {
	return New(Config{
		Client:       c,
		ServerURL:    "http://localhost:8065",
		TeamName:     "avarc",
		RestartDelay: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunRestartYourself(t *testing.T) {
	c := &fakeClient{
		failLogins: 2,
		stream: &scriptedStream{posts: []channel.Post{
			{ID: "p0", ChannelID: "C1", UserID: "BOT", Message: "@bot restart yourself"},
			{ID: "p1", ChannelID: "C1", UserID: "U2", Message: "@bot hello"},
			{ID: "p2", ChannelID: "C1", UserID: "U2", Message: "@bot restart yourself"},
		}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newBot(c).Run(ctx)
	require.ErrorIs(t, err, ErrRestartRequested)

	assert.Equal(t, 3, c.loginCalls, "two failed bootstraps, then success")
	msgs := c.messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0], "DM: Bot is now active")
	assert.Equal(t, "C1: "+router.DirectReply, msgs[1])
	assert.Equal(t, "C1: "+router.HelloReply, msgs[2])
	assert.Equal(t, "C1: "+router.FarewellReply, msgs[3])
}

func TestRunRecoversFromPanic(t *testing.T) {
	c := &fakeClient{
		panicOnce: true,
		stream: &scriptedStream{posts: []channel.Post{
			{ID: "p1", ChannelID: "C1", UserID: "U2", Message: "bot restart yourself"},
		}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newBot(c).Run(ctx)
	assert.ErrorIs(t, err, ErrRestartRequested)
	assert.Equal(t, 2, c.loginCalls)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := &fakeClient{stream: &scriptedStream{}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- newBot(c).Run(ctx) }()

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
}
