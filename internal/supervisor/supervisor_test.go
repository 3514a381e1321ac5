package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avarcorg/chatops-bot/internal/channel"
)

var errConnect = errors.New("dial tcp: connection refused")

type fakeStream struct {
	events []channel.Event
	block  bool
}

func (f *fakeStream) Listen(ctx context.Context, fn channel.EventHandler) error {
	for _, ev := range f.events {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
	}
	return fmt.Errorf("%w: remote closed", channel.ErrSubscriptionClosed)
}

func (f *fakeStream) Close() error { return nil }

type fakeTransport struct {
	mu       sync.Mutex
	streams  []channel.Stream // returned by successive Connect calls; nil entries fail
	connects int
	sinces   []time.Time
	posts    map[string][]channel.Post // channel id -> posts returned once
	listErr  error
}

func (f *fakeTransport) Connect(context.Context) (channel.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.connects
	f.connects++
	if i < len(f.streams) && f.streams[i] != nil {
		return f.streams[i], nil
	}
	return nil, errConnect
}

func (f *fakeTransport) ChannelsForUser(_ context.Context, userID, teamID string) ([]channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	return []channel.Channel{{ID: "C1"}, {ID: "C2"}}, nil
}

func (f *fakeTransport) PostsSince(_ context.Context, channelID string, since time.Time) ([]channel.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channelID == "C1" {
		f.sinces = append(f.sinces, since)
	}
	posts := f.posts[channelID]
	delete(f.posts, channelID)
	return posts, nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type harness struct {
	t      *testing.T
	clock  *clockwork.FakeClock
	ctx    context.Context
	cancel context.CancelFunc
	posts  chan channel.Post
	states chan State
	done   chan error
}

func start(t *testing.T, tr *fakeTransport, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		posts:  make(chan channel.Post, 16),
		states: make(chan State, 16),
		done:   make(chan error, 1),
	}
	h.ctx, h.cancel = context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(h.cancel)

	cfg.Transport = tr
	cfg.Clock = h.clock
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.OnStateChange = func(s State) { h.states <- s }
	if cfg.Handler == nil {
		cfg.Handler = func(_ context.Context, p channel.Post) error {
			h.posts <- p
			return nil
		}
	}

	s := New(cfg)
	go func() { h.done <- s.Run(h.ctx) }()
	return h
}

// tick waits for the poll loop to sleep, then wakes it.
func (h *harness) tick(d time.Duration) {
	h.t.Helper()
	require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(d)
}

// settle waits until the poll loop is asleep again.
func (h *harness) settle() {
	h.t.Helper()
	require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
}

func (h *harness) nextState() State {
	h.t.Helper()
	select {
	case s := <-h.states:
		return s
	case <-h.ctx.Done():
		h.t.Fatal("timed out waiting for state change")
		return -1
	}
}

func (h *harness) nextPost() channel.Post {
	h.t.Helper()
	select {
	case p := <-h.posts:
		return p
	case <-h.ctx.Done():
		h.t.Fatal("timed out waiting for post")
		return channel.Post{}
	}
}

func (h *harness) stop() error {
	h.cancel()
	return <-h.done
}

func TestStreamCloseFallsBackToPolling(t *testing.T) {
	tr := &fakeTransport{
		streams: []channel.Stream{&fakeStream{events: []channel.Event{
			{Type: channel.EventHello},
			{Type: channel.EventPosted, Post: &channel.Post{ID: "p1", ChannelID: "C1", Message: "from stream"}},
		}}},
		posts: map[string][]channel.Post{
			"C2": {{ID: "p2", ChannelID: "C2", Message: "from poll"}},
		},
	}
	h := start(t, tr, Config{UserID: "BOT", TeamID: "T1"})

	assert.Equal(t, Streaming, h.nextState())
	assert.Equal(t, "from stream", h.nextPost().Message)
	assert.Equal(t, Polling, h.nextState())

	h.tick(DefaultPollInterval)
	assert.Equal(t, "from poll", h.nextPost().Message)

	assert.ErrorIs(t, h.stop(), context.Canceled)
}

func TestReconnectExactlyOnceAfterFifteenMinutes(t *testing.T) {
	tr := &fakeTransport{}
	h := start(t, tr, Config{UserID: "BOT", TeamID: "T1"})

	assert.Equal(t, Polling, h.nextState())
	assert.Equal(t, 1, tr.connectCount())

	cycles := int(DefaultReconnectAfter / DefaultPollInterval)
	for i := 0; i < cycles-1; i++ {
		h.tick(DefaultPollInterval)
	}
	h.settle()
	assert.Equal(t, 1, tr.connectCount(), "no reconnect before 15 minutes")

	h.tick(DefaultPollInterval)
	h.settle()
	assert.Equal(t, 2, tr.connectCount(), "one reconnect at 15 minutes")

	// The failed attempt resets the timer: the next try is 15 minutes later.
	for i := 0; i < cycles-1; i++ {
		h.tick(DefaultPollInterval)
	}
	h.settle()
	assert.Equal(t, 2, tr.connectCount())

	h.tick(DefaultPollInterval)
	h.settle()
	assert.Equal(t, 3, tr.connectCount())

	assert.Empty(t, h.states, "still polling")
	assert.ErrorIs(t, h.stop(), context.Canceled)
}

func TestReconnectSuccessLeavesPolling(t *testing.T) {
	tr := &fakeTransport{
		streams: []channel.Stream{nil, &fakeStream{block: true}},
	}
	h := start(t, tr, Config{PollInterval: 10 * time.Second, ReconnectAfter: 30 * time.Second})

	assert.Equal(t, Polling, h.nextState())
	h.tick(10 * time.Second)
	h.tick(10 * time.Second)
	h.tick(10 * time.Second)
	assert.Equal(t, Streaming, h.nextState())
	assert.Equal(t, 2, tr.connectCount())

	assert.ErrorIs(t, h.stop(), context.Canceled)
}

func TestPollingWatermark(t *testing.T) {
	tr := &fakeTransport{listErr: errors.New("503 service unavailable")}
	h := start(t, tr, Config{})
	t0 := h.clock.Now()

	assert.Equal(t, Polling, h.nextState())

	h.tick(DefaultPollInterval) // list fails: watermark stays at t0
	h.tick(DefaultPollInterval) // fetches since t0, then advances
	h.tick(DefaultPollInterval)
	h.settle()

	tr.mu.Lock()
	sinces := append([]time.Time(nil), tr.sinces...)
	tr.mu.Unlock()

	require.Len(t, sinces, 2)
	assert.Equal(t, t0, sinces[0])
	assert.Equal(t, t0.Add(2*DefaultPollInterval), sinces[1])

	assert.ErrorIs(t, h.stop(), context.Canceled)
}

func TestHandlerErrorStopsStreaming(t *testing.T) {
	restart := errors.New("restart requested")
	tr := &fakeTransport{
		streams: []channel.Stream{&fakeStream{block: true, events: []channel.Event{
			{Type: channel.EventPosted, Post: &channel.Post{ID: "p1", Message: "@bot restart yourself"}},
		}}},
	}
	h := start(t, tr, Config{Handler: func(context.Context, channel.Post) error { return restart }})

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, restart)
	case <-h.ctx.Done():
		t.Fatal("supervisor did not stop")
	}
}

func TestHandlerErrorStopsPolling(t *testing.T) {
	restart := errors.New("restart requested")
	tr := &fakeTransport{
		posts: map[string][]channel.Post{"C1": {{ID: "p1", ChannelID: "C1"}}},
	}
	h := start(t, tr, Config{Handler: func(context.Context, channel.Post) error { return restart }})

	assert.Equal(t, Polling, h.nextState())
	h.tick(DefaultPollInterval)

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, restart)
	case <-h.ctx.Done():
		t.Fatal("supervisor did not stop")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "polling", Polling.String())
	assert.Equal(t, "State(7)", State(7).String())
}
