package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const apiPrefix = "/api/v4"

// Options configures a Mattermost client.
type Options struct {
	// ServerURL is scheme://host[:port] without the /api/v4 suffix.
	ServerURL string
	Token     string

	// NetworkDebug logs every HTTP exchange at debug level.
	NetworkDebug bool

	HTTPClient   *http.Client
	Logger       *slog.Logger
	PingInterval time.Duration
}

// Mattermost talks to the Mattermost REST v4 API and websocket.
type Mattermost struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	dialer       *websocket.Dialer
	logger       *slog.Logger
	pingInterval time.Duration

	mu sync.Mutex
	me *User
}

// NewMattermost creates a new Mattermost client.
func NewMattermost(opts Options) *Mattermost {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.NetworkDebug {
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		traced := *hc
		traced.Transport = &traceTransport{next: next, logger: logger, token: opts.Token}
		hc = &traced
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &Mattermost{
		baseURL:      strings.TrimRight(opts.ServerURL, "/"),
		token:        opts.Token,
		httpClient:   hc,
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger:       logger,
		pingInterval: ping,
	}
}

// Login verifies the token by fetching the authenticated user.
func (m *Mattermost) Login(ctx context.Context) (User, error) {
	var u mmUser
	if err := m.do(ctx, "login", http.MethodGet, "/users/me", nil, &u); err != nil {
		return User{}, err
	}
	me := User{ID: u.ID, Username: u.Username}
	m.mu.Lock()
	m.me = &me
	m.mu.Unlock()
	return me, nil
}

// CurrentUser returns the authenticated user, from cache when logged in.
func (m *Mattermost) CurrentUser(ctx context.Context) (User, error) {
	m.mu.Lock()
	me := m.me
	m.mu.Unlock()
	if me != nil {
		return *me, nil
	}
	return m.Login(ctx)
}

// TeamByName resolves a team by its URL name.
func (m *Mattermost) TeamByName(ctx context.Context, name string) (Team, error) {
	var t struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	path := "/teams/name/" + url.PathEscape(name)
	if err := m.do(ctx, "get team", http.MethodGet, path, nil, &t); err != nil {
		return Team{}, err
	}
	return Team{ID: t.ID, Name: t.Name}, nil
}

// EnsureDirectChannel finds or creates the direct-message channel between
// the user and itself.
func (m *Mattermost) EnsureDirectChannel(ctx context.Context, userID string) (string, error) {
	var ch mmChannel
	if err := m.do(ctx, "create direct channel", http.MethodPost, "/channels/direct", []string{userID, userID}, &ch); err != nil {
		return "", err
	}
	if ch.ID == "" {
		return "", &DecodeError{What: "direct channel", Err: fmt.Errorf("response has no channel id")}
	}
	return ch.ID, nil
}

// ChannelsForUser lists the channels the user belongs to in a team.
func (m *Mattermost) ChannelsForUser(ctx context.Context, userID, teamID string) ([]Channel, error) {
	var raw []mmChannel
	path := fmt.Sprintf("/users/%s/teams/%s/channels", url.PathEscape(userID), url.PathEscape(teamID))
	if err := m.do(ctx, "list channels", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(raw))
	for _, c := range raw {
		if c.DeleteAt != 0 {
			continue
		}
		channels = append(channels, Channel{ID: c.ID, Name: c.Name, DisplayName: c.DisplayName, Type: c.Type})
	}
	return channels, nil
}

// CreatePost posts a message to a channel.
func (m *Mattermost) CreatePost(ctx context.Context, channelID, message string) (*Post, error) {
	payload := map[string]any{
		"channel_id":      channelID,
		"message":         message,
		"pending_post_id": uuid.NewString(),
	}
	var p mmPost
	if err := m.do(ctx, "create post", http.MethodPost, "/posts", payload, &p); err != nil {
		return nil, err
	}
	post := p.toPost()
	return &post, nil
}

// PostsSince returns the posts created in a channel after since, oldest
// first. Edited and deleted posts that the API also reports are skipped.
func (m *Mattermost) PostsSince(ctx context.Context, channelID string, since time.Time) ([]Post, error) {
	sinceMs := since.UnixMilli()
	path := fmt.Sprintf("/channels/%s/posts?since=%s", url.PathEscape(channelID), strconv.FormatInt(sinceMs, 10))

	var list struct {
		Order []string          `json:"order"`
		Posts map[string]mmPost `json:"posts"`
	}
	if err := m.do(ctx, "list posts", http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(list.Posts))
	for _, p := range list.Posts {
		if p.DeleteAt != 0 || p.CreateAt <= sinceMs {
			continue
		}
		posts = append(posts, p.toPost())
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
	return posts, nil
}

// Connect opens the websocket and sends the authentication challenge.
func (m *Mattermost) Connect(ctx context.Context) (Stream, error) {
	wsURL, err := m.websocketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.token)

	m.logger.Info("Connecting to Mattermost websocket...", "url", wsURL)
	conn, resp, err := m.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("connect websocket: %w", ErrAuth)
		}
		return nil, &NetworkError{Op: "connect websocket", Err: err}
	}

	s := newWSStream(conn, m.logger, m.pingInterval)
	challenge := map[string]any{
		"seq":    s.nextSeq(),
		"action": "authentication_challenge",
		"data":   map[string]string{"token": m.token},
	}
	if err := s.writeJSON(challenge); err != nil {
		conn.Close()
		return nil, &NetworkError{Op: "websocket authentication", Err: err}
	}
	return s, nil
}

func (m *Mattermost) websocketURL() (string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + "/websocket"
	return u.String(), nil
}

func (m *Mattermost) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Op: op}
		var e struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &e) == nil {
			apiErr.ID = e.ID
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &DecodeError{What: op + " response", Payload: truncate(string(respBody), 200), Err: err}
	}
	return nil
}

// --- wire types ---

type mmUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type mmChannel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	DeleteAt    int64  `json:"delete_at"`
}

type mmPost struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	CreateAt  int64  `json:"create_at"`
	DeleteAt  int64  `json:"delete_at"`
}

func (p mmPost) toPost() Post {
	return Post{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		UserID:    p.UserID,
		Message:   p.Message,
		CreatedAt: time.UnixMilli(p.CreateAt),
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
