package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsStream is a Mattermost websocket subscription.
type wsStream struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	pingInterval time.Duration

	seq       atomic.Int64
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSStream(conn *websocket.Conn, logger *slog.Logger, pingInterval time.Duration) *wsStream {
	conn.SetReadLimit(1 << 20) // 1MB
	return &wsStream{conn: conn, logger: logger, pingInterval: pingInterval}
}

func (s *wsStream) nextSeq() int64 { return s.seq.Add(1) }

func (s *wsStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Close closes the underlying connection. Safe to call more than once.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Listen reads events until the connection ends or fn returns an error.
func (s *wsStream) Listen(ctx context.Context, fn EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	// Context cancellation closes the conn and unblocks the read.
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	pongWait := 2 * s.pingInterval
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pingLoop(ctx)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrSubscriptionClosed, ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrSubscriptionClosed, err)
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, ok, err := decodeEvent(data)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				return err
			}
			s.logger.Warn("Dropping malformed websocket event", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}
}

func (s *wsStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Warn("Websocket ping failed", "err", err)
				s.Close()
				return
			}
		}
	}
}

// decodeEvent parses one websocket frame. ok is false for frames that are
// not events, such as replies to the authentication challenge.
func decodeEvent(data []byte) (Event, bool, error) {
	var frame struct {
		Event    string          `json:"event"`
		Seq      int64           `json:"seq"`
		Data     json.RawMessage `json:"data"`
		Status   string          `json:"status"`
		SeqReply int64           `json:"seq_reply"`
		Error    *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, false, &DecodeError{What: "websocket frame", Payload: truncate(string(data), 200), Err: err}
	}

	if frame.Event == "" {
		if frame.Status == "FAIL" {
			msg := "rejected"
			if frame.Error != nil {
				msg = frame.Error.Message
			}
			return Event{}, false, fmt.Errorf("websocket reply %d: %s: %w", frame.SeqReply, msg, ErrAuth)
		}
		return Event{}, false, nil
	}

	ev := Event{Type: frame.Event, Seq: frame.Seq}
	if frame.Event != EventPosted {
		return ev, true, nil
	}

	// The post itself is a JSON document embedded as a string.
	var posted struct {
		Post string `json:"post"`
	}
	if err := json.Unmarshal(frame.Data, &posted); err != nil {
		return Event{}, false, &DecodeError{What: "posted event", Payload: truncate(string(frame.Data), 200), Err: err}
	}
	var p mmPost
	if err := json.Unmarshal([]byte(posted.Post), &p); err != nil {
		return Event{}, false, &DecodeError{What: "posted event post", Payload: truncate(posted.Post, 200), Err: err}
	}
	post := p.toPost()
	ev.Post = &post
	return ev, true, nil
}
