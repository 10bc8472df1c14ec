package mindwell

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mindwell-dev/mindwell/internal/broker"
	"github.com/mindwell-dev/mindwell/internal/domain"
)

// Subscriber is one live event stream. Lifecycle is explicit: the
// caller owns the connection, decides when to reconnect and does a
// catch-up fetch after any gap. There is no shared or ambient socket.
type Subscriber struct {
	conn   *websocket.Conn
	events chan broker.Event

	closeOnce sync.Once
	err       error
}

// Subscribe opens a websocket stream for a single thread.
func (c *APIClient) Subscribe(threadId domain.ThreadId) (*Subscriber, error) {
	return c.dialSubscription(fmt.Sprintf("/v1/threads/%s/subscribe", threadId))
}

// SubscribeEvents opens the caller's notification stream: events for
// every thread they may view.
func (c *APIClient) SubscribeEvents() (*Subscriber, error) {
	return c.dialSubscription("/v1/events")
}

func (c *APIClient) dialSubscription(path string) (*Subscriber, error) {
	url := wsURL(c.BaseURL) + path

	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	s := &Subscriber{conn: conn, events: make(chan broker.Event, 16)}
	go s.readLoop()
	return s, nil
}

func wsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

// Events delivers pushed events in arrival order. The channel closes
// when the stream ends; check Err to distinguish a clean Close from a
// broken connection.
func (s *Subscriber) Events() <-chan broker.Event {
	return s.events
}

func (s *Subscriber) Err() error {
	return s.err
}

func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *Subscriber) readLoop() {
	defer close(s.events)
	for {
		var event broker.Event
		if err := s.conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			s.Close()
			return
		}
		s.events <- event
	}
}
