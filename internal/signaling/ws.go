package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrNotSubscribed = errors.New("channel not subscribed")
	ErrChannelClosed = errors.New("channel closed")
)

// WSChannel implements Channel over a websocket to the signaling server.
// The room token is minted by the server's rooms API and scopes the
// connection to a single room.
type WSChannel struct {
	conn   *websocket.Conn
	events chan Event
	send   chan Frame

	mu         sync.Mutex
	subscribed bool
	closed     bool
	done       chan struct{}
}

// Dial connects to the signaling server and subscribes to roomID.
// The returned channel is live once Dial returns; call Track next.
func Dial(ctx context.Context, baseURL string, roomID, token string) (*WSChannel, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signal url: %w", err)
	}
	u.Path = fmt.Sprintf("/ws/rooms/%s", roomID)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("signaling dial: %w", err)
	}

	c := &WSChannel{
		conn:   conn,
		events: make(chan Event, 64),
		send:   make(chan Frame, 32),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *WSChannel) Track(ctx context.Context, self Member) error {
	return c.trySend(Frame{Type: FrameTrack, Member: &self})
}

func (c *WSChannel) Broadcast(ctx context.Context, event EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast marshal: %w", err)
	}
	return c.trySend(Frame{Type: FrameBroadcast, Event: event, Payload: raw})
}

func (c *WSChannel) Events() <-chan Event { return c.events }

func (c *WSChannel) Leave() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subscribed = false
	c.mu.Unlock()

	// Best effort: tell the server. The frame goes through the send queue so
	// writePump stays the only writer on the socket; it drains the queue and
	// closes the connection when done is observed.
	select {
	case c.send <- Frame{Type: FrameLeave}:
	default:
	}
	close(c.done)
	return nil
}

func (c *WSChannel) trySend(f Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if !c.subscribed {
		c.mu.Unlock()
		return ErrNotSubscribed
	}
	c.mu.Unlock()

	select {
	case c.send <- f:
		return nil
	default:
		// Outbound saturated; messages carry no delivery guarantee anyway.
		log.Warn().Str("module", "signaling.ws").Str("type", f.Type).Msg("send buffer full, dropping")
		return nil
	}
}

func (c *WSChannel) readPump() {
	defer func() {
		log.Info().Str("module", "signaling.ws").Msg("readPump closing")
		_ = c.conn.Close()
		close(c.events)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()
			if !wasClosed {
				log.Error().Err(err).Str("module", "signaling.ws").Msg("readPump read error")
			}
			return
		}
		ev, ok := c.toEvent(f)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *WSChannel) toEvent(f Frame) (Event, bool) {
	switch f.Type {
	case FramePresenceState:
		return PresenceSync{Members: f.Members}, true
	case FramePresenceJoin:
		return PresenceJoin{Members: f.Members}, true
	case FramePresenceLeave:
		return PresenceLeave{Members: f.Members}, true
	case FrameBroadcast:
		return Inbound{Event: f.Event, Payload: f.Payload}, true
	case FrameError:
		log.Warn().Str("module", "signaling.ws").Str("error", f.Error).Msg("server error frame")
		return nil, false
	default:
		log.Warn().Str("module", "signaling.ws").Str("type", f.Type).Msg("unknown frame")
		return nil, false
	}
}

func (c *WSChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				log.Error().Err(err).Str("module", "signaling.ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Flush whatever is queued, the leave frame included.
			for {
				select {
				case f := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteJSON(f); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
