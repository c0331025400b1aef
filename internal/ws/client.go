package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ekh_mining/internal/domain"
	"ekh_mining/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

// Source is the session the client streams from.
type Source interface {
	SubscribeToProfileUpdates(fn func(domain.UserProfile)) (unsubscribe func())
	Profile() *domain.UserProfile
	SilentRefreshProfile(ctx context.Context)
}

// Client pushes profile snapshots to one websocket connection.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	source Source
	done   chan struct{}
	once   sync.Once
}

func NewClient(userID string, conn *websocket.Conn, source Source) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		source: source,
		done:   make(chan struct{}),
	}
}

// Run streams until the peer goes away or ctx ends.
func (c *Client) Run(ctx context.Context) {
	ctx = logger.ContextWith(ctx, "user_id", c.UserID)
	log := logger.WithContext(ctx)

	unsubscribe := c.source.SubscribeToProfileUpdates(func(p domain.UserProfile) {
		c.push(Message{Type: TypeProfile, Profile: &p})
	})
	defer unsubscribe()

	go c.writePump()

	c.push(Message{Type: TypeReady})
	if p := c.source.Profile(); p != nil {
		c.push(Message{Type: TypeProfile, Profile: p})
	}

	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	log.Debug("profile stream opened")
	c.readPump(ctx)
	log.Debug("profile stream closed")
}

// push never blocks: a client that can't keep up misses snapshots, the
// next one carries the full state anyway.
func (c *Client) push(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.Send <- b:
	default:
		logger.Warn("profile stream buffer full, dropping message", "user_id", c.UserID, "type", m.Type)
	}
}

//read
func (c *Client) readPump(ctx context.Context) {
	defer c.close()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithContext(ctx).Debug("profile stream read error", "error", err)
			}
			return
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			c.push(Message{Type: TypeError, Error: "invalid message"})
			continue
		}
		switch m.Type {
		case TypeRefresh:
			c.source.SilentRefreshProfile(ctx)
		case TypePing:
			c.push(Message{Type: TypePong})
		default:
			c.push(Message{Type: TypeError, Error: "unknown message type"})
		}
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}
