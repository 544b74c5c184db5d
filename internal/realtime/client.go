package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

// Client is one authenticated websocket connection.
type Client struct {
	id        string
	recipient audience.Recipient
	rooms     []string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	cfg  config.RealtimeConfig
	hub  *Hub
	logg *logger.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, recipient audience.Recipient, cfg config.RealtimeConfig, logg *logger.Logger) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:        uuid.NewString(),
		recipient: recipient,
		rooms:     audience.MemberRooms(recipient),
		conn:      conn,
		send:      make(chan []byte, buffer),
		cfg:       cfg,
		hub:       hub,
		logg:      logg,
	}
}

// ID identifies the connection in logs.
func (c *Client) ID() string {
	return c.id
}

// Rooms returns the rooms the connection joined.
func (c *Client) Rooms() []string {
	return append([]string(nil), c.rooms...)
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// run pumps the connection until either side closes it.
func (c *Client) run(ctx context.Context) {
	ctx = c.logg.WithConnectionID(ctx, c.id)
	go c.writePump(ctx)
	c.readPump(ctx)
	c.hub.unregister(c)
}

// readPump only services control frames; clients never send commands.
func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logg.Warn(ctx, "realtime.read_failed: "+err.Error())
			}
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logg.Debug(ctx, "realtime.write_failed: "+err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
