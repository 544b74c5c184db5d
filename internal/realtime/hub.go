package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

// ErrHubClosed is returned when a connection registers after shutdown.
var ErrHubClosed = errors.New("realtime hub closed")

// Hub tracks the connections on this instance and the rooms they joined.
// Membership changes only when a connection registers or unregisters.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	closed  bool

	cfg     config.RealtimeConfig
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
}

// NewHub builds an empty hub.
func NewHub(cfg config.RealtimeConfig, m *metrics.RealtimeMetrics, logg *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		cfg:     withDefaults(cfg),
		metrics: m,
		logg:    logg,
	}
}

func withDefaults(cfg config.RealtimeConfig) config.RealtimeConfig {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return cfg
}

// Serve joins conn to the recipient's rooms, queues greeting for this
// connection only and pumps it until it closes.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, recipient audience.Recipient, greeting ...Delivery) error {
	payloads := make([][]byte, 0, len(greeting))
	for _, d := range greeting {
		payload, err := encodeDirect(d)
		if err != nil {
			h.logg.Error(ctx, "realtime.encode_greeting", err)
			continue
		}
		payloads = append(payloads, payload)
	}

	c := newClient(h, conn, recipient, h.cfg, h.logg)
	if err := h.register(c, payloads...); err != nil {
		_ = conn.Close()
		return err
	}
	c.run(ctx)
	return nil
}

func encodeDirect(d Delivery) ([]byte, error) {
	d.Rooms, d.Everyone = nil, true
	f, err := newFrame(d, time.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(f.Envelope)
}

// register adds c to the hub and queues greeting ahead of any broadcast. Both
// happen under the lock so Close cannot shut the queue in between.
func (h *Hub) register(c *Client, greeting ...[]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	for _, payload := range greeting {
		c.enqueue(payload)
	}
	h.metrics.ConnectionOpened()
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if removed {
		h.metrics.ConnectionClosed()
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	for _, room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.closeSend()
	return true
}

// Dispatch queues f on every addressed connection and returns how many
// connections received it. Connections whose queue is full are dropped.
func (h *Hub) Dispatch(ctx context.Context, f frame) int {
	payload, err := json.Marshal(f.Envelope)
	if err != nil {
		h.logg.Error(ctx, "realtime.encode_envelope", err)
		return 0
	}
	targeting := f.Envelope.Audience.Targeting()

	var (
		sent int
		slow []*Client
	)
	h.mu.RLock()
	for c := range h.targetsLocked(f) {
		if targeting != nil && !audience.MatchesTargeting(*targeting, c.recipient) {
			continue
		}
		if c.enqueue(payload) {
			sent++
			continue
		}
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.metrics.IncDropped()
		h.logg.Warn(h.logg.WithConnectionID(ctx, c.id), "realtime.slow_connection_dropped")
		h.unregister(c)
	}
	return sent
}

func (h *Hub) targetsLocked(f frame) map[*Client]struct{} {
	if f.Everyone {
		return h.clients
	}
	out := make(map[*Client]struct{})
	for _, room := range f.Rooms {
		for c := range h.rooms[room] {
			out[c] = struct{}{}
		}
	}
	return out
}

// Close disconnects every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var removed int
	for c := range h.clients {
		if h.removeLocked(c) {
			removed++
		}
	}
	h.mu.Unlock()
	for i := 0; i < removed; i++ {
		h.metrics.ConnectionClosed()
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
