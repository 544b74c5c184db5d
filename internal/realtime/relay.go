package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (*goredis.PubSub, error)
}

// Relay feeds deliveries published by other instances into the local hub.
type Relay struct {
	sub     subscriber
	channel string
	hub     *Hub
	origin  string
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
}

// NewRelay binds a relay to bus. The bus must own a hub.
func NewRelay(sub subscriber, bus *Bus) (*Relay, error) {
	if sub == nil {
		return nil, fmt.Errorf("relay subscriber required")
	}
	if bus == nil || bus.hub == nil {
		return nil, fmt.Errorf("relay needs a bus with a local hub")
	}
	if bus.channel == "" {
		return nil, fmt.Errorf("relay channel required")
	}
	return &Relay{
		sub:     sub,
		channel: bus.channel,
		hub:     bus.hub,
		origin:  bus.origin,
		metrics: bus.metrics,
		logg:    bus.logg,
	}, nil
}

// Run consumes the relay channel until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ps, err := r.sub.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer ps.Close()

	ctx = r.logg.WithField(ctx, "channel", r.channel)
	r.logg.Info(ctx, "realtime.relay_subscribed")

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(ctx, []byte(msg.Payload))
		}
	}
}

// handle dispatches one relayed frame. Frames this instance published were
// already dispatched locally by Emit.
func (r *Relay) handle(ctx context.Context, payload []byte) int {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.metrics.IncRelayError()
		r.logg.Error(ctx, "realtime.relay_decode", err)
		return 0
	}
	if msg.Origin == r.origin {
		return 0
	}
	return r.hub.Dispatch(ctx, msg.Frame)
}
