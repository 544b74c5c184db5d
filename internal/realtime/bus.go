package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/metrics"
)

// ErrBusUnavailable is returned by Emit and Hub before Start or after Shutdown.
var ErrBusUnavailable = errors.New("realtime bus unavailable")

type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BusOptions wires a Bus. Hub is nil for publish-only processes; Publisher
// is nil for a single instance without fan-out.
type BusOptions struct {
	Hub          *Hub
	Publisher    publisher
	RelayChannel string
	Metrics      *metrics.RealtimeMetrics
	Logger       *logger.Logger
	Clock        func() time.Time
}

// Bus routes deliveries to the local hub and to the other instances.
type Bus struct {
	hub     *Hub
	relay   publisher
	channel string
	origin  string
	started atomic.Bool

	clock   func() time.Time
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
}

// relayMessage is what travels over the relay channel.
type relayMessage struct {
	Origin string `json:"origin"`
	Frame  frame  `json:"frame"`
}

// NewBus validates options and returns a stopped bus.
func NewBus(opts BusOptions) (*Bus, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.Hub == nil && opts.Publisher == nil {
		return nil, fmt.Errorf("hub or relay publisher required")
	}
	if opts.Publisher != nil && opts.RelayChannel == "" {
		return nil, fmt.Errorf("relay channel required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Bus{
		hub:     opts.Hub,
		relay:   opts.Publisher,
		channel: opts.RelayChannel,
		origin:  uuid.NewString(),
		clock:   clock,
		metrics: opts.Metrics,
		logg:    opts.Logger,
	}, nil
}

// Start makes the bus accept deliveries.
func (b *Bus) Start(ctx context.Context) error {
	if b.started.Swap(true) {
		return nil
	}
	b.logg.Info(b.logg.WithField(ctx, "relay", b.relay != nil), "realtime.bus_started")
	return nil
}

// Shutdown stops accepting deliveries and disconnects local connections.
func (b *Bus) Shutdown(ctx context.Context) error {
	if !b.started.Swap(false) {
		return nil
	}
	if b.hub != nil {
		b.hub.Close()
	}
	b.logg.Info(ctx, "realtime.bus_stopped")
	return nil
}

// Hub returns the local hub.
func (b *Bus) Hub() (*Hub, error) {
	if !b.started.Load() || b.hub == nil {
		return nil, ErrBusUnavailable
	}
	return b.hub, nil
}

// Emit dispatches d locally and publishes it for the other instances.
func (b *Bus) Emit(ctx context.Context, d Delivery) error {
	if !b.started.Load() {
		return ErrBusUnavailable
	}
	f, err := newFrame(d, b.clock())
	if err != nil {
		return err
	}

	if b.hub != nil {
		b.hub.Dispatch(ctx, f)
	}
	if b.relay != nil {
		payload, err := json.Marshal(relayMessage{Origin: b.origin, Frame: f})
		if err != nil {
			return fmt.Errorf("encode relay message: %w", err)
		}
		if err := b.relay.Publish(ctx, b.channel, payload); err != nil {
			b.metrics.IncRelayError()
			return fmt.Errorf("publish %s: %w", d.Event, err)
		}
	}
	b.metrics.IncEmitted(string(d.Event))
	return nil
}

// broadcast is Emit for the helper surface: a stopped bus is a no-op.
func (b *Bus) broadcast(ctx context.Context, d Delivery) error {
	if b == nil {
		return nil
	}
	err := b.Emit(ctx, d)
	if errors.Is(err, ErrBusUnavailable) {
		return nil
	}
	return err
}

// NotifyUser pushes to every connection of userID.
func (b *Bus) NotifyUser(ctx context.Context, userID uuid.UUID, event enums.RealtimeEvent, data any) error {
	return b.broadcast(ctx, ToUser(event, userID, data))
}

// NotifyClass pushes to every member of classID.
func (b *Bus) NotifyClass(ctx context.Context, classID uuid.UUID, event enums.RealtimeEvent, data any) error {
	return b.broadcast(ctx, ToClass(event, classID, data))
}

// NotifyAllUsers pushes to every connection.
func (b *Bus) NotifyAllUsers(ctx context.Context, event enums.RealtimeEvent, data any) error {
	return b.broadcast(ctx, ToEveryone(event, data))
}

// NotifyAudience pushes to the connections that pass t's role and class gates.
func (b *Bus) NotifyAudience(ctx context.Context, t audience.Targeting, event enums.RealtimeEvent, data any) error {
	return b.broadcast(ctx, ToAudience(event, t, data))
}

// BroadcastAssignmentNotification pushes an assignment lifecycle event to the class.
func (b *Bus) BroadcastAssignmentNotification(ctx context.Context, classID uuid.UUID, action enums.AssignmentAction, data any) error {
	event, ok := action.Event()
	if !ok {
		return fmt.Errorf("unknown assignment action %q", action)
	}
	return b.NotifyClass(ctx, classID, event, data)
}

// BroadcastGradeNotification pushes a grade lifecycle event to the graded student.
func (b *Bus) BroadcastGradeNotification(ctx context.Context, studentID uuid.UUID, action enums.GradeAction, data any) error {
	event, ok := action.Event()
	if !ok {
		return fmt.Errorf("unknown grade action %q", action)
	}
	return b.NotifyUser(ctx, studentID, event, data)
}

// ForumTarget addresses a forum event. A recipient wins over a class; with
// neither set the event goes to everyone.
type ForumTarget struct {
	ClassID     *uuid.UUID
	RecipientID *uuid.UUID
}

// BroadcastForumNotification pushes a forum lifecycle event.
func (b *Bus) BroadcastForumNotification(ctx context.Context, target ForumTarget, action enums.ForumAction, data any) error {
	event, ok := action.Event()
	if !ok {
		return fmt.Errorf("unknown forum action %q", action)
	}
	switch {
	case target.RecipientID != nil:
		return b.NotifyUser(ctx, *target.RecipientID, event, data)
	case target.ClassID != nil:
		return b.NotifyClass(ctx, *target.ClassID, event, data)
	default:
		return b.NotifyAllUsers(ctx, event, data)
	}
}
