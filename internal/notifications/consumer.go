package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/events"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

const domainEventConsumer = "realtime-domain-events"

var errUnroutable = errors.New("event has no audience")

// Broadcaster is the bus surface domain events are relayed through.
type Broadcaster interface {
	BroadcastAssignmentNotification(ctx context.Context, classID uuid.UUID, action enums.AssignmentAction, data any) error
	BroadcastGradeNotification(ctx context.Context, studentID uuid.UUID, action enums.GradeAction, data any) error
	BroadcastForumNotification(ctx context.Context, target realtime.ForumTarget, action enums.ForumAction, data any) error
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer relays LMS domain events from Pub/Sub onto the realtime bus.
type Consumer struct {
	subscription receiver
	bus          Broadcaster
	registry     *events.DecoderRegistry
	idempotency  claimer
	logg         *logger.Logger
}

// NewConsumer builds a domain event consumer.
func NewConsumer(subscription receiver, bus Broadcaster, guard claimer, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if bus == nil {
		return nil, fmt.Errorf("realtime bus required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		bus:          bus,
		registry:     events.DefaultRegistry(),
		idempotency:  guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.DomainEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	var envelope events.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.Version == 0 {
		envelope.Version = 1
	}

	payload, err := c.registry.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Warn(logCtx, "skipping undecodable event: "+err.Error())
		return processResult{ack: true}
	}
	if envelope.EventID == uuid.Nil {
		c.logg.Warn(logCtx, "event id missing")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID.String())

	first, err := c.idempotency.Claim(ctx, domainEventConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !first {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.relay(ctx, eventType, payload); err != nil {
		if errors.Is(err, errUnroutable) {
			c.logg.Warn(logCtx, "dropping event: "+err.Error())
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "relaying event failed", err)
		if releaseErr := c.idempotency.Release(ctx, domainEventConsumer, envelope.EventID); releaseErr != nil {
			c.logg.Error(logCtx, "idempotency release failed", releaseErr)
		}
		return processResult{nack: true}
	}
	c.logg.Debug(logCtx, "event relayed")
	return processResult{ack: true}
}

func (c *Consumer) relay(ctx context.Context, eventType enums.DomainEventType, payload any) error {
	switch p := payload.(type) {
	case events.AssignmentEvent:
		action, ok := assignmentActions[eventType]
		if !ok || p.ClassID == uuid.Nil {
			return fmt.Errorf("assignment event %s missing class: %w", eventType, errUnroutable)
		}
		return c.bus.BroadcastAssignmentNotification(ctx, p.ClassID, action, p)
	case events.GradeEvent:
		action, ok := gradeActions[eventType]
		if !ok || p.StudentID == uuid.Nil {
			return fmt.Errorf("grade event %s missing student: %w", eventType, errUnroutable)
		}
		return c.bus.BroadcastGradeNotification(ctx, p.StudentID, action, p)
	case events.ForumEvent:
		action, ok := forumActions[eventType]
		if !ok {
			return fmt.Errorf("forum event %s not mapped: %w", eventType, errUnroutable)
		}
		target := realtime.ForumTarget{ClassID: p.ClassID, RecipientID: p.RecipientID}
		return c.bus.BroadcastForumNotification(ctx, target, action, p)
	default:
		return fmt.Errorf("unsupported payload %T", payload)
	}
}

var assignmentActions = map[enums.DomainEventType]enums.AssignmentAction{
	enums.DomainEventAssignmentCreated:          enums.AssignmentActionNew,
	enums.DomainEventAssignmentUpdated:          enums.AssignmentActionUpdated,
	enums.DomainEventAssignmentDeadlineReminder: enums.AssignmentActionDeadlineReminder,
}

var gradeActions = map[enums.DomainEventType]enums.GradeAction{
	enums.DomainEventGradeCreated: enums.GradeActionNew,
	enums.DomainEventGradeUpdated: enums.GradeActionUpdated,
}

var forumActions = map[enums.DomainEventType]enums.ForumAction{
	enums.DomainEventForumPostCreated:    enums.ForumActionNewPost,
	enums.DomainEventForumCommentCreated: enums.ForumActionNewComment,
	enums.DomainEventForumPostLiked:      enums.ForumActionPostLiked,
}
