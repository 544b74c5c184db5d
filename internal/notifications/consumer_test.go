package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/events"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

type idleReceiver struct{}

func (idleReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

type stubClaimer struct {
	claimed  map[uuid.UUID]bool
	released []uuid.UUID
	err      error
}

func (s *stubClaimer) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.claimed == nil {
		s.claimed = map[uuid.UUID]bool{}
	}
	if s.claimed[eventID] {
		return false, nil
	}
	s.claimed[eventID] = true
	return true, nil
}

func (s *stubClaimer) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(s.claimed, eventID)
	s.released = append(s.released, eventID)
	return nil
}

type broadcastCall struct {
	kind   string
	target uuid.UUID
	forum  realtime.ForumTarget
	action string
}

type recordingBroadcaster struct {
	calls []broadcastCall
	err   error
}

func (r *recordingBroadcaster) BroadcastAssignmentNotification(_ context.Context, classID uuid.UUID, action enums.AssignmentAction, _ any) error {
	r.calls = append(r.calls, broadcastCall{kind: "assignment", target: classID, action: string(action)})
	return r.err
}

func (r *recordingBroadcaster) BroadcastGradeNotification(_ context.Context, studentID uuid.UUID, action enums.GradeAction, _ any) error {
	r.calls = append(r.calls, broadcastCall{kind: "grade", target: studentID, action: string(action)})
	return r.err
}

func (r *recordingBroadcaster) BroadcastForumNotification(_ context.Context, target realtime.ForumTarget, action enums.ForumAction, _ any) error {
	r.calls = append(r.calls, broadcastCall{kind: "forum", forum: target, action: string(action)})
	return r.err
}

func newTestConsumer(t *testing.T, bus Broadcaster, guard claimer) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(idleReceiver{}, bus, guard, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer
}

func domainMessage(t *testing.T, eventType enums.DomainEventType, eventID uuid.UUID, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := json.Marshal(events.Envelope{Version: 1, EventID: eventID, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "msg-" + eventID.String()[:8],
		Data:       body,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerRelaysAssignmentToClass(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{}
	consumer := newTestConsumer(t, bus, &stubClaimer{})
	classID := uuid.New()

	result := consumer.process(context.Background(), domainMessage(t, enums.DomainEventAssignmentDeadlineReminder, uuid.New(),
		events.AssignmentEvent{AssignmentID: uuid.New(), ClassID: classID, Title: "Essay"}))
	if !result.ack || result.nack {
		t.Fatalf("expected ack result, got %+v", result)
	}
	if len(bus.calls) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(bus.calls))
	}
	call := bus.calls[0]
	if call.kind != "assignment" || call.target != classID || call.action != string(enums.AssignmentActionDeadlineReminder) {
		t.Fatalf("unexpected broadcast %+v", call)
	}
}

func TestConsumerRelaysGradeAndForum(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{}
	consumer := newTestConsumer(t, bus, &stubClaimer{})
	studentID := uuid.New()
	authorID := uuid.New()

	consumer.process(context.Background(), domainMessage(t, enums.DomainEventGradeUpdated, uuid.New(),
		events.GradeEvent{GradeID: uuid.New(), StudentID: studentID}))
	consumer.process(context.Background(), domainMessage(t, enums.DomainEventForumPostLiked, uuid.New(),
		events.ForumEvent{PostID: uuid.New(), AuthorID: uuid.New(), RecipientID: &authorID}))

	if len(bus.calls) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(bus.calls))
	}
	if bus.calls[0].kind != "grade" || bus.calls[0].target != studentID || bus.calls[0].action != string(enums.GradeActionUpdated) {
		t.Fatalf("unexpected grade broadcast %+v", bus.calls[0])
	}
	forum := bus.calls[1]
	if forum.kind != "forum" || forum.forum.RecipientID == nil || *forum.forum.RecipientID != authorID {
		t.Fatalf("unexpected forum broadcast %+v", forum)
	}
}

func TestConsumerSkipsDuplicates(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{}
	consumer := newTestConsumer(t, bus, &stubClaimer{})
	eventID := uuid.New()
	msg := domainMessage(t, enums.DomainEventGradeCreated, eventID, events.GradeEvent{GradeID: uuid.New(), StudentID: uuid.New()})

	first := consumer.process(context.Background(), msg)
	second := consumer.process(context.Background(), msg)
	if !first.ack || !second.ack {
		t.Fatalf("expected both deliveries acked")
	}
	if len(bus.calls) != 1 {
		t.Fatalf("expected duplicate to be skipped, got %d broadcasts", len(bus.calls))
	}
}

func TestConsumerAcksPoisonMessages(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{}
	consumer := newTestConsumer(t, bus, &stubClaimer{})

	cases := map[string]*pubsub.Message{
		"bad json":      {Data: []byte("not json"), Attributes: map[string]string{"event_type": string(enums.DomainEventGradeCreated)}},
		"unknown event": domainMessage(t, "quiz.graded", uuid.New(), map[string]string{"x": "y"}),
		"missing id":    domainMessage(t, enums.DomainEventGradeCreated, uuid.Nil, events.GradeEvent{StudentID: uuid.New()}),
		"missing class": domainMessage(t, enums.DomainEventAssignmentCreated, uuid.New(), events.AssignmentEvent{AssignmentID: uuid.New()}),
	}
	for name, msg := range cases {
		result := consumer.process(context.Background(), msg)
		if !result.ack || result.nack {
			t.Fatalf("%s: expected ack, got %+v", name, result)
		}
	}
	if len(bus.calls) != 0 {
		t.Fatalf("expected nothing broadcast, got %d", len(bus.calls))
	}
}

func TestConsumerReleasesClaimWhenRelayFails(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{err: errors.New("redis down")}
	guard := &stubClaimer{}
	consumer := newTestConsumer(t, bus, guard)
	eventID := uuid.New()

	result := consumer.process(context.Background(), domainMessage(t, enums.DomainEventForumPostCreated, eventID,
		events.ForumEvent{PostID: uuid.New(), AuthorID: uuid.New()}))
	if !result.nack {
		t.Fatalf("expected nack result")
	}
	if len(guard.released) != 1 || guard.released[0] != eventID {
		t.Fatalf("expected claim released, got %v", guard.released)
	}
	if guard.claimed[eventID] {
		t.Fatalf("expected event claimable again")
	}
}

func TestConsumerNacksWhenGuardFails(t *testing.T) {
	t.Parallel()

	bus := &recordingBroadcaster{}
	consumer := newTestConsumer(t, bus, &stubClaimer{err: errors.New("redis timeout")})

	result := consumer.process(context.Background(), domainMessage(t, enums.DomainEventGradeCreated, uuid.New(),
		events.GradeEvent{GradeID: uuid.New(), StudentID: uuid.New()}))
	if !result.nack {
		t.Fatalf("expected nack result")
	}
	if len(bus.calls) != 0 {
		t.Fatalf("expected no broadcast")
	}
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if _, err := NewConsumer(nil, &recordingBroadcaster{}, &stubClaimer{}, logg); err == nil {
		t.Fatalf("expected missing subscription to fail")
	}
	if _, err := NewConsumer(idleReceiver{}, nil, &stubClaimer{}, logg); err == nil {
		t.Fatalf("expected missing bus to fail")
	}
}
