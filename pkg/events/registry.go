package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.DomainEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultRegistry registers v1 decoders for every domain event the engine relays.
func DefaultRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for _, t := range []enums.DomainEventType{
		enums.DomainEventAssignmentCreated,
		enums.DomainEventAssignmentUpdated,
		enums.DomainEventAssignmentDeadlineReminder,
	} {
		reg.Register(t, 1, decodeInto[AssignmentEvent])
	}
	for _, t := range []enums.DomainEventType{
		enums.DomainEventGradeCreated,
		enums.DomainEventGradeUpdated,
	} {
		reg.Register(t, 1, decodeInto[GradeEvent])
	}
	for _, t := range []enums.DomainEventType{
		enums.DomainEventForumPostCreated,
		enums.DomainEventForumCommentCreated,
		enums.DomainEventForumPostLiked,
	} {
		reg.Register(t, 1, decodeInto[ForumEvent])
	}
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.DomainEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.DomainEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}
