// Package realtime pushes events to connected websocket clients grouped into
// user, role and class rooms.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Delivery is one event addressed to a set of rooms or to every connection.
type Delivery struct {
	Event    enums.RealtimeEvent
	Data     any
	Rooms    []string
	Everyone bool
	// Targeting, when set, is re-checked per connection before sending.
	Targeting *audience.Targeting
}

// ToAudience addresses the rooms that can contain members of t's audience.
func ToAudience(event enums.RealtimeEvent, t audience.Targeting, data any) Delivery {
	route := audience.Rooms(t)
	return Delivery{
		Event:     event,
		Data:      data,
		Rooms:     route.Rooms,
		Everyone:  route.Everyone,
		Targeting: &t,
	}
}

// ToUser addresses every connection of one user.
func ToUser(event enums.RealtimeEvent, userID uuid.UUID, data any) Delivery {
	return Delivery{Event: event, Data: data, Rooms: []string{audience.UserRoom(userID)}}
}

// ToClass addresses every member of one class.
func ToClass(event enums.RealtimeEvent, classID uuid.UUID, data any) Delivery {
	return Delivery{Event: event, Data: data, Rooms: []string{audience.ClassRoom(classID)}}
}

// ToEveryone addresses every connection.
func ToEveryone(event enums.RealtimeEvent, data any) Delivery {
	return Delivery{Event: event, Data: data, Everyone: true}
}

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Event     enums.RealtimeEvent `json:"event"`
	Data      json.RawMessage     `json:"data"`
	Audience  *AudienceRef        `json:"audience,omitempty"`
	EmittedAt time.Time           `json:"emittedAt"`
}

// AudienceRef describes who a notification-scoped event is meant for.
type AudienceRef struct {
	ReceiverRole enums.ReceiverRole `json:"receiverRole"`
	ClassID      *uuid.UUID         `json:"classId,omitempty"`
}

// Targeting converts the reference back into audience targeting.
func (a *AudienceRef) Targeting() *audience.Targeting {
	if a == nil {
		return nil
	}
	return &audience.Targeting{ReceiverRole: a.ReceiverRole, ClassID: a.ClassID}
}

// frame is a routed envelope; it is also the unit relayed between instances.
type frame struct {
	Rooms    []string `json:"rooms,omitempty"`
	Everyone bool     `json:"everyone,omitempty"`
	Envelope Envelope `json:"envelope"`
}

var errNoRoute = errors.New("delivery has no rooms")

func newFrame(d Delivery, now time.Time) (frame, error) {
	if d.Event == "" {
		return frame{}, errors.New("delivery event required")
	}
	if !d.Everyone && len(d.Rooms) == 0 {
		return frame{}, errNoRoute
	}
	data, err := json.Marshal(d.Data)
	if err != nil {
		return frame{}, fmt.Errorf("encode %s payload: %w", d.Event, err)
	}
	env := Envelope{Event: d.Event, Data: data, EmittedAt: now.UTC()}
	if d.Targeting != nil {
		env.Audience = &AudienceRef{ReceiverRole: d.Targeting.ReceiverRole, ClassID: d.Targeting.ClassID}
	}
	return frame{Rooms: d.Rooms, Everyone: d.Everyone, Envelope: env}, nil
}
