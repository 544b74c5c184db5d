package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/lms-notifications/api/middleware"
	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
)

type staticHubs struct {
	hub *realtime.Hub
	err error
}

func (s staticHubs) Hub() (*realtime.Hub, error) {
	return s.hub, s.err
}

type classProvider struct {
	classIDs []uuid.UUID
	err      error
}

func (p classProvider) ClassIDs(context.Context, uuid.UUID, enums.UserRole) ([]uuid.UUID, error) {
	return p.classIDs, p.err
}

func (p classProvider) IsTeacherAssigned(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

func (p classProvider) CountAudience(context.Context, audience.Targeting) (int64, error) {
	return 0, nil
}

type fixedUnread int64

func (f fixedUnread) CountUnread(context.Context, audience.Recipient) (int64, error) {
	return int64(f), nil
}

func identityWrapper(userID uuid.UUID, role enums.UserRole, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), userID, role)))
	})
}

func TestWebsocketGreetsWithUnreadCount(t *testing.T) {
	hub := realtime.NewHub(config.RealtimeConfig{}, nil, testLogger())
	defer hub.Close()

	userID := uuid.New()
	classID := uuid.New()
	handler := Websocket(WebsocketParams{
		Hubs:        staticHubs{hub: hub},
		Enrollments: classProvider{classIDs: []uuid.UUID{classID}},
		Unread:      fixedUnread(4),
		Logger:      testLogger(),
	})
	server := httptest.NewServer(identityWrapper(userID, enums.UserRoleStudent, handler))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	var envelope realtime.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("decode greeting: %v", err)
	}
	if envelope.Event != enums.RealtimeEventNotificationUnreadCount {
		t.Fatalf("unexpected event %s", envelope.Event)
	}
	var count notifications.UnreadCount
	if err := json.Unmarshal(envelope.Data, &count); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if count.Count != 4 {
		t.Fatalf("expected 4 unread got %d", count.Count)
	}

	deadline := time.Now().Add(time.Second)
	for hub.RoomSize(audience.ClassRoom(classID)) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected connection to join class room")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketUnavailableHub(t *testing.T) {
	handler := Websocket(WebsocketParams{
		Hubs:        staticHubs{err: errors.New("bus not started")},
		Enrollments: classProvider{},
		Logger:      testLogger(),
	})
	req := authed(httptest.NewRequest(http.MethodGet, "/ws", nil), uuid.New(), enums.UserRoleStudent)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestWebsocketEnrollmentLookupFails(t *testing.T) {
	hub := realtime.NewHub(config.RealtimeConfig{}, nil, testLogger())
	defer hub.Close()
	handler := Websocket(WebsocketParams{
		Hubs:        staticHubs{hub: hub},
		Enrollments: classProvider{err: errors.New("connection refused")},
		Logger:      testLogger(),
	})
	req := authed(httptest.NewRequest(http.MethodGet, "/ws", nil), uuid.New(), enums.UserRoleStudent)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), string(pkgerrors.CodeDependency)) {
		t.Fatalf("expected dependency error body, got %s", resp.Body.String())
	}
	if hub.ConnectionCount() != 0 {
		t.Fatal("no connection should be registered")
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatalf("expected default same-host check when no origins configured")
	}
	check := originChecker([]string{"https://app.example.edu/"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Fatalf("expected request without origin allowed")
	}
	req.Header.Set("Origin", "https://app.example.edu")
	if !check(req) {
		t.Fatalf("expected listed origin allowed")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Fatalf("expected unlisted origin rejected")
	}
}
