package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/lms-notifications/api/middleware"
	"github.com/angelmondragon/lms-notifications/api/responses"
	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/internal/enrollments"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

// HubSource hands out the running hub, failing while the bus is stopped.
type HubSource interface {
	Hub() (*realtime.Hub, error)
}

// UnreadCounter computes the unread badge sent when a socket connects.
type UnreadCounter interface {
	CountUnread(ctx context.Context, recipient audience.Recipient) (int64, error)
}

// WebsocketParams wires the realtime endpoint.
type WebsocketParams struct {
	Hubs           HubSource
	Enrollments    enrollments.Provider
	Unread         UnreadCounter
	AllowedOrigins []string
	Logger         *logger.Logger
}

// Websocket upgrades authenticated requests and joins the caller's rooms.
func Websocket(params WebsocketParams) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(params.AllowedOrigins),
	}
	logg := params.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, role, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		hub, err := params.Hubs.Hub()
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "realtime unavailable"))
			return
		}
		recipient, err := enrollments.Resolve(ctx, params.Enrollments, userID, role)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve class memberships"))
			return
		}

		var greeting []realtime.Delivery
		if params.Unread != nil {
			count, err := params.Unread.CountUnread(ctx, recipient)
			if err != nil {
				logg.Warn(ctx, "realtime.unread_count_failed: "+err.Error())
			} else {
				greeting = append(greeting, realtime.ToUser(enums.RealtimeEventNotificationUnreadCount, userID, notifications.UnreadCount{Count: count}))
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			logg.Warn(ctx, "realtime.upgrade_failed: "+err.Error())
			return
		}
		if err := hub.Serve(ctx, conn, recipient, greeting...); err != nil {
			logg.Warn(ctx, "realtime.serve_failed: "+err.Error())
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
