package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/api/middleware"
	"github.com/angelmondragon/lms-notifications/api/responses"
	"github.com/angelmondragon/lms-notifications/api/validators"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
)

const (
	notificationIDParam = "notificationId"
	maxRequestedLimit   = 1000
)

// CreateNotification authors a notification and sends it unless scheduled.
func CreateNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		var body notifications.CreateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CreateNotification(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ListNotifications returns the caller's inbox.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		page, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := listFiltersFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListForRecipient(r.Context(), actor, filters, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetNotification returns one notification visible to the caller.
func GetNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ctx, ok := requireTarget(w, r, svc, logg)
		if !ok {
			return
		}
		view, err := svc.GetByID(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// UnreadNotificationCount returns the caller's unread badge count.
func UnreadNotificationCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		count, err := svc.GetUnreadCount(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, notifications.UnreadCount{Count: count})
	}
}

// MarkNotificationRead records a read receipt for the caller.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ctx, ok := requireTarget(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.MarkRead(ctx, actor, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
	}
}

// MarkAllNotificationsRead marks every visible unread notification as read.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		updated, err := svc.MarkAllRead(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}

// UpdateNotification applies a partial edit.
func UpdateNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ctx, ok := requireTarget(w, r, svc, logg)
		if !ok {
			return
		}
		var body notifications.UpdateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.UpdateNotification(ctx, actor, id, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// DeleteNotification removes a notification and its receipts.
func DeleteNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ctx, ok := requireTarget(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.DeleteNotification(ctx, actor, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, notifications.Deleted{ID: id})
	}
}

// NotificationStats aggregates delivery and read counts.
func NotificationStats(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		kind, err := validators.ParseQueryEnum(r, "type", enums.ParseNotificationType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		priority, err := validators.ParseQueryEnum(r, "priority", enums.ParseNotificationPriority)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.GetStats(r.Context(), actor, notifications.StatsFilters{Type: kind, Priority: priority})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc notifications.Service, logg *logger.Logger) (notifications.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
		return notifications.Actor{}, false
	}
	userID, role, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return notifications.Actor{}, false
	}
	return notifications.Actor{UserID: userID, Role: role}, true
}

// requireTarget resolves the caller and the notification id from the path,
// tagging the log context with the id.
func requireTarget(w http.ResponseWriter, r *http.Request, svc notifications.Service, logg *logger.Logger) (notifications.Actor, uuid.UUID, context.Context, bool) {
	actor, ok := requireActor(w, r, svc, logg)
	if !ok {
		return actor, uuid.Nil, nil, false
	}
	id, err := notificationIDFromPath(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return actor, uuid.Nil, nil, false
	}
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithNotificationID(ctx, id.String())
	}
	return actor, id, ctx, true
}

func notificationIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, notificationIDParam))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification id")
	}
	return id, nil
}

func pageFromQuery(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1<<20)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxRequestedLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}, nil
}

func listFiltersFromQuery(r *http.Request) (notifications.ListFilters, error) {
	var filters notifications.ListFilters
	var err error
	if filters.Type, err = validators.ParseQueryEnum(r, "type", enums.ParseNotificationType); err != nil {
		return filters, err
	}
	if filters.Priority, err = validators.ParseQueryEnum(r, "priority", enums.ParseNotificationPriority); err != nil {
		return filters, err
	}
	if filters.UnreadOnly, err = validators.ParseQueryBool(r, "unreadOnly"); err != nil {
		return filters, err
	}
	return filters, nil
}
