package controllers

import (
	"net/http"

	"github.com/angelmondragon/lms-notifications/api/responses"
	"github.com/angelmondragon/lms-notifications/api/validators"
	"github.com/angelmondragon/lms-notifications/internal/notifications"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

// AdminListNotifications lists every notification, including scheduled and
// expired ones, for administrators.
func AdminListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
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
		filters, err := adminFiltersFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListAll(r.Context(), actor, filters, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func adminFiltersFromQuery(r *http.Request) (notifications.AdminFilters, error) {
	var filters notifications.AdminFilters
	var err error
	if filters.Type, err = validators.ParseQueryEnum(r, "type", enums.ParseNotificationType); err != nil {
		return filters, err
	}
	if filters.Priority, err = validators.ParseQueryEnum(r, "priority", enums.ParseNotificationPriority); err != nil {
		return filters, err
	}
	if filters.ReceiverRole, err = validators.ParseQueryEnum(r, "receiverRole", enums.ParseReceiverRole); err != nil {
		return filters, err
	}
	if filters.ClassID, err = validators.ParseQueryUUID(r, "classId"); err != nil {
		return filters, err
	}
	if filters.SenderID, err = validators.ParseQueryUUID(r, "senderId"); err != nil {
		return filters, err
	}
	return filters, nil
}
