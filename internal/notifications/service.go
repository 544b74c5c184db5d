package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/internal/enrollments"
	"github.com/angelmondragon/lms-notifications/internal/realtime"
	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
)

const (
	maxTitleLength = 255
	rateScale      = 4
)

// Service defines the notification operations exposed to controllers and workers.
type Service interface {
	CreateNotification(ctx context.Context, actor Actor, input CreateInput) (*View, error)
	ListForRecipient(ctx context.Context, actor Actor, filters ListFilters, page pagination.Params) (*ListResult, error)
	GetByID(ctx context.Context, actor Actor, id uuid.UUID) (*View, error)
	MarkRead(ctx context.Context, actor Actor, id uuid.UUID) error
	MarkAllRead(ctx context.Context, actor Actor) (int64, error)
	GetUnreadCount(ctx context.Context, actor Actor) (int64, error)
	CountUnread(ctx context.Context, recipient audience.Recipient) (int64, error)
	ListAll(ctx context.Context, actor Actor, filters AdminFilters, page pagination.Params) (*ListResult, error)
	UpdateNotification(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (*View, error)
	DeleteNotification(ctx context.Context, actor Actor, id uuid.UUID) error
	GetStats(ctx context.Context, actor Actor, filters StatsFilters) (*StatsResult, error)
	DispatchDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// Emitter pushes deliveries onto the realtime bus.
type Emitter interface {
	Emit(ctx context.Context, d realtime.Delivery) error
}

// ServiceParams wires the notification service.
type ServiceParams struct {
	Repo        Repository
	Enrollments enrollments.Provider
	Bus         Emitter
	Logger      *logger.Logger
	Limits      pagination.Limits
	Clock       func() time.Time
}

type service struct {
	repo        Repository
	enrollments enrollments.Provider
	bus         Emitter
	logg        *logger.Logger
	limits      pagination.Limits
	clock       func() time.Time
}

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Enrollments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "enrollment provider required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "realtime bus required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	limits := params.Limits
	if limits.Default <= 0 {
		limits.Default = pagination.DefaultLimit
	}
	if limits.Max <= 0 {
		limits.Max = pagination.MaxLimit
	}
	return &service{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		bus:         params.Bus,
		logg:        params.Logger,
		limits:      limits,
		clock:       func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) CreateNotification(ctx context.Context, actor Actor, input CreateInput) (*View, error) {
	now := s.clock()
	row, err := buildNotification(actor, input, now)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanSendNotifications() {
		return nil, pkgerrors.Forbidden("only teachers and administrators can send notifications")
	}
	if err := s.checkClassAccess(ctx, actor, row.ClassID); err != nil {
		return nil, err
	}

	if !isFuture(row.ScheduledAt, now) {
		count, err := s.enrollments.CountAudience(ctx, audience.TargetingOf(row))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count audience")
		}
		row.SentAt = &now
		row.TargetCount = count
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	view := newView(row, false)
	if row.IsSent() {
		s.emit(ctx, realtime.ToAudience(enums.RealtimeEventNotificationNew, audience.TargetingOf(row), view))
	}
	return &view, nil
}

func (s *service) ListForRecipient(ctx context.Context, actor Actor, filters ListFilters, page pagination.Params) (*ListResult, error) {
	recipient, err := s.recipient(ctx, actor)
	if err != nil {
		return nil, err
	}
	page = s.limits.Normalize(page)
	rows, total, err := s.repo.FindForRecipient(ctx, recipient, filters, page, s.clock())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return s.pageResult(ctx, actor.UserID, rows, total, page)
}

func (s *service) GetByID(ctx context.Context, actor Actor, id uuid.UUID) (*View, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && row.SenderID != actor.UserID {
		recipient, err := s.recipient(ctx, actor)
		if err != nil {
			return nil, err
		}
		if !audience.IsInAudience(row, recipient, s.clock()) {
			return nil, pkgerrors.NotFound("notification not found")
		}
	}

	read, err := s.repo.ReadIDs(ctx, actor.UserID, []uuid.UUID{row.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load read state")
	}
	view := newView(row, read[row.ID])
	return &view, nil
}

func (s *service) MarkRead(ctx context.Context, actor Actor, id uuid.UUID) error {
	row, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	recipient, err := s.recipient(ctx, actor)
	if err != nil {
		return err
	}
	now := s.clock()
	if !audience.IsInAudience(row, recipient, now) {
		return pkgerrors.NotFound("notification not found")
	}

	inserted, err := s.repo.MarkRead(ctx, row.ID, actor.UserID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if inserted {
		s.pushUnreadCount(ctx, recipient)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	recipient, err := s.recipient(ctx, actor)
	if err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, recipient, s.clock())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	if count > 0 {
		s.pushUnreadCount(ctx, recipient)
	}
	return count, nil
}

func (s *service) GetUnreadCount(ctx context.Context, actor Actor) (int64, error) {
	recipient, err := s.recipient(ctx, actor)
	if err != nil {
		return 0, err
	}
	return s.CountUnread(ctx, recipient)
}

// CountUnread counts for an already resolved recipient.
func (s *service) CountUnread(ctx context.Context, recipient audience.Recipient) (int64, error) {
	count, err := s.repo.CountUnreadForRecipient(ctx, recipient, s.clock())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func (s *service) ListAll(ctx context.Context, actor Actor, filters AdminFilters, page pagination.Params) (*ListResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.Forbidden("administrator role required")
	}
	page = s.limits.Normalize(page)
	rows, total, err := s.repo.ListAll(ctx, filters, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list all notifications")
	}
	return s.pageResult(ctx, actor.UserID, rows, total, page)
}

func (s *service) UpdateNotification(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (*View, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && row.SenderID != actor.UserID {
		return nil, pkgerrors.Forbidden("only the sender or an administrator can edit this notification")
	}
	wasSent := row.IsSent()
	if wasSent && !actor.IsAdmin() {
		return nil, pkgerrors.Forbidden("sent notifications can only be edited by administrators")
	}
	if wasSent && (input.touchesTargeting() || input.ScheduledAt.Valid) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "audience and schedule are fixed once a notification is sent")
	}

	now := s.clock()
	patch, err := applyUpdate(row, input, now)
	if err != nil {
		return nil, err
	}
	if input.ClassID.Valid {
		if err := s.checkClassAccess(ctx, actor, row.ClassID); err != nil {
			return nil, err
		}
	}

	sendNow := !wasSent && !isFuture(row.ScheduledAt, now)
	if sendNow {
		count, err := s.enrollments.CountAudience(ctx, audience.TargetingOf(row))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count audience")
		}
		row.SentAt = &now
		row.TargetCount = count
		patch["sent_at"] = now
		patch["target_count"] = count
	}
	patch["updated_at"] = now
	row.UpdatedAt = now

	applied, err := s.repo.UpdateByID(ctx, row.ID, patch, !wasSent)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification")
	}
	if !applied {
		if wasSent {
			return nil, pkgerrors.NotFound("notification not found")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "notification was sent while being edited")
	}

	view := newView(row, false)
	switch {
	case sendNow:
		s.emit(ctx, realtime.ToAudience(enums.RealtimeEventNotificationNew, audience.TargetingOf(row), view))
	case wasSent:
		s.emit(ctx, realtime.ToAudience(enums.RealtimeEventNotificationUpdated, audience.TargetingOf(row), view))
	}

	read, err := s.repo.ReadIDs(ctx, actor.UserID, []uuid.UUID{row.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load read state")
	}
	view.IsRead = read[row.ID]
	return &view, nil
}

func (s *service) DeleteNotification(ctx context.Context, actor Actor, id uuid.UUID) error {
	row, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && row.SenderID != actor.UserID {
		return pkgerrors.Forbidden("only the sender or an administrator can delete this notification")
	}
	deleted, err := s.repo.DeleteByID(ctx, row.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.NotFound("notification not found")
	}
	if row.IsSent() {
		s.emit(ctx, realtime.ToAudience(enums.RealtimeEventNotificationDeleted, audience.TargetingOf(row), Deleted{ID: row.ID}))
	}
	return nil
}

func (s *service) GetStats(ctx context.Context, actor Actor, filters StatsFilters) (*StatsResult, error) {
	scope := StatsScope{Type: filters.Type, Priority: filters.Priority}
	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleTeacher:
		sender := actor.UserID
		scope.SenderID = &sender
	default:
		return nil, pkgerrors.Forbidden("stats are available to teachers and administrators")
	}

	rows, err := s.repo.Stats(ctx, scope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification stats")
	}

	result := &StatsResult{Groups: make([]StatsGroup, 0, len(rows))}
	var counted int64
	for _, row := range rows {
		result.Groups = append(result.Groups, StatsGroup{
			Type:        row.Type,
			Priority:    row.Priority,
			Count:       row.Count,
			SentCount:   row.SentCount,
			ReadCount:   row.ReadCount,
			TargetCount: row.TargetCount,
			ReadRate:    readRate(row.CountedReads, row.TargetCount),
		})
		result.Total += row.Count
		result.SentCount += row.SentCount
		result.ReadCount += row.ReadCount
		result.TargetCount += row.TargetCount
		counted += row.CountedReads
	}
	result.ReadRate = readRate(counted, result.TargetCount)
	return result, nil
}

// DispatchDue sends scheduled notifications whose time has come. A row
// another worker already sent is skipped.
func (s *service) DispatchDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	now = now.UTC()
	rows, err := s.repo.DueScheduled(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load due notifications")
	}

	var (
		sent int
		errs error
	)
	for i := range rows {
		row := &rows[i]
		count, err := s.enrollments.CountAudience(ctx, audience.TargetingOf(row))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("count audience %s: %w", row.ID, err))
			continue
		}
		ok, err := s.repo.MarkSent(ctx, row.ID, now, count)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark sent %s: %w", row.ID, err))
			continue
		}
		if !ok {
			continue
		}
		row.SentAt = &now
		row.TargetCount = count
		sent++
		s.emit(ctx, realtime.ToAudience(enums.RealtimeEventNotificationNew, audience.TargetingOf(row), newView(row, false)))
	}
	if errs != nil {
		return sent, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dispatch scheduled notifications")
	}
	return sent, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("notification not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	return row, nil
}

func (s *service) recipient(ctx context.Context, actor Actor) (audience.Recipient, error) {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return audience.Recipient{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	r, err := enrollments.Resolve(ctx, s.enrollments, actor.UserID, actor.Role)
	if err != nil {
		return audience.Recipient{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve class memberships")
	}
	return r, nil
}

func (s *service) checkClassAccess(ctx context.Context, actor Actor, classID *uuid.UUID) error {
	if classID == nil || actor.Role != enums.UserRoleTeacher {
		return nil
	}
	assigned, err := s.enrollments.IsTeacherAssigned(ctx, actor.UserID, *classID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check class assignment")
	}
	if !assigned {
		return pkgerrors.Forbidden("teacher is not assigned to this class")
	}
	return nil
}

func (s *service) pageResult(ctx context.Context, viewerID uuid.UUID, rows []models.Notification, total int64, page pagination.Params) (*ListResult, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	read, err := s.repo.ReadIDs(ctx, viewerID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load read state")
	}
	items := make([]View, 0, len(rows))
	for i := range rows {
		items = append(items, newView(&rows[i], read[rows[i].ID]))
	}
	return &ListResult{Items: items, Pagination: pagination.NewMeta(page, total)}, nil
}

func (s *service) pushUnreadCount(ctx context.Context, recipient audience.Recipient) {
	count, err := s.repo.CountUnreadForRecipient(ctx, recipient, s.clock())
	if err != nil {
		s.logg.Error(ctx, "notifications.unread_count_refresh_failed", err)
		return
	}
	s.emit(ctx, realtime.ToUser(enums.RealtimeEventNotificationUnreadCount, recipient.UserID, UnreadCount{Count: count}))
}

// emit never fails the caller; the write has already committed.
func (s *service) emit(ctx context.Context, d realtime.Delivery) {
	if err := s.bus.Emit(ctx, d); err != nil {
		ctx = s.logg.WithField(ctx, "event", string(d.Event))
		if errors.Is(err, realtime.ErrBusUnavailable) {
			s.logg.Warn(ctx, "notifications.bus_unavailable")
			return
		}
		s.logg.Error(ctx, "notifications.emit_failed", err)
	}
}

func buildNotification(actor Actor, input CreateInput, now time.Time) (*models.Notification, error) {
	details := map[string]string{}
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	if title == "" {
		details["title"] = "is required"
	} else if len(title) > maxTitleLength {
		details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLength)
	}
	if message == "" {
		details["message"] = "is required"
	}
	if !input.ReceiverRole.IsValid() {
		details["receiverRole"] = "must be one of student, teacher, admin, all"
	}
	kind := input.Type
	if kind == "" {
		kind = enums.NotificationTypeAnnouncement
	} else if !kind.IsValid() {
		details["type"] = "is invalid"
	}
	priority := input.Priority
	if priority == "" {
		priority = enums.NotificationPriorityMedium
	} else if !priority.IsValid() {
		details["priority"] = "is invalid"
	}
	validateWindow(details, input.ScheduledAt, input.ExpiresAt, now)
	validateAttachments(details, input.Attachments)
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	row := &models.Notification{
		Title:        title,
		Message:      message,
		SenderID:     actor.UserID,
		ReceiverRole: input.ReceiverRole,
		ClassID:      input.ClassID,
		SubjectID:    input.SubjectID,
		Type:         kind,
		Priority:     priority,
		ScheduledAt:  utcPtr(input.ScheduledAt),
		ExpiresAt:    utcPtr(input.ExpiresAt),
	}
	if input.Metadata != nil {
		row.Metadata = datatypes.JSONMap(input.Metadata)
	}
	if len(input.Attachments) > 0 {
		row.Attachments = datatypes.NewJSONSlice(input.Attachments)
	}
	return row, nil
}

// applyUpdate mutates row with input and returns the column patch.
func applyUpdate(row *models.Notification, input UpdateInput, now time.Time) (map[string]any, error) {
	details := map[string]string{}
	patch := map[string]any{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		switch {
		case title == "":
			details["title"] = "is required"
		case len(title) > maxTitleLength:
			details["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLength)
		default:
			row.Title = title
			patch["title"] = title
		}
	}
	if input.Message != nil {
		message := strings.TrimSpace(*input.Message)
		if message == "" {
			details["message"] = "is required"
		} else {
			row.Message = message
			patch["message"] = message
		}
	}
	if input.ReceiverRole != nil {
		if !input.ReceiverRole.IsValid() {
			details["receiverRole"] = "must be one of student, teacher, admin, all"
		} else {
			row.ReceiverRole = *input.ReceiverRole
			patch["receiver_role"] = *input.ReceiverRole
		}
	}
	if input.ClassID.Valid {
		row.ClassID = input.ClassID.Value
		patch["class_id"] = nullableColumn(input.ClassID.Value)
	}
	if input.SubjectID.Valid {
		row.SubjectID = input.SubjectID.Value
		patch["subject_id"] = nullableColumn(input.SubjectID.Value)
	}
	if input.Type != nil {
		if !input.Type.IsValid() {
			details["type"] = "is invalid"
		} else {
			row.Type = *input.Type
			patch["type"] = *input.Type
		}
	}
	if input.Priority != nil {
		if !input.Priority.IsValid() {
			details["priority"] = "is invalid"
		} else {
			row.Priority = *input.Priority
			patch["priority"] = *input.Priority
		}
	}
	if input.ScheduledAt.Valid {
		row.ScheduledAt = utcPtr(input.ScheduledAt.Value)
		patch["scheduled_at"] = nullableColumn(row.ScheduledAt)
	}
	if input.ExpiresAt.Valid {
		row.ExpiresAt = utcPtr(input.ExpiresAt.Value)
		patch["expires_at"] = nullableColumn(row.ExpiresAt)
	}
	if input.Metadata != nil {
		row.Metadata = datatypes.JSONMap(input.Metadata)
		patch["metadata"] = row.Metadata
	}
	if input.Attachments != nil {
		validateAttachments(details, *input.Attachments)
		row.Attachments = datatypes.NewJSONSlice(*input.Attachments)
		patch["attachments"] = row.Attachments
	}

	if input.ScheduledAt.Valid || input.ExpiresAt.Valid {
		start := row.SentAt
		if start == nil {
			start = row.ScheduledAt
		}
		validateWindow(details, start, row.ExpiresAt, now)
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return patch, nil
}

// validateWindow requires expiry to fall after the moment the notification
// becomes visible.
func validateWindow(details map[string]string, start, expiresAt *time.Time, now time.Time) {
	if expiresAt == nil {
		return
	}
	visibleFrom := now
	if start != nil && start.After(now) {
		visibleFrom = *start
	}
	if !expiresAt.After(visibleFrom) {
		details["expiresAt"] = "must be after the send time"
	}
}

func validateAttachments(details map[string]string, attachments []models.Attachment) {
	for i, a := range attachments {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			details[fmt.Sprintf("attachments[%d]", i)] = "name and url are required"
		}
	}
}

func readRate(read, target int64) float64 {
	if target <= 0 {
		return 0
	}
	read = min(read, target)
	return decimal.NewFromInt(read).DivRound(decimal.NewFromInt(target), rateScale).InexactFloat64()
}

func isFuture(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// nullableColumn turns a typed nil pointer into an untyped nil for map updates.
func nullableColumn[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
