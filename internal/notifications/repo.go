package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
)

const receiptBatchSize = 500

// Repository exposes persistence helpers for notifications and read receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	UpdateByID(ctx context.Context, id uuid.UUID, patch map[string]any, onlyUnsent bool) (bool, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	FindForRecipient(ctx context.Context, recipient audience.Recipient, filters ListFilters, page pagination.Params, now time.Time) ([]models.Notification, int64, error)
	CountUnreadForRecipient(ctx context.Context, recipient audience.Recipient, now time.Time) (int64, error)
	ListAll(ctx context.Context, filters AdminFilters, page pagination.Params) ([]models.Notification, int64, error)
	ReadIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipient audience.Recipient, now time.Time) (int64, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, targetCount int64) (bool, error)
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, scope StatsScope) ([]StatsRow, error)
}

// ListFilters narrows a recipient's inbox.
type ListFilters struct {
	Type       *enums.NotificationType
	Priority   *enums.NotificationPriority
	UnreadOnly bool
}

// AdminFilters narrows the unrestricted admin listing.
type AdminFilters struct {
	Type         *enums.NotificationType
	Priority     *enums.NotificationPriority
	ReceiverRole *enums.ReceiverRole
	ClassID      *uuid.UUID
	SenderID     *uuid.UUID
}

// StatsScope restricts which rows feed the aggregates. A nil SenderID means every sender.
type StatsScope struct {
	SenderID *uuid.UUID
	Type     *enums.NotificationType
	Priority *enums.NotificationPriority
}

// StatsRow is one (type, priority) aggregate. CountedReads caps each row's
// reads at its frozen target, so late joiners and zero-target rows never
// inflate a rate.
type StatsRow struct {
	Type         enums.NotificationType     `gorm:"column:type"`
	Priority     enums.NotificationPriority `gorm:"column:priority"`
	Count        int64                      `gorm:"column:count"`
	SentCount    int64                      `gorm:"column:sent_count"`
	ReadCount    int64                      `gorm:"column:read_count"`
	TargetCount  int64                      `gorm:"column:target_count"`
	CountedReads int64                      `gorm:"column:counted_reads"`
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var row models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateByID applies patch. With onlyUnsent the write loses against a
// concurrent send and reports false.
func (r *repositoryImpl) UpdateByID(ctx context.Context, id uuid.UUID, patch map[string]any, onlyUnsent bool) (bool, error) {
	if len(patch) == 0 {
		return true, nil
	}
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id)
	if onlyUnsent {
		query = query.Where("sent_at IS NULL")
	}
	result := query.Updates(patch)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteByID removes the notification and its receipts.
func (r *repositoryImpl) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("notification_id = ?", id).Delete(&models.NotificationReceipt{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Notification{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func (r *repositoryImpl) FindForRecipient(ctx context.Context, recipient audience.Recipient, filters ListFilters, page pagination.Params, now time.Time) ([]models.Notification, int64, error) {
	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Notification{}).Scopes(audience.Filter(recipient, now))
		if filters.Type != nil {
			query = query.Where("notifications.type = ?", *filters.Type)
		}
		if filters.Priority != nil {
			query = query.Where("notifications.priority = ?", *filters.Priority)
		}
		if filters.UnreadOnly {
			query = query.Scopes(audience.Unread(recipient.UserID))
		}
		return query
	}
	return r.page(base, page)
}

func (r *repositoryImpl) CountUnreadForRecipient(ctx context.Context, recipient audience.Recipient, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Scopes(audience.Filter(recipient, now), audience.Unread(recipient.UserID)).
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) ListAll(ctx context.Context, filters AdminFilters, page pagination.Params) ([]models.Notification, int64, error) {
	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Notification{})
		if filters.Type != nil {
			query = query.Where("notifications.type = ?", *filters.Type)
		}
		if filters.Priority != nil {
			query = query.Where("notifications.priority = ?", *filters.Priority)
		}
		if filters.ReceiverRole != nil {
			query = query.Where("notifications.receiver_role = ?", *filters.ReceiverRole)
		}
		if filters.ClassID != nil {
			query = query.Where("notifications.class_id = ?", *filters.ClassID)
		}
		if filters.SenderID != nil {
			query = query.Where("notifications.sender_id = ?", *filters.SenderID)
		}
		return query
	}
	return r.page(base, page)
}

func (r *repositoryImpl) page(base func() *gorm.DB, page pagination.Params) ([]models.Notification, int64, error) {
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Notification{}, 0, nil
	}

	var rows []models.Notification
	err := base().
		Order(orderClause).
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repositoryImpl) ReadIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var read []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.NotificationReceipt{}).
		Where("user_id = ? AND notification_id IN ?", userID, ids).
		Pluck("notification_id", &read).Error
	if err != nil {
		return nil, err
	}
	for _, id := range read {
		out[id] = true
	}
	return out, nil
}

// MarkRead inserts a receipt and bumps read_count only when the receipt is new.
func (r *repositoryImpl) MarkRead(ctx context.Context, notificationID, userID uuid.UUID, now time.Time) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt := models.NotificationReceipt{NotificationID: notificationID, UserID: userID, ReadAt: now}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true
		return tx.Model(&models.Notification{}).
			Where("id = ?", notificationID).
			UpdateColumn("read_count", gorm.Expr("read_count + ?", 1)).Error
	})
	return inserted, err
}

// MarkAllRead receipts every unread notification in the recipient's audience
// and bumps read_count once per receipt it actually inserted.
func (r *repositoryImpl) MarkAllRead(ctx context.Context, recipient audience.Recipient, now time.Time) (int64, error) {
	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&models.Notification{}).
			Scopes(audience.Filter(recipient, now), audience.Unread(recipient.UserID)).
			Pluck("notifications.id", &ids).Error; err != nil {
			return fmt.Errorf("select unread: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		fresh, err := insertReceipts(tx, ids, recipient.UserID, now)
		if err != nil {
			return fmt.Errorf("insert receipts: %w", err)
		}
		inserted = int64(len(fresh))
		if len(fresh) == 0 {
			return nil
		}

		return tx.Model(&models.Notification{}).
			Where("id IN ?", fresh).
			UpdateColumn("read_count", gorm.Expr("read_count + ?", 1)).Error
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// insertReceipts writes receipts in batches and returns the notification ids
// whose receipt was new. Rows a concurrent reader already inserted are skipped.
func insertReceipts(tx *gorm.DB, ids []uuid.UUID, userID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	fresh := make([]uuid.UUID, 0, len(ids))
	for start := 0; start < len(ids); start += receiptBatchSize {
		batch := ids[start:min(start+receiptBatchSize, len(ids))]

		var b strings.Builder
		b.WriteString("INSERT INTO notification_receipts (notification_id, user_id, read_at) VALUES ")
		args := make([]any, 0, len(batch)*3)
		for i, id := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?)")
			args = append(args, id, userID, now)
		}
		b.WriteString(" ON CONFLICT (notification_id, user_id) DO NOTHING RETURNING notification_id")

		var returned []uuid.UUID
		if err := tx.Raw(b.String(), args...).Scan(&returned).Error; err != nil {
			return nil, err
		}
		fresh = append(fresh, returned...)
	}
	return fresh, nil
}

// MarkSent releases an unsent notification. It reports false when another
// writer already sent it.
func (r *repositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, targetCount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]any{
			"sent_at":      sentAt,
			"target_count": targetCount,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL AND scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeleteExpiredBefore hard deletes notifications that expired before cutoff.
func (r *repositoryImpl) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.Notification{}).
			Select("id").
			Where("expires_at IS NOT NULL AND expires_at < ?", cutoff)
		if err := tx.Where("notification_id IN (?)", expired).Delete(&models.NotificationReceipt{}).Error; err != nil {
			return err
		}
		result := tx.Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).Delete(&models.Notification{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (r *repositoryImpl) Stats(ctx context.Context, scope StatsScope) ([]StatsRow, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select(`type, priority,
			COUNT(*) AS count,
			COALESCE(SUM(CASE WHEN sent_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS sent_count,
			COALESCE(SUM(read_count), 0) AS read_count,
			COALESCE(SUM(target_count), 0) AS target_count,
			COALESCE(SUM(CASE WHEN read_count > target_count THEN target_count ELSE read_count END), 0) AS counted_reads`)
	if scope.SenderID != nil {
		query = query.Where("sender_id = ?", *scope.SenderID)
	}
	if scope.Type != nil {
		query = query.Where("type = ?", *scope.Type)
	}
	if scope.Priority != nil {
		query = query.Where("priority = ?", *scope.Priority)
	}

	var rows []StatsRow
	if err := query.Group("type, priority").Order("type, priority").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// orderClause ranks urgent first, then newest, with id as the tiebreaker.
var orderClause = buildOrderClause()

func buildOrderClause() string {
	var b strings.Builder
	b.WriteString("CASE notifications.priority")
	for _, p := range enums.NotificationPriorities() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Rank())
	}
	b.WriteString(" ELSE 0 END DESC, COALESCE(notifications.sent_at, notifications.created_at) DESC, notifications.id DESC")
	return b.String()
}
