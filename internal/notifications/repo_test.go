package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/internal/audience"
	"github.com/angelmondragon/lms-notifications/pkg/db/dbtest"
	"github.com/angelmondragon/lms-notifications/pkg/db/models"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
	"github.com/angelmondragon/lms-notifications/pkg/pagination"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func sentNotification(title string, role enums.ReceiverRole, priority enums.NotificationPriority, sentAt time.Time) models.Notification {
	return models.Notification{
		Title:        title,
		Message:      title + " body",
		SenderID:     uuid.New(),
		ReceiverRole: role,
		Type:         enums.NotificationTypeAnnouncement,
		Priority:     priority,
		SentAt:       ptr(sentAt),
		TargetCount:  3,
	}
}

func insert(t *testing.T, db *gorm.DB, rows ...models.Notification) []models.Notification {
	t.Helper()
	require.NoError(t, db.Create(&rows).Error)
	return rows
}

func titles(rows []models.Notification) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Title)
	}
	return out
}

func TestRepositoryOrdersByPriorityThenRecency(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	insert(t, db,
		sentNotification("low-new", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-time.Minute)),
		sentNotification("urgent-old", enums.ReceiverRoleAll, enums.NotificationPriorityUrgent, baseTime.Add(-3*time.Hour)),
		sentNotification("high", enums.ReceiverRoleAll, enums.NotificationPriorityHigh, baseTime.Add(-2*time.Hour)),
		sentNotification("medium-old", enums.ReceiverRoleAll, enums.NotificationPriorityMedium, baseTime.Add(-5*time.Hour)),
		sentNotification("medium-new", enums.ReceiverRoleAll, enums.NotificationPriorityMedium, baseTime.Add(-4*time.Hour)),
	)

	student := audience.Recipient{UserID: uuid.New(), Role: enums.UserRoleStudent}
	rows, total, err := repo.FindForRecipient(ctx, student, ListFilters{}, pagination.Params{Page: 1, Limit: 10}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []string{"urgent-old", "high", "medium-new", "medium-old", "low-new"}, titles(rows))

	rows, total, err = repo.FindForRecipient(ctx, student, ListFilters{}, pagination.Params{Page: 2, Limit: 2}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []string{"medium-new", "medium-old"}, titles(rows))

	priority := enums.NotificationPriorityMedium
	rows, total, err = repo.FindForRecipient(ctx, student, ListFilters{Priority: &priority}, pagination.Params{Page: 1, Limit: 10}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)
}

func TestRepositoryMarkReadIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	rows := insert(t, db, sentNotification("n", enums.ReceiverRoleAll, enums.NotificationPriorityMedium, baseTime.Add(-time.Hour)))
	userID := uuid.New()

	inserted, err := repo.MarkRead(ctx, rows[0].ID, userID, baseTime)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.MarkRead(ctx, rows[0].ID, userID, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.FindByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ReadCount)

	var receipts int64
	require.NoError(t, db.Model(&models.NotificationReceipt{}).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts)

	read, err := repo.ReadIDs(ctx, userID, []uuid.UUID{rows[0].ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{rows[0].ID: true}, read)
}

func TestRepositoryMarkAllReadOnlyTouchesAudience(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	classA := uuid.New()

	studentRow := sentNotification("students", enums.ReceiverRoleStudent, enums.NotificationPriorityMedium, baseTime.Add(-time.Hour))
	classRow := sentNotification("class A", enums.ReceiverRoleAll, enums.NotificationPriorityMedium, baseTime.Add(-time.Hour))
	classRow.ClassID = &classA
	teacherRow := sentNotification("teachers", enums.ReceiverRoleTeacher, enums.NotificationPriorityMedium, baseTime.Add(-time.Hour))
	rows := insert(t, db, studentRow, classRow, teacherRow)

	student := audience.Recipient{UserID: uuid.New(), Role: enums.UserRoleStudent, ClassIDs: []uuid.UUID{classA}}
	_, err := repo.MarkRead(ctx, rows[0].ID, student.UserID, baseTime)
	require.NoError(t, err)
	_, err = repo.MarkRead(ctx, rows[1].ID, uuid.New(), baseTime)
	require.NoError(t, err)

	n, err := repo.MarkAllRead(ctx, student, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the class row was still unread")

	unread, err := repo.CountUnreadForRecipient(ctx, student, baseTime)
	require.NoError(t, err)
	assert.Zero(t, unread)

	classStored, err := repo.FindByID(ctx, rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), classStored.ReadCount, "read_count reflects every receipt")

	teacherStored, err := repo.FindByID(ctx, rows[2].ID)
	require.NoError(t, err)
	assert.Zero(t, teacherStored.ReadCount)

	n, err = repo.MarkAllRead(ctx, student, baseTime)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepositoryMarkAllReadIncrementsCounters(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	busy := sentNotification("busy", enums.ReceiverRoleAll, enums.NotificationPriorityHigh, baseTime.Add(-time.Hour))
	busy.ReadCount = 4
	quiet := sentNotification("quiet", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-time.Hour))
	rows := insert(t, db, busy, quiet)

	reader := audience.Recipient{UserID: uuid.New(), Role: enums.UserRoleStudent}
	n, err := repo.MarkAllRead(ctx, reader, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Counters committed by other readers are kept, never recomputed downward.
	busyStored, err := repo.FindByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), busyStored.ReadCount)
	quietStored, err := repo.FindByID(ctx, rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), quietStored.ReadCount)

	read, err := repo.ReadIDs(ctx, reader.UserID, []uuid.UUID{rows[0].ID, rows[1].ID})
	require.NoError(t, err)
	assert.Len(t, read, 2)
}

func TestRepositoryUnreadOnlyFilter(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	rows := insert(t, db,
		sentNotification("a", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-time.Hour)),
		sentNotification("b", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-2*time.Hour)),
	)
	teacher := audience.Recipient{UserID: uuid.New(), Role: enums.UserRoleTeacher}
	_, err := repo.MarkRead(ctx, rows[0].ID, teacher.UserID, baseTime)
	require.NoError(t, err)

	got, total, err := repo.FindForRecipient(ctx, teacher, ListFilters{UnreadOnly: true}, pagination.Params{Page: 1, Limit: 20}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"b"}, titles(got))
}

func TestRepositoryScheduledDispatch(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	due := models.Notification{Title: "due", Message: "m", SenderID: uuid.New(), ReceiverRole: enums.ReceiverRoleAll,
		Type: enums.NotificationTypeReminder, Priority: enums.NotificationPriorityMedium, ScheduledAt: ptr(baseTime.Add(-time.Minute))}
	later := due
	later.Title = "later"
	later.ScheduledAt = ptr(baseTime.Add(time.Hour))
	rows := insert(t, db, due, later)

	got, err := repo.DueScheduled(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, titles(got))

	ok, err := repo.MarkSent(ctx, rows[0].ID, baseTime, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSent(ctx, rows[0].ID, baseTime.Add(time.Minute), 7)
	require.NoError(t, err)
	assert.False(t, ok, "second send must lose")

	stored, err := repo.FindByID(ctx, rows[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SentAt)
	assert.True(t, stored.SentAt.Equal(baseTime))
	assert.Equal(t, int64(42), stored.TargetCount)

	got, err = repo.DueScheduled(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepositoryUpdateByIDOnlyUnsent(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	rows := insert(t, db, sentNotification("sent", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime))

	applied, err := repo.UpdateByID(ctx, rows[0].ID, map[string]any{"title": "changed"}, true)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.UpdateByID(ctx, rows[0].ID, map[string]any{"title": "changed", "class_id": nil}, false)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.FindByID(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", stored.Title)
	assert.Nil(t, stored.ClassID)
}

func TestRepositoryDeletesReceiptsWithNotification(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	expired := sentNotification("expired", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-48*time.Hour))
	expired.ExpiresAt = ptr(baseTime.Add(-24 * time.Hour))
	live := sentNotification("live", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-time.Hour))
	doomed := sentNotification("doomed", enums.ReceiverRoleAll, enums.NotificationPriorityLow, baseTime.Add(-time.Hour))
	rows := insert(t, db, expired, live, doomed)

	for _, row := range rows {
		_, err := repo.MarkRead(ctx, row.ID, uuid.New(), baseTime)
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteByID(ctx, rows[2].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.DeleteByID(ctx, rows[2].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	purged, err := repo.DeleteExpiredBefore(ctx, baseTime.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var remaining []uuid.UUID
	require.NoError(t, db.Model(&models.NotificationReceipt{}).Pluck("notification_id", &remaining).Error)
	assert.Equal(t, []uuid.UUID{rows[1].ID}, remaining)
}

func TestRepositoryStatsGroups(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	sender := uuid.New()

	a := sentNotification("a", enums.ReceiverRoleAll, enums.NotificationPriorityHigh, baseTime)
	a.SenderID = sender
	a.ReadCount = 2
	b := sentNotification("b", enums.ReceiverRoleAll, enums.NotificationPriorityHigh, baseTime)
	b.SenderID = sender
	b.ReadCount = 5
	unsent := models.Notification{Title: "c", Message: "m", SenderID: sender, ReceiverRole: enums.ReceiverRoleAll,
		Type: enums.NotificationTypeSystem, Priority: enums.NotificationPriorityLow, ScheduledAt: ptr(baseTime.Add(time.Hour))}
	other := sentNotification("d", enums.ReceiverRoleAll, enums.NotificationPriorityHigh, baseTime)
	insert(t, db, a, b, unsent, other)

	rows, err := repo.Stats(ctx, StatsScope{SenderID: &sender})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, StatsRow{Type: enums.NotificationTypeAnnouncement, Priority: enums.NotificationPriorityHigh,
		Count: 2, SentCount: 2, ReadCount: 7, TargetCount: 6, CountedReads: 5}, rows[0], "reads past the target are not counted")
	assert.Equal(t, StatsRow{Type: enums.NotificationTypeSystem, Priority: enums.NotificationPriorityLow,
		Count: 1, SentCount: 0, ReadCount: 0, TargetCount: 0, CountedReads: 0}, rows[1])

	all, err := repo.Stats(ctx, StatsScope{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all[0].Count)
}

func TestRepositoryListAllIncludesHiddenRows(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	classA := uuid.New()

	scoped := sentNotification("scoped", enums.ReceiverRoleStudent, enums.NotificationPriorityLow, baseTime)
	scoped.ClassID = &classA
	unsent := models.Notification{Title: "unsent", Message: "m", SenderID: uuid.New(), ReceiverRole: enums.ReceiverRoleTeacher,
		Type: enums.NotificationTypeSystem, Priority: enums.NotificationPriorityLow}
	insert(t, db, scoped, unsent)

	rows, total, err := repo.ListAll(ctx, AdminFilters{}, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)

	rows, total, err = repo.ListAll(ctx, AdminFilters{ClassID: &classA}, pagination.Params{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"scoped"}, titles(rows))
}
