package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/lms-notifications/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestNotificationMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_notifications.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS notifications",
		"CHECK (receiver_role IN ('student', 'teacher', 'admin', 'all'))",
		"CHECK (read_count >= 0)",
		"WHERE sent_at IS NULL",
		"DROP TABLE IF EXISTS notifications",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReceiptMigrationCascades(t *testing.T) {
	content := readMigration(t, "*_create_notification_receipts.sql")

	checks := []string{
		"PRIMARY KEY (notification_id, user_id)",
		"FOREIGN KEY (notification_id) REFERENCES notifications(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS notification_receipts",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Receipt Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_receipt_index.sql") {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "add_index.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := migrate.Validate(os.DirFS(dir))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"add_index.sql", "missing \"-- +goose Down\""} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	fsys := migrate.Migrations()
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := fs.ReadFile(fsys, matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
