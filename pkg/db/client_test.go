package db

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

type probe struct {
	ID   int
	Name string
}

func TestNewOpensSQLite(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		Driver:       DriverSQLite,
		DSN:          "file::memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := client.DB().AutoMigrate(&probe{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite}, nil); err == nil {
		t.Fatal("expected missing DSN to fail")
	}
	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
}

func TestOpenDialectorSelectsDriver(t *testing.T) {
	cases := map[string]string{
		"":             "postgres",
		DriverPostgres: "postgres",
		DriverSQLite:   "sqlite",
	}
	for driver, want := range cases {
		dialector, err := openDialector(config.DBConfig{DSN: "file::memory:", Driver: driver})
		if err != nil {
			t.Fatalf("driver %q: unexpected error %v", driver, err)
		}
		if got := dialector.Name(); got != want {
			t.Fatalf("driver %q: expected %s dialector, got %s", driver, want, got)
		}
	}
}

func TestQueryLoggerReportsFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: newQueryLogger(logg, time.Nanosecond)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := conn.Exec("SELECT * FROM missing_table").Error; err == nil {
		t.Fatal("expected query against missing table to fail")
	}
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "missing_table") {
		t.Fatalf("failure not logged: %s", buf.String())
	}

	buf.Reset()
	if err := conn.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.Contains(buf.String(), "db.query_slow") {
		t.Fatalf("slow statement not logged: %s", buf.String())
	}
}

func TestQueryLoggerIgnoresMissingRows(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	conn, err := gorm.Open(sqlite.Open("file:querylog?mode=memory&cache=shared"), &gorm.Config{Logger: newQueryLogger(logg, time.Hour)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := conn.AutoMigrate(&probe{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()

	var row probe
	if err := conn.First(&row, 42).Error; err != gorm.ErrRecordNotFound {
		t.Fatalf("expected record not found, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("missing row should not log: %s", buf.String())
	}
}
