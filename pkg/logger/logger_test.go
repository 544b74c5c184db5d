package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "boom", errors.New("redis down"))

	entry := lastEntry(t, buf)
	if entry["request_id"] != "req-123" || entry["error"] != "redis down" || entry["level"] != "error" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatalf("expected stack on error entry")
	}
}

func TestWarnStackToggle(t *testing.T) {
	for _, withStack := range []bool{false, true} {
		buf := &bytes.Buffer{}
		log := New(Options{ServiceName: "test", Output: buf, WarnStack: withStack})
		log.Warn(context.Background(), "slow consumer")

		_, ok := lastEntry(t, buf)["stack"]
		if ok != withStack {
			t.Fatalf("warnStack=%v: stack present=%v", withStack, ok)
		}
	}
}

func TestFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	base := log.WithNotificationID(context.Background(), "n-1")
	child := log.WithFields(base, map[string]any{"conn_id": "c-9", "room": "class:1"})
	log.Info(child, "delivered")
	entry := lastEntry(t, buf)
	if entry["notification_id"] != "n-1" || entry["conn_id"] != "c-9" || entry["service"] != "test" {
		t.Fatalf("unexpected child entry %v", entry)
	}

	log.Info(base, "queued")
	if _, leaked := lastEntry(t, buf)["conn_id"]; leaked {
		t.Fatalf("child field leaked into parent context")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "noisy")
	if buf.Len() != 0 {
		t.Fatalf("debug entry should be filtered at info level, got %s", buf.String())
	}
}
