package validators

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/enums"
	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=3&limit=abc&big=1000", nil)

	if v, err := ParseQueryInt(req, "page", 1, 1, 100); err != nil || v != 3 {
		t.Fatalf("page: got %d %v", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 7, 1, 100); err != nil || v != 7 {
		t.Fatalf("default: got %d %v", v, err)
	}
	if _, err := ParseQueryInt(req, "limit", 1, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseQueryInt(req, "big", 1, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestParseQueryFilters(t *testing.T) {
	classID := uuid.New()
	req := httptest.NewRequest("GET", "/?unreadOnly=true&classId="+classID.String()+"&type=reminder&priority=urgent", nil)

	unread, err := ParseQueryBool(req, "unreadOnly")
	if err != nil || !unread {
		t.Fatalf("unreadOnly: %v %v", unread, err)
	}
	id, err := ParseQueryUUID(req, "classId")
	if err != nil || id == nil || *id != classID {
		t.Fatalf("classId: %v %v", id, err)
	}
	kind, err := ParseQueryEnum(req, "type", enums.ParseNotificationType)
	if err != nil || kind == nil || *kind != enums.NotificationTypeReminder {
		t.Fatalf("type: %v %v", kind, err)
	}
	if _, err := ParseQueryEnum(req, "priority", enums.ParseNotificationType); err == nil {
		t.Fatal("expected a priority value to be rejected as a type")
	}
	none, err := ParseQueryUUID(req, "senderId")
	if err != nil || none != nil {
		t.Fatalf("absent uuid: %v %v", none, err)
	}
}
