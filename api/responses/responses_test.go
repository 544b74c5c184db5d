package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/lms-notifications/pkg/errors"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

func decodeFailure(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	var body Failure
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	return body.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"count": 3})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body Success
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode success: %v", err)
	}
	if body.Data.(map[string]any)["count"] != float64(3) {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		withDetails bool
	}{
		{
			name:        "validation keeps message and details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"title": "required"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "bad input",
			withDetails: true,
		},
		{
			name:    "wrapped not found",
			err:     fmt.Errorf("get: %w", pkgerrors.NotFound("notification not found")),
			status:  http.StatusNotFound,
			code:    pkgerrors.CodeNotFound,
			message: "notification not found",
		},
		{
			name:    "state conflict",
			err:     pkgerrors.New(pkgerrors.CodeStateConflict, "audience fixed"),
			status:  http.StatusUnprocessableEntity,
			code:    pkgerrors.CodeStateConflict,
			message: "audience fixed",
		},
		{
			name:    "dependency hides message",
			err:     pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp"), "redis write"),
			status:  http.StatusServiceUnavailable,
			code:    pkgerrors.CodeDependency,
			message: "dependency unavailable",
		},
		{
			name:    "untyped becomes internal",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), logg, w, tc.err)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			problem := decodeFailure(t, w)
			if problem.Code != string(tc.code) || problem.Message != tc.message {
				t.Fatalf("unexpected problem %+v", problem)
			}
			if (problem.Details != nil) != tc.withDetails {
				t.Fatalf("details presence mismatch: %+v", problem.Details)
			}
		})
	}
}

func TestWriteErrorWithoutLogger(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
