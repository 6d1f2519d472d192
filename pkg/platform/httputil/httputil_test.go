package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal" {
			t.Fatalf("expected error code internal, got %q", body["error"])
		}
		if body["success"] != false {
			t.Fatalf("expected success=false")
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "boom") {
			t.Fatalf("internal cause leaked into response")
		}
	})

	t.Run("unreachable database is unavailable", func(t *testing.T) {
		w := httptest.NewRecorder()
		cause := fmt.Errorf("dial tcp: %w", sentinel.ErrUnavailable)
		WriteError(w, dErrors.Wrap(cause, dErrors.CodeInternal, "failed to load citation"))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("value rejected by the database is invalid argument", func(t *testing.T) {
		w := httptest.NewRecorder()
		cause := fmt.Errorf("value too long for type character varying(10): %w", sentinel.ErrInvalid)
		WriteError(w, dErrors.Wrap(cause, dErrors.CodeInternal, "failed to create citation"))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "invalid_argument" {
			t.Fatalf("expected error code invalid_argument, got %q", body["error"])
		}
		if strings.Contains(w.Body.String(), "character varying") {
			t.Fatalf("driver message leaked into response")
		}
	})

	t.Run("conflict includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConflict, "citation is already paid"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "conflict" {
			t.Fatalf("expected error code conflict, got %q", body["error"])
		}
		if body["error_description"] != "citation is already paid" {
			t.Fatalf("expected error_description to be returned for conflict")
		}
	})
}

func TestWritePage(t *testing.T) {
	w := httptest.NewRecorder()
	WritePage(w, pagination.NewPage(pagination.Params{Page: 1, Limit: 2}, []string{"a", "b"}, 3))

	var body struct {
		Success    bool            `json:"success"`
		Data       []string        `json:"data"`
		Pagination pagination.Meta `json:"pagination"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || len(body.Data) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Pagination.TotalPages != 2 || !body.Pagination.HasNextPage {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeInvalidArgument:    http.StatusBadRequest,
		dErrors.CodeInvariantViolation: http.StatusBadRequest,
		dErrors.CodeNotFound:           http.StatusNotFound,
		dErrors.CodeConflict:           http.StatusConflict,
		dErrors.CodeForbidden:          http.StatusForbidden,
		dErrors.CodeUnauthorized:       http.StatusUnauthorized,
		dErrors.CodeRateLimited:        http.StatusTooManyRequests,
		dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
		dErrors.CodeTimeout:            http.StatusGatewayTimeout,
		dErrors.CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
