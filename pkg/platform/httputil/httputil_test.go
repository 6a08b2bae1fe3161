package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "lifeline/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("transition conflict maps to 409", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeTransitionConflict, "candidate is no longer pending"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error_description"] != "candidate is no longer pending" {
			t.Fatalf("expected error_description to be returned, got %q", body["error_description"])
		}
	})

	t.Run("verdict required maps to 412", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeVerdictRequired, "verify first"))
		if w.Code != http.StatusPreconditionFailed {
			t.Fatalf("expected status %d, got %d", http.StatusPreconditionFailed, w.Code)
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Reason string `json:"reason"`
	}

	t.Run("empty body allowed when optional", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		if err := DecodeJSON(req, &p, true); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"x","extra":1}`))
		err := DecodeJSON(req, &p, false)
		if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			t.Fatalf("expected bad_request, got %v", err)
		}
	})

	t.Run("empty body rejected when required", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		if err := DecodeJSON(req, &p, false); err == nil {
			t.Fatalf("expected error for empty body")
		}
	})
}
