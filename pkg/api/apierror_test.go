package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/covenant/pkg/api"
	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Detail != "field is missing" {
		t.Errorf("expected detail 'field is missing', got %q", problem.Detail)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Must NOT contain internal error details
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 30)

	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWriteFault_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{faults.ErrOnlyOwner, http.StatusForbidden},
		{faults.ErrAlreadyReleased, http.StatusConflict},
		{faults.ErrNonPositiveAmount, http.StatusBadRequest},
		{faults.ErrNotAContract, http.StatusBadRequest},
		{faults.New("TargetUnavailable", "dial timeout"), http.StatusBadGateway},
		{faults.ErrNotFound, http.StatusNotFound},
		{faults.ErrIndexOutOfBounds, http.StatusNotFound},
		{fmt.Errorf("release: %w", faults.ErrProofMismatch), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(string(faults.CodeOf(tt.err)), func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/tranches/0/release", nil)
			w := httptest.NewRecorder()
			api.WriteFault(w, r, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var problem api.ProblemDetail
			require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
			assert.Equal(t, string(faults.CodeOf(tt.err)), problem.Code)
			assert.Equal(t, "/api/v1/tranches/0/release", problem.Instance)
		})
	}
}

func TestWriteFault_PlainErrorIsInternal(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	api.WriteFault(w, r, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}
