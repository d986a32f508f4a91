package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Feature: nano-pos, Property 4: Errors have consistent structure
func TestProperty_ErrorsHaveConsistentStructure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	codes := []int{
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	properties.Property("every error carries code, message and RFC3339 timestamp", prop.ForAll(
		func(message string, pick int) bool {
			statusCode := codes[pick%len(codes)]

			w := httptest.NewRecorder()
			RespondWithError(w, statusCode, message)

			if w.Code != statusCode || w.Header().Get("Content-Type") != "application/json" {
				return false
			}

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			if response.Error.Code != http.StatusText(statusCode) || response.Error.Message != message {
				return false
			}
			_, err := time.Parse(time.RFC3339, response.Error.Timestamp)
			return err == nil
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithErrorDetails_UsesDomainCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorDetails(w, http.StatusConflict, "insufficient_stock", "insufficient stock for product 2", map[string]any{
		"product_id": 2,
		"requested":  2,
		"available":  0,
	})

	require.Equal(t, http.StatusConflict, w.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "insufficient_stock", response.Error.Code)
	assert.EqualValues(t, 2, response.Error.Details["requested"])
	assert.EqualValues(t, 0, response.Error.Details["available"])
}

func TestRespondWithErrorDetails_DefaultsCodeToStatusText(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorDetails(w, http.StatusServiceUnavailable, "", "try again", nil)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Service Unavailable", response.Error.Code)
	assert.Nil(t, response.Error.Details)
}

func TestRespondWithValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithValidationErrors(w, []ValidationError{{Field: "lines[0].quantity", Message: "This field is required"}})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "validation_failed", response.Error.Code)
	assert.Contains(t, response.Error.Details, "validation_errors")
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stock", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLoggingMiddleware_LevelsAndIdempotencyKey(t *testing.T) {
	assert.Equal(t, "info", levelForStatus(http.StatusCreated).String())
	assert.Equal(t, "warn", levelForStatus(http.StatusConflict).String())
	assert.Equal(t, "error", levelForStatus(http.StatusServiceUnavailable).String())

	r := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	r.Header.Set(HeaderIdempotencyKey, "fallback")
	assert.Equal(t, "fallback", IdempotencyKey(r))

	r.Header.Set(HeaderXIdempotencyKey, "primary")
	assert.Equal(t, "primary", IdempotencyKey(r))
}
