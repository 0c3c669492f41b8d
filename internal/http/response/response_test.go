package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, map[string]string{"id": "swb-0001"}, discard())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	out := decode(t, w)
	assert.Equal(t, float64(Version), out["v"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{"id": "swb-0001"}, out["data"])
	assert.NotContains(t, out, "error")
}

func TestJSON_StatusMarksFailure(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusNotFound, map[string]string{"id": "x"}, nil)

	out := decode(t, w)
	assert.Equal(t, false, out["success"])
}

func TestError(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "sign in", nil) }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "missing", nil) }, http.StatusNotFound, "NOT_FOUND"},
		{"rate limited", func(w http.ResponseWriter) { TooManyRequests(w, "slow down", nil) }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "boom", nil) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			out := decode(t, w)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tt.code, out["code"])
			assert.Equal(t, out["message"], out["error"])
		})
	}
}

func TestHandleError_DomainError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainerrors.ValidationWithDetails("validation failed", map[string]string{"title": "is required"})
	HandleError(w, err, discard())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	out := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", out["code"])
	assert.Equal(t, map[string]any{"title": "is required"}, out["details"])
}

func TestHandleError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.New("disk on fire"), discard())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "internal server error", out["error"])
}
