package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/http/response"
)

// fixturePath returns the shared envelope fixtures that clients parse in their own tests.
func fixturePath(t *testing.T, name string) string {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get caller info")
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(root, "testdata", "envelope", name)
}

func loadFixture(t *testing.T, name string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(fixturePath(t, name))
	require.NoError(t, err, "contract tests require the shared fixtures")
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func assertSameKeys(t *testing.T, expected, actual map[string]any) {
	t.Helper()
	for key := range actual {
		assert.Contains(t, expected, key, "unexpected field %q", key)
	}
	for key := range expected {
		assert.Contains(t, actual, key, "missing field %q", key)
	}
}

func TestEnvelopeContract_Success(t *testing.T) {
	expected := loadFixture(t, "success.json")

	result, err := EnvelopeTransformer(nil, "200", map[string]string{"id": "swb-0001", "title": "The Old Man and the Sea"})
	require.NoError(t, err)
	actual := roundTrip(t, result)

	assertSameKeys(t, expected, actual)
	assert.Equal(t, expected, actual)
}

func TestEnvelopeContract_SuccessNullData(t *testing.T) {
	expected := loadFixture(t, "success_null_data.json")

	result, err := EnvelopeTransformer(nil, "204", nil)
	require.NoError(t, err)

	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeContract_Error(t *testing.T) {
	expected := loadFixture(t, "error.json")

	apiErr := fromDomain(domainerrors.Forbidden("librarian access required"))
	assert.Equal(t, http.StatusForbidden, apiErr.GetStatus())

	result, err := EnvelopeTransformer(nil, "403", apiErr)
	require.NoError(t, err)
	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeContract_ValidationError(t *testing.T) {
	expected := loadFixture(t, "validation_error.json")

	apiErr := fromDomain(domainerrors.ValidationWithDetails("invalid book", map[string]string{"title": "is required"}))
	result, err := EnvelopeTransformer(nil, "400", apiErr)
	require.NoError(t, err)
	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeTransformer_PassesEnvelopesThrough(t *testing.T) {
	env := response.OK("already wrapped")
	result, err := EnvelopeTransformer(nil, "200", env)
	require.NoError(t, err)
	assert.Equal(t, env, result)
}

func TestEnvelopeContract_HandlerErrorsMatchFixture(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Delete("/api/v1/catalog/books/swb-0001", ts.anonymousToken(t))
	require.Equal(t, http.StatusForbidden, resp.Code)

	var actual map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &actual))
	assertSameKeys(t, loadFixture(t, "error.json"), actual)
	assert.Equal(t, false, actual["success"])
	assert.Equal(t, "FORBIDDEN", actual["code"])
}
