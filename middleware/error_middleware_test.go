package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport-server/utils/errors"
)

func TestWriteError_APIErrorPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errors.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, "Resource not found", body.Message)
}

func TestWriteError_WrapsPlainErrors(t *testing.T) {
	// A plain error must still serialize as a full APIError body, not an
	// empty object.
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errors.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "UNKNOWN_ERROR", body.Code)
	assert.Equal(t, "Unexpected error", body.Message)
	assert.Equal(t, "boom", body.Details)
}
