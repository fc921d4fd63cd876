package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Run("2xx responses are marked successful", func(t *testing.T) {
		// Arrange
		rec := httptest.NewRecorder()

		// Act
		JSON(rec, http.StatusOK, map[string]int{"count": 3})

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var response Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Nil(t, response.Error)
	})
}

func TestError(t *testing.T) {
	t.Run("Error envelope carries code and message", func(t *testing.T) {
		// Arrange
		rec := httptest.NewRecorder()

		// Act
		Error(rec, http.StatusForbidden, "forbidden", "Access denied", map[string]string{"ip": "bad"})

		// Assert
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.False(t, response.Success)
		require.NotNil(t, response.Error)
		assert.Equal(t, "forbidden", response.Error.Code)
		assert.Equal(t, "Access denied", response.Error.Message)
		assert.Equal(t, "bad", response.Error.Details["ip"])
	})
}

func TestErrorFromAppError(t *testing.T) {
	t.Run("Validation error maps to its code and field", func(t *testing.T) {
		// Arrange
		rec := httptest.NewRecorder()
		appErr := NewValidationError("ip", "Must be a valid IP address")

		// Act
		ErrorFromAppError(rec, appErr)

		// Assert
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var response Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, "validation_error", response.Error.Code)
		assert.Equal(t, "Must be a valid IP address", response.Error.Details["ip"])
	})

	t.Run("Not found error maps to 404", func(t *testing.T) {
		// Arrange
		rec := httptest.NewRecorder()
		appErr := NewNotFoundError("ban", "203.0.113.10")

		// Act
		ErrorFromAppError(rec, appErr)

		// Assert
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		send   func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "nope", nil) }, http.StatusBadRequest, "bad_request"},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "nope") }, http.StatusUnauthorized, "unauthorized"},
		{"Forbidden", func(w http.ResponseWriter) { Forbidden(w, "nope") }, http.StatusForbidden, "forbidden"},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "nope") }, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.send(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}
