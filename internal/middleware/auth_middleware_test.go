package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protectedHandler(token string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return TokenAuth(token)(next)
}

func TestTokenAuth(t *testing.T) {
	t.Run("Valid bearer token is accepted", func(t *testing.T) {
		// Arrange
		handler := protectedHandler("sekret")
		req := httptest.NewRequest(http.MethodGet, "/bans", nil)
		req.Header.Set("Authorization", "Bearer sekret")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Bare token without Bearer prefix is accepted", func(t *testing.T) {
		// Arrange
		handler := protectedHandler("sekret")
		req := httptest.NewRequest(http.MethodGet, "/bans", nil)
		req.Header.Set("Authorization", "sekret")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Missing header is rejected", func(t *testing.T) {
		// Arrange
		handler := protectedHandler("sekret")
		req := httptest.NewRequest(http.MethodGet, "/bans", nil)
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Wrong token is rejected", func(t *testing.T) {
		// Arrange
		handler := protectedHandler("sekret")
		req := httptest.NewRequest(http.MethodGet, "/bans", nil)
		req.Header.Set("Authorization", "Bearer guess")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Empty configured token rejects everything", func(t *testing.T) {
		// Arrange
		handler := protectedHandler("")
		req := httptest.NewRequest(http.MethodGet, "/bans", nil)
		req.Header.Set("Authorization", "Bearer ")
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRecovery(t *testing.T) {
	t.Run("Panic becomes a 500 response", func(t *testing.T) {
		// Arrange
		panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		handler := Recovery()(panicking)
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "internal_error")
	})

	t.Run("Normal requests pass through", func(t *testing.T) {
		// Arrange
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		handler := Recovery()(next)
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		rec := httptest.NewRecorder()

		// Act
		handler.ServeHTTP(rec, req)

		// Assert
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
