package geoip

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachat/irc-bridge/internal/config"
)

// lookupServer fakes the geolocation service, answering every query with the
// given country code.
func lookupServer(t *testing.T, countryCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","country":"Testland","countryCode":"%s","regionName":"Test Region","city":"Testville","isp":"Test ISP"}`, countryCode)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingLookupServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func boolPtr(b bool) *bool {
	return &b
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"localhost", true},
		{"10.0.0.5", true},
		{"192.168.1.1", true},
		{"172.16.0.1", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"203.0.113.10", false},
		{"not-an-ip", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, IsPrivateIP(tt.ip))
		})
	}
}

func TestResolverLookup(t *testing.T) {
	t.Run("Successful lookup returns the resolved location", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Hour})

		// Act
		result := resolver.Lookup(context.Background(), "203.0.113.10")

		// Assert
		require.NotNil(t, result)
		assert.Equal(t, "Testland", result.Country)
		assert.Equal(t, "NO", result.CountryCode)
		assert.Equal(t, "Testville", result.City)
		assert.Equal(t, uint64(1), resolver.Stats().Lookups)
	})

	t.Run("Second lookup is served from the cache", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Hour})
		resolver.Lookup(context.Background(), "203.0.113.10")

		// Act
		result := resolver.Lookup(context.Background(), "203.0.113.10")

		// Assert
		require.NotNil(t, result)
		stats := resolver.Stats()
		assert.Equal(t, uint64(1), stats.Lookups)
		assert.Equal(t, uint64(1), stats.CacheHits)
	})

	t.Run("Expired cache entry triggers a fresh lookup", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Millisecond})
		resolver.Lookup(context.Background(), "203.0.113.10")

		// Act
		time.Sleep(5 * time.Millisecond)
		resolver.Lookup(context.Background(), "203.0.113.10")

		// Assert
		assert.Equal(t, uint64(2), resolver.Stats().Lookups)
	})

	t.Run("Service failure yields nil and counts an error", func(t *testing.T) {
		// Arrange
		srv := failingLookupServer(t)
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Hour})

		// Act
		result := resolver.Lookup(context.Background(), "203.0.113.10")

		// Assert
		assert.Nil(t, result)
		assert.Equal(t, uint64(1), resolver.Stats().Errors)
	})

	t.Run("Unsuccessful provider status yields nil", func(t *testing.T) {
		// Arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"fail","message":"reserved range"}`)
		}))
		t.Cleanup(srv.Close)
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Hour})

		// Act
		result := resolver.Lookup(context.Background(), "10.0.0.1")

		// Assert
		assert.Nil(t, result)
		assert.Equal(t, uint64(1), resolver.Stats().Errors)
	})
}

func TestResolverShouldAllow(t *testing.T) {
	t.Run("Disabled policy allows everyone", func(t *testing.T) {
		// Arrange
		resolver := NewResolver(&config.GeoSettings{Enabled: false})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.True(t, decision.Allowed)
	})

	t.Run("Empty country list allows everyone", func(t *testing.T) {
		// Arrange
		resolver := NewResolver(&config.GeoSettings{Enabled: true, Mode: "block"})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.True(t, decision.Allowed)
	})

	t.Run("Private addresses bypass the policy", func(t *testing.T) {
		// Arrange: no lookup server; a lookup attempt would fail closed
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "block",
			Countries: []string{"NO"},
			FailOpen:  boolPtr(false),
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "192.168.1.5")

		// Assert
		assert.True(t, decision.Allowed)
		assert.Equal(t, uint64(0), resolver.Stats().Lookups)
	})

	t.Run("Block mode denies a listed country", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "block",
			Countries: []string{"no"},
			LookupURL: srv.URL,
			CacheTTL:  time.Hour,
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.False(t, decision.Allowed)
		require.NotNil(t, decision.Result)
		assert.Equal(t, "NO", decision.Result.CountryCode)
		assert.Equal(t, uint64(1), resolver.Stats().Blocked)
	})

	t.Run("Block mode allows an unlisted country", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "SE")
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "block",
			Countries: []string{"NO"},
			LookupURL: srv.URL,
			CacheTTL:  time.Hour,
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.True(t, decision.Allowed)
		require.NotNil(t, decision.Result)
	})

	t.Run("Allow mode permits only listed countries", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "SE")
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "allow",
			Countries: []string{"NO"},
			LookupURL: srv.URL,
			CacheTTL:  time.Hour,
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.False(t, decision.Allowed)
	})

	t.Run("Failed lookup falls open when configured", func(t *testing.T) {
		// Arrange
		srv := failingLookupServer(t)
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "block",
			Countries: []string{"NO"},
			FailOpen:  boolPtr(true),
			LookupURL: srv.URL,
			CacheTTL:  time.Hour,
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.True(t, decision.Allowed)
	})

	t.Run("Failed lookup falls closed when configured", func(t *testing.T) {
		// Arrange
		srv := failingLookupServer(t)
		resolver := NewResolver(&config.GeoSettings{
			Enabled:   true,
			Mode:      "block",
			Countries: []string{"NO"},
			FailOpen:  boolPtr(false),
			LookupURL: srv.URL,
			CacheTTL:  time.Hour,
		})

		// Act
		decision := resolver.ShouldAllow(context.Background(), "203.0.113.10")

		// Assert
		assert.False(t, decision.Allowed)
	})
}

func TestResolverCache(t *testing.T) {
	t.Run("Snapshot excludes expired entries", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: 10 * time.Millisecond})
		resolver.Lookup(context.Background(), "203.0.113.10")
		require.Len(t, resolver.CacheSnapshot(), 1)

		// Act
		time.Sleep(20 * time.Millisecond)

		// Assert
		assert.Empty(t, resolver.CacheSnapshot())
	})

	t.Run("Sweep removes expired entries", func(t *testing.T) {
		// Arrange
		srv := lookupServer(t, "NO")
		resolver := NewResolver(&config.GeoSettings{LookupURL: srv.URL, CacheTTL: time.Millisecond})
		resolver.Lookup(context.Background(), "203.0.113.10")

		// Act
		time.Sleep(5 * time.Millisecond)
		resolver.sweep()

		// Assert
		resolver.mu.RLock()
		defer resolver.mu.RUnlock()
		assert.Empty(t, resolver.cache)
	})
}
