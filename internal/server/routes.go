package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/justachat/irc-bridge/internal/constants"
	"github.com/justachat/irc-bridge/internal/middleware"
	"github.com/justachat/irc-bridge/internal/utils"
)

// SetupRoutes configures the admin control plane routes.
//
// The configured routes include:
// - Status endpoint (unprotected, no client-identifying data)
// - Connection listing and kicking
// - Ban table management
// - Rate-limit violation inspection
// - Geolocation statistics
// - Operator broadcasts
//
// Everything except /status requires the configured admin bearer token.
func (s *Server) SetupRoutes() {
	r := chi.NewRouter()

	r.Use(corsMiddleware())
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery())
	r.Use(chimiddleware.RealIP)

	// Status route (unprotected)
	r.Get("/status", s.admin.Status)

	// Protected admin routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(s.cfg.Admin.Token))

		r.Get("/connections", s.admin.ListConnections)
		r.Post("/kick/{id}", s.admin.KickConnection)

		r.Get("/bans", s.admin.ListBans)
		r.Post("/ban", s.admin.BanIP)
		r.Post("/unban", s.admin.UnbanIP)

		r.Get("/violations", s.admin.ListViolations)
		r.Get("/geoip", s.admin.GeoIPStats)

		r.Post("/broadcast", s.admin.Broadcast)
	})

	// JSON 404 for anything else
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.NotFound(w, constants.MsgResourceNotFound)
	})

	s.router = r
}

// corsMiddleware allows browser-based admin dashboards to call the control
// plane from any origin; access control is the bearer token, not the origin.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
