package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/justachat/irc-bridge/internal/constants"
	"github.com/justachat/irc-bridge/internal/utils"
)

// TokenAuth is a middleware that requires the configured admin bearer token.
// The comparison is constant time so the token cannot be probed byte by byte.
func TokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				utils.Unauthorized(w, constants.MsgAuthRequired)
				return
			}

			presented := bearerToken(r)
			if presented == "" {
				utils.Unauthorized(w, constants.MsgAuthRequired)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				utils.Unauthorized(w, constants.MsgAccessDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from the Authorization header,
// accepting both "Bearer <token>" and a bare token value.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(header)
}
