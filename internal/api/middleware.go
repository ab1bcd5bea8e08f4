// Package api implements the nb2py REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth modes understood by AuthMiddleware.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Auth describes how API requests are authenticated.
type Auth struct {
	Mode  string
	Token string
}

// AuthMiddleware returns middleware enforcing auth.Mode. Disabled (or empty)
// lets every request through, token mode requires
// "Authorization: Bearer <token>". Any other mode rejects every request.
func AuthMiddleware(auth Auth) func(http.Handler) http.Handler {
	switch auth.Mode {
	case AuthModeDisabled, "":
		return func(next http.Handler) http.Handler { return next }
	case AuthModeToken:
		want := []byte(auth.Token)
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok := bearerToken(r)
				if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
					unauthorized(w)
					return
				}
				next.ServeHTTP(w, r)
			})
		}
	default:
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				unauthorized(w)
			})
		}
	}
}

// bearerToken extracts the credentials of a Bearer Authorization header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="nb2py"`)
	writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
}
