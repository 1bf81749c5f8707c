package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const msgAuthRequired = "Authentication required"

// BearerAuth rejects requests without a matching bearer token. An empty
// token disables the check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, msgAuthRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
