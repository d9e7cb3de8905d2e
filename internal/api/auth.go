package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Credentials are the ones the dev server accepts. A bearer token and a
// consumer key/secret pair may both be set; either one authenticates.
type Credentials struct {
	Token          string
	ConsumerKey    string
	ConsumerSecret string
}

func (c Credentials) empty() bool {
	return c.Token == "" && c.ConsumerKey == ""
}

// RequireAuth rejects requests that present neither the bearer token nor
// the consumer key/secret as HTTP basic auth. With no credentials
// configured every request passes.
func RequireAuth(c Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c.empty() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.bearerOK(r) && !c.basicOK(r) {
				httpError(w, http.StatusUnauthorized, "woocommerce_rest_cannot_view", "Sorry, you cannot list resources.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c Credentials) bearerOK(r *http.Request) bool {
	if c.Token == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	return strings.HasPrefix(auth, prefix) && equal(auth[len(prefix):], c.Token)
}

func (c Credentials) basicOK(r *http.Request) bool {
	if c.ConsumerKey == "" {
		return false
	}
	user, pass, ok := r.BasicAuth()
	// Both comparisons always run.
	userOK := equal(user, c.ConsumerKey)
	passOK := equal(pass, c.ConsumerSecret)
	return ok && userOK && passOK
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
