package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/systmms/secretproxy/internal/config"
)

type token struct {
	name   string
	secret []byte
	roles  map[string]bool
}

// Authenticator resolves bearer tokens to configured roles.
type Authenticator struct {
	tokens []token
}

// NewAuthenticator builds an authenticator from resolved token configs.
func NewAuthenticator(tokens []config.TokenConfig) *Authenticator {
	a := &Authenticator{}
	for _, tc := range tokens {
		t := token{
			name:   tc.Name,
			secret: []byte(tc.Token),
			roles:  make(map[string]bool, len(tc.Roles)),
		}
		for _, r := range tc.Roles {
			t.roles[r] = true
		}
		a.tokens = append(a.tokens, t)
	}
	return a
}

// identify returns the token presented in r. Every configured token is
// compared so the time taken does not depend on which one matched.
func (a *Authenticator) identify(r *http.Request) (*token, bool) {
	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || presented == "" {
		return nil, false
	}

	var match *token
	for i := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(presented), a.tokens[i].secret) == 1 {
			match = &a.tokens[i]
		}
	}
	return match, match != nil
}

// require wraps next so only callers holding role reach it. A nil
// authenticator lets every request through.
func (a *Authenticator) require(role string, next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, ok := a.identify(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="secretproxy"`)
			writeError(w, http.StatusUnauthorized, ErrorDetail{
				Message: "Missing or unknown bearer token",
				Type:    "AuthError",
				Code:    CodeAuth,
			})
			return
		}
		if !t.roles[role] {
			writeError(w, http.StatusForbidden, ErrorDetail{
				Message:    "Token lacks the required role",
				Type:       "AuthError",
				Code:       CodeAuth,
				Parameters: []Parameter{{Key: "role", Value: role}, {Key: "token", Value: t.name}},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
