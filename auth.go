package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// errAuthenticationFailed covers every credential-verification failure.
// Callers never learn which check failed.
var errAuthenticationFailed = errors.New("authentication failed")

// dummySecretHash is compared against when the client_id is unknown, so that
// lookup misses cost the same as secret mismatches.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// verifyCaller authenticates an introspection request. Credential sources are
// tried in order: bearer token, HTTP Basic, form-body client credentials.
func (a *App) verifyCaller(r *http.Request) (*Principal, error) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return a.verifyBearer(strings.TrimPrefix(auth, "Bearer "))
	}
	if clientID, clientSecret, ok := r.BasicAuth(); ok {
		return a.verifyClient(clientID, clientSecret)
	}
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if clientID != "" && clientSecret != "" {
		return a.verifyClient(clientID, clientSecret)
	}
	return nil, errAuthenticationFailed
}

// verifyBearer authenticates a resource server acting with its own access
// token. The token must exist, be unexpired, and carry the configured
// introspection scope.
func (a *App) verifyBearer(tokenValue string) (*Principal, error) {
	rec, err := a.DB.GetAccessToken(tokenValue)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Token.ExpiresAt.After(time.Now()) {
		return nil, errAuthenticationFailed
	}
	if !hasScope(rec.Token.Scope, a.IntrospectionScope) {
		return nil, errAuthenticationFailed
	}
	return &Principal{Kind: PrincipalResourceServer, Token: rec}, nil
}

// verifyClient authenticates a registered application by client credentials.
func (a *App) verifyClient(clientID, clientSecret string) (*Principal, error) {
	app, err := a.DB.GetApplicationByClientID(clientID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(clientSecret))
		return nil, errAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(app.ClientSecret), []byte(clientSecret)); err != nil {
		return nil, errAuthenticationFailed
	}
	return &Principal{Kind: PrincipalApplication, Application: app}, nil
}

// hasScope reports whether a space-delimited scope string contains the
// required scope token.
func hasScope(scope, required string) bool {
	for _, s := range strings.Fields(scope) {
		if s == required {
			return true
		}
	}
	return false
}
