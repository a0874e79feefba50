package main

import (
	"errors"
	"net/http"
	"time"
)

// introspectionResponse is the RFC 7662 disclosure payload. Pointer fields
// with omitempty keep absent associations out of the serialized body
// entirely rather than rendering them as null.
type introspectionResponse struct {
	Active   bool    `json:"active"`
	Scope    *string `json:"scope,omitempty"`
	Exp      *int64  `json:"exp,omitempty"`
	ClientID *string `json:"client_id,omitempty"`
	Username *string `json:"username,omitempty"`
}

// isActive reports whether a resolved token is currently usable. A token
// expiring exactly now is inactive.
func isActive(rec *TokenRecord, now time.Time) bool {
	return rec != nil && rec.Token.ExpiresAt.After(now)
}

// buildIntrospection assembles the response body. Inactive tokens disclose
// nothing beyond the active flag, so a caller cannot tell an expired token
// from one that never existed.
func buildIntrospection(active bool, rec *TokenRecord) introspectionResponse {
	if !active {
		return introspectionResponse{Active: false}
	}
	scope := rec.Token.Scope
	exp := rec.Token.ExpiresAt.UTC().Unix()
	resp := introspectionResponse{Active: true, Scope: &scope, Exp: &exp}
	if rec.Application != nil {
		resp.ClientID = &rec.Application.ClientID
	}
	if rec.User != nil {
		resp.Username = &rec.User.Username
	}
	return resp
}

// HandleIntrospect implements OAuth 2.0 token introspection (RFC 7662)
// GET|POST /oauth/introspect
func (a *App) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	if _, err := a.verifyCaller(r); err != nil {
		if !errors.Is(err, errAuthenticationFailed) {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Credential verification failed")
			return
		}
		writeError(w, http.StatusForbidden, "ACCESS_DENIED", "Authentication credentials were missing or incorrect")
		return
	}

	var rec *TokenRecord
	if token := introspectionTarget(r); token != "" {
		var err error
		rec, err = a.DB.GetAccessToken(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Token lookup failed")
			return
		}
	}

	active := isActive(rec, time.Now())
	if active {
		introspectionResults.WithLabelValues("active").Inc()
	} else {
		introspectionResults.WithLabelValues("inactive").Inc()
	}
	writeJSON(w, http.StatusOK, buildIntrospection(active, rec))
}

// introspectionTarget extracts the token parameter from the query string
// (GET) or the form body (POST).
func introspectionTarget(r *http.Request) string {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("token")
	}
	return r.PostFormValue("token")
}
