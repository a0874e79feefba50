package main

import "time"

// Client types for registered applications
const (
	ClientConfidential = "confidential"
	ClientPublic       = "public"
)

// User represents a resource owner
type User struct {
	ID        int64
	Username  string
	Password  string // bcrypt hash
	CreatedAt time.Time
}

// Application represents a registered OAuth client
type Application struct {
	ID           int64
	ClientID     string
	ClientSecret string // bcrypt hash
	ClientType   string
	Name         string
	CreatedAt    time.Time
}

// AccessToken is an opaque bearer credential issued by the grant subsystem.
// This service only reads tokens; issuance and revocation happen elsewhere.
type AccessToken struct {
	Token         string
	UserID        *int64 // Optional: tokens from client-credential grants have no user
	ApplicationID *int64
	ExpiresAt     time.Time
	Scope         string // space-delimited, echoed verbatim in introspection output
	CreatedAt     time.Time
}

// TokenRecord bundles an access token with its application and user.
// Adapters populate it from a single combined read.
type TokenRecord struct {
	Token       AccessToken
	Application *Application // nil when the token has no application
	User        *User        // nil when the token has no user
}

// PrincipalKind tags what kind of caller passed credential verification.
type PrincipalKind int

const (
	// PrincipalResourceServer authenticated with its own bearer token
	PrincipalResourceServer PrincipalKind = iota
	// PrincipalApplication authenticated with client_id/client_secret
	PrincipalApplication
)

// Principal is the verified identity of an introspection caller.
// It lives only for the duration of one request.
type Principal struct {
	Kind        PrincipalKind
	Token       *TokenRecord // set for resource-server callers
	Application *Application // set for client callers
}
