package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testClientID     = "test-client"
	testClientSecret = "test-secret"

	resourceServerToken = "12345678900"
	validToken          = "12345678901"
	expiredToken        = "12345678902"
	tokenWithoutUser    = "12345678903"
	tokenWithoutApp     = "12345678904"
	expiredServerToken  = "12345678905"
)

type fixtures struct {
	app     *Application
	user    *User
	expires time.Time
}

// newTestApp seeds the memory store the way the grant subsystem would:
// one client application, one user, a resource-server token carrying the
// introspection scope, and a spread of subject tokens.
func newTestApp(t *testing.T) (*App, *fixtures) {
	t.Helper()

	db := NewMemoryDB()

	secretHash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)
	application, err := db.CreateApplication(testClientID, string(secretHash), ClientConfidential, "Test Application")
	require.NoError(t, err)

	user, err := db.CreateUser("bar_user", "unused-hash")
	require.NoError(t, err)

	expires := time.Now().Add(24 * time.Hour)
	expired := time.Now().Add(-24 * time.Hour)

	require.NoError(t, db.CreateAccessToken(resourceServerToken, nil, &application.ID, expires, "introspection"))
	require.NoError(t, db.CreateAccessToken(validToken, &user.ID, &application.ID, expires, "read write dolphin"))
	require.NoError(t, db.CreateAccessToken(expiredToken, &user.ID, &application.ID, expired, "read write dolphin"))
	require.NoError(t, db.CreateAccessToken(tokenWithoutUser, nil, &application.ID, expires, "read write dolphin"))
	require.NoError(t, db.CreateAccessToken(tokenWithoutApp, &user.ID, nil, expires, "read write dolphin"))
	require.NoError(t, db.CreateAccessToken(expiredServerToken, nil, &application.ID, expired, "introspection"))

	return &App{DB: db, IntrospectionScope: "introspection"}, &fixtures{app: application, user: user, expires: expires}
}

func introspectGET(app *App, target string, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth/introspect?token="+url.QueryEscape(target), nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, req)
	return rr
}

func introspectPOST(app *App, form url.Values, configure func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth/introspect", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if configure != nil {
		configure(req)
	}
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestIntrospectForbiddenWithoutCredentials(t *testing.T) {
	app, _ := newTestApp(t)

	// no credentials at all
	rr := introspectGET(app, validToken, "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	// a valid target token must not change the outcome or leak state
	rr = introspectPOST(app, url.Values{"token": {validToken}}, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.NotContains(t, rr.Body.String(), "active")
}

func TestIntrospectGetValidToken(t *testing.T) {
	app, fx := newTestApp(t)

	rr := introspectGET(app, validToken, resourceServerToken)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	require.Equal(t, map[string]interface{}{
		"active":    true,
		"scope":     "read write dolphin",
		"client_id": fx.app.ClientID,
		"username":  fx.user.Username,
		"exp":       float64(fx.expires.UTC().Unix()),
	}, decodeBody(t, rr))
}

func TestIntrospectTokenWithoutUserOmitsUsername(t *testing.T) {
	app, fx := newTestApp(t)

	rr := introspectGET(app, tokenWithoutUser, resourceServerToken)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	require.NotContains(t, body, "username")
	require.Equal(t, map[string]interface{}{
		"active":    true,
		"scope":     "read write dolphin",
		"client_id": testClientID,
		"exp":       float64(fx.expires.UTC().Unix()),
	}, body)
}

func TestIntrospectTokenWithoutAppOmitsClientID(t *testing.T) {
	app, fx := newTestApp(t)

	rr := introspectGET(app, tokenWithoutApp, resourceServerToken)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	require.NotContains(t, body, "client_id")
	require.Equal(t, map[string]interface{}{
		"active":   true,
		"scope":    "read write dolphin",
		"username": fx.user.Username,
		"exp":      float64(fx.expires.UTC().Unix()),
	}, body)
}

func TestIntrospectExpiredToken(t *testing.T) {
	app, _ := newTestApp(t)

	rr := introspectGET(app, expiredToken, resourceServerToken)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"active":false}`, strings.TrimSpace(rr.Body.String()))
}

func TestIntrospectUnknownAndExpiredAreIndistinguishable(t *testing.T) {
	app, _ := newTestApp(t)

	expired := introspectGET(app, expiredToken, resourceServerToken)
	unknown := introspectGET(app, "kaudawelsch", resourceServerToken)

	require.Equal(t, http.StatusOK, expired.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, expired.Body.Bytes(), unknown.Body.Bytes())
	require.Equal(t, `{"active":false}`, strings.TrimSpace(unknown.Body.String()))
}

func TestIntrospectPostFormToken(t *testing.T) {
	app, fx := newTestApp(t)

	rr := introspectPOST(app, url.Values{"token": {validToken}}, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+resourceServerToken)
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]interface{}{
		"active":    true,
		"scope":     "read write dolphin",
		"client_id": testClientID,
		"username":  fx.user.Username,
		"exp":       float64(fx.expires.UTC().Unix()),
	}, decodeBody(t, rr))
}

func TestIntrospectMissingTokenParameter(t *testing.T) {
	app, _ := newTestApp(t)

	rr := introspectPOST(app, url.Values{}, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+resourceServerToken)
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"active":false}`, strings.TrimSpace(rr.Body.String()))
}

func TestIntrospectBasicAuth(t *testing.T) {
	app, fx := newTestApp(t)

	rr := introspectPOST(app, url.Values{"token": {validToken}}, func(req *http.Request) {
		req.SetBasicAuth(testClientID, testClientSecret)
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]interface{}{
		"active":    true,
		"scope":     "read write dolphin",
		"client_id": testClientID,
		"username":  fx.user.Username,
		"exp":       float64(fx.expires.UTC().Unix()),
	}, decodeBody(t, rr))

	// wrong secret
	rr = introspectPOST(app, url.Values{"token": {validToken}}, func(req *http.Request) {
		req.SetBasicAuth(testClientID, testClientSecret+"_so_wrong")
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIntrospectBodyCredentials(t *testing.T) {
	app, _ := newTestApp(t)

	rr := introspectPOST(app, url.Values{
		"token":         {validToken},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeBody(t, rr)["active"])

	rr = introspectPOST(app, url.Values{
		"token":         {validToken},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret + "_so_wrong"},
	}, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIntrospectBearerScopePolicy(t *testing.T) {
	app, _ := newTestApp(t)

	// validToken lacks the introspection scope
	rr := introspectGET(app, validToken, validToken)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// expired bearer token fails even when it carries the right scope
	rr = introspectGET(app, validToken, expiredServerToken)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// unknown bearer token
	rr = introspectGET(app, validToken, "nope")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIntrospectIdempotent(t *testing.T) {
	app, _ := newTestApp(t)

	first := introspectGET(app, validToken, resourceServerToken)
	second := introspectGET(app, validToken, resourceServerToken)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}

func TestIsActiveExpiryBoundary(t *testing.T) {
	now := time.Now()
	rec := &TokenRecord{Token: AccessToken{Token: "t", ExpiresAt: now}}

	// expiring exactly now is inactive
	require.False(t, isActive(rec, now))

	rec.Token.ExpiresAt = now.Add(time.Second)
	require.True(t, isActive(rec, now))

	require.False(t, isActive(nil, now))
}

// countingDB wraps a DB and records how often each read path is hit.
type countingDB struct {
	DB
	tokenReads int
	appReads   int
}

func (c *countingDB) GetAccessToken(token string) (*TokenRecord, error) {
	c.tokenReads++
	return c.DB.GetAccessToken(token)
}

func (c *countingDB) GetApplicationByClientID(clientID string) (*Application, error) {
	c.appReads++
	return c.DB.GetApplicationByClientID(clientID)
}

func TestIntrospectSingleCombinedRead(t *testing.T) {
	app, _ := newTestApp(t)
	counter := &countingDB{DB: app.DB}
	app.DB = counter

	rr := introspectPOST(app, url.Values{"token": {validToken}}, func(req *http.Request) {
		req.SetBasicAuth(testClientID, testClientSecret)
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// the token with its application and user resolves in one store read
	require.Equal(t, 1, counter.tokenReads)
	require.Equal(t, 1, counter.appReads)
}

// failingDB simulates an unreachable backing store.
type failingDB struct{ DB }

func (f *failingDB) GetAccessToken(string) (*TokenRecord, error) {
	return nil, errors.New("connection refused")
}

func (f *failingDB) GetApplicationByClientID(string) (*Application, error) {
	return nil, errors.New("connection refused")
}

func TestIntrospectStoreFailure(t *testing.T) {
	app, _ := newTestApp(t)
	app.DB = &failingDB{DB: app.DB}

	// failure during bearer verification
	rr := introspectGET(app, validToken, resourceServerToken)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	// failure during client verification
	rr = introspectPOST(app, url.Values{"token": {validToken}}, func(req *http.Request) {
		req.SetBasicAuth(testClientID, testClientSecret)
	})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
