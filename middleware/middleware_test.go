package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/core/rediscore"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *goSession.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("middleware-test-secret-012345678")})
	require.NoError(t, err)
	c, err := rediscore.New(rdb, tokens, rediscore.Config{})
	require.NoError(t, err)

	e, err := goSession.New().WithCoreClient(c).Build()
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

type headerTokens struct {
	access  string
	refresh string
}

func createHeaderSession(t *testing.T, e *goSession.Engine) headerTokens {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/session/create", nil)
	rec := httptest.NewRecorder()
	_, err := e.CreateNewSession(context.Background(), goSession.NewHTTPRequest(req), goSession.NewHTTPResponse(rec), goSession.CreateSessionInput{UserID: "user-1"})
	require.NoError(t, err)

	out := headerTokens{
		access:  rec.Header().Get("st-access-token"),
		refresh: rec.Header().Get("st-refresh-token"),
	}
	require.NotEmpty(t, out.access)
	require.NotEmpty(t, out.refresh)
	return out
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(s.UserID()))
	})
}

func TestVerifySessionRejectsMissingToken(t *testing.T) {
	e := newTestEngine(t)
	h := VerifySession(e, nil)(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorised", decodeBody(t, rec)["message"])
}

func TestVerifySessionStoresSessionInContext(t *testing.T) {
	e := newTestEngine(t)
	tokens := createHeaderSession(t, e)
	h := VerifySession(e, nil)(echoUser())

	req := httptest.NewRequest(http.MethodPost, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", rec.Body.String())
}

func TestVerifySessionGarbageTokenCountsAsMissing(t *testing.T) {
	e := newTestEngine(t)
	h := OptionalSession(e)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "anonymous", rec.Body.String())
}

func TestVerifySessionNilEngine(t *testing.T) {
	rec := httptest.NewRecorder()
	VerifySession(nil, nil)(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshHandlerRotatesAndDetectsReuse(t *testing.T) {
	e := newTestEngine(t)
	tokens := createHeaderSession(t, e)
	h := RefreshHandler(e)

	req := httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.refresh)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("st-access-token"))
	require.NotEmpty(t, rec.Header().Get("front-token"))
	next := rec.Header().Get("st-refresh-token")
	require.NotEmpty(t, next)
	require.NotEqual(t, tokens.refresh, next)

	replay := httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil)
	replay.Header.Set("Authorization", "Bearer "+tokens.refresh)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, replay)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "token theft detected", decodeBody(t, rec)["message"])
	require.Equal(t, "remove", rec.Header().Get("front-token"))
}

func TestRefreshHandlerRejectsGet(t *testing.T) {
	e := newTestEngine(t)
	rec := httptest.NewRecorder()
	RefreshHandler(e).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/session/refresh", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestSignOutRevokesSession(t *testing.T) {
	e := newTestEngine(t)
	tokens := createHeaderSession(t, e)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.access)
	rec := httptest.NewRecorder()
	SignOutHandler(e).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", decodeBody(t, rec)["status"])
	require.Equal(t, "remove", rec.Header().Get("front-token"))

	// The access token still verifies offline but not against the store.
	check := httptest.NewRequest(http.MethodPost, "/private", nil)
	check.Header.Set("Authorization", "Bearer "+tokens.access)
	rec = httptest.NewRecorder()
	RequireDatabaseCheck(e)(echoUser()).ServeHTTP(rec, check)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorised", decodeBody(t, rec)["message"])
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"try refresh", &goSession.TryRefreshTokenError{Reason: "expired"}, http.StatusUnauthorized, "try refresh token"},
		{"unauthorised", &goSession.UnauthorisedError{ClearTokens: true}, http.StatusUnauthorized, "unauthorised"},
		{"theft", &goSession.TokenTheftError{SessionHandle: "h"}, http.StatusUnauthorized, "token theft detected"},
		{"core down", goSession.ErrCoreUnavailable, http.StatusServiceUnavailable, "service unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.message, decodeBody(t, rec)["message"])
		})
	}
}

func TestWriteErrorInvalidClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &goSession.InvalidClaimsError{Failures: []goSession.ClaimValidationError{
		{ID: "st-role", Reason: map[string]any{"message": "wrong value"}},
	}})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "invalid claim", body["message"])
	failures, ok := body["claimValidationErrors"].([]any)
	require.True(t, ok)
	require.Len(t, failures, 1)
	require.Equal(t, "st-role", failures[0].(map[string]any)["id"])
}
