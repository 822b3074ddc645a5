package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestApp(t *testing.T, extra string) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	path := writeConfig(t, fmt.Sprintf(`
redis:
  addr: %q
session:
  signing_key: %q
%s`, mr.Addr(), strings.Repeat("k", 32), extra))

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)
	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func createSession(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := do(h, httptest.NewRequest(http.MethodPost, "/auth/session/create", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec
}

func TestServerSessionLifecycle(t *testing.T) {
	a := newTestApp(t, "")
	h := a.routes()

	rec := createSession(t, h, `{"userId":"user-1","sessionDataInDatabase":{"plan":"pro"}}`)
	created := decode(t, rec)
	require.Equal(t, "OK", created["status"])
	require.Equal(t, "user-1", created["userId"])
	access := rec.Header().Get("st-access-token")
	refresh := rec.Header().Get("st-refresh-token")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	require.NotEmpty(t, rec.Header().Get("front-token"))

	req := httptest.NewRequest(http.MethodGet, "/sessioninfo", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode(t, rec)
	require.Equal(t, "user-1", info["userId"])
	require.Equal(t, created["sessionHandle"], info["sessionHandle"])
	require.Equal(t, map[string]any{"plan": "pro"}, info["sessionDataInDatabase"])

	req = httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEqual(t, refresh, rec.Header().Get("st-refresh-token"))
	access = rec.Header().Get("st-access-token")

	req = httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec = do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "remove", rec.Header().Get("front-token"))
}

func TestServerSessionInfoRequiresSession(t *testing.T) {
	h := newTestApp(t, "").routes()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/sessioninfo", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorised", decode(t, rec)["message"])
}

func TestServerCreateRejectsBadInput(t *testing.T) {
	h := newTestApp(t, "").routes()

	rec := do(h, httptest.NewRequest(http.MethodPost, "/auth/session/create", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodPost, "/auth/session/create", strings.NewReader(`{"tenantId":"t1"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "userId is required", decode(t, rec)["message"])

	rec = do(h, httptest.NewRequest(http.MethodGet, "/auth/session/create", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerCookieTransfer(t *testing.T) {
	h := newTestApp(t, "  transfer_method: cookie\n").routes()

	rec := createSession(t, h, `{"userId":"user-2"}`)
	require.Empty(t, rec.Header().Get("st-access-token"))

	var names []string
	for _, c := range rec.Result().Cookies() {
		names = append(names, c.Name)
	}
	require.Contains(t, names, "sAccessToken")
	require.Contains(t, names, "sRefreshToken")
}

func TestServerMetricsAndHealth(t *testing.T) {
	h := newTestApp(t, "").routes()
	createSession(t, h, `{"userId":"user-1"}`)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gosession_session_created_total 1")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
}

func TestServerRequestID(t *testing.T) {
	h := newTestApp(t, "").routes()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	require.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, id)
	rec = do(h, req)
	require.Equal(t, id, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rec = do(h, req)
	require.NotEqual(t, "not-a-uuid", rec.Header().Get(requestIDHeader))
}

func TestEngineConfigTransferMethod(t *testing.T) {
	base := SessionConfig{
		APIDomain:      "http://localhost:3001",
		WebsiteDomain:  "http://localhost:3000",
		APIBasePath:    "/auth",
		TransferMethod: "any",
		AntiCSRF:       "NONE",
	}
	cfg := engineConfig(base)
	require.Nil(t, cfg.Transfer.GetTokenTransferMethod)
	require.Equal(t, goSession.AntiCSRFNone, cfg.AntiCSRF.Mode)

	base.TransferMethod = "header"
	cfg = engineConfig(base)
	require.NotNil(t, cfg.Transfer.GetTokenTransferMethod)
	require.Equal(t, goSession.TransferHeader, cfg.Transfer.GetTokenTransferMethod(nil, true))
}

func TestZapAuditSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := newZapAuditSink(zap.New(core))

	sink.Emit(context.Background(), goSession.AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "session_created",
		UserID:        "user-1",
		SessionHandle: "h1",
		Success:       true,
	})
	sink.Emit(context.Background(), goSession.AuditEvent{
		EventType: "token_theft_detected",
		Error:     "token theft detected",
		Metadata:  map[string]string{"reason": "reuse"},
	})

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "user-1", entries[0].ContextMap()["user_id"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "reuse", entries[1].ContextMap()["meta_reason"])
}
