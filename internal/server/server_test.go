package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/report"
	ws "github.com/suratbrts/cms/internal/websocket"
)

type captureSMS struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureSMS) SendOTP(_ context.Context, mobile, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[mobile] = code
	return nil
}

func (c *captureSMS) code(mobile string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[mobile]
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupServer(t *testing.T) (*Server, http.Handler, *captureSMS) {
	return setupServerWithLog(t, io.Discard)
}

func setupServerWithLog(t *testing.T, out io.Writer) (*Server, http.Handler, *captureSMS) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sms := &captureSMS{codes: make(map[string]string)}
	srv := New(db, Config{
		Tokens:   auth.NewTokenIssuer("test-secret", time.Hour),
		SMS:      sms,
		Hub:      ws.NewHub(logger),
		Archiver: report.NewArchiver(report.S3Config{}, logger),
	}, logger)
	return srv, srv.Router(), sms
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	return rec.Code, env
}

func citizenToken(t *testing.T, h http.Handler, sms *captureSMS, mobile string) string {
	t.Helper()
	code, env := call(t, h, http.MethodPost, "/api/auth/otp/send", "", map[string]string{"mobile": mobile})
	require.Equal(t, http.StatusOK, code, env.Error)
	var sent struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sent))

	code, env = call(t, h, http.MethodPost, "/api/auth/otp/verify", "", map[string]string{
		"sessionId": sent.SessionID,
		"otp":       sms.code(mobile),
		"name":      "Asha",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var login auth.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.True(t, login.IsNewUser)
	return login.Token
}

func TestHealth(t *testing.T) {
	_, h, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCitizenRoutes(t *testing.T) {
	_, h, sms := setupServer(t)

	code, env := call(t, h, http.MethodGet, "/api/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.False(t, env.Success)

	token := citizenToken(t, h, sms, "9876543210")

	code, env = call(t, h, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var me model.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	require.Equal(t, "9876543210", me.Mobile)

	code, env = call(t, h, http.MethodPost, "/api/complaints", token, map[string]string{
		"type":        "Overcrowding",
		"description": "Standing room only at 9am",
		"stop":        "Kadodara",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	require.Contains(t, string(env.Data), `"pointsAwarded":10`)

	code, _ = call(t, h, http.MethodGet, "/api/admin/complaints", token, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, h, http.MethodGet, "/api/users/me", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, h, http.MethodPost, "/api/complaints", "not-a-token", map[string]string{
		"type": "Overcrowding", "description": "x", "stop": "y",
	})
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestLogLinesCarryOneComponent(t *testing.T) {
	var out lockedBuffer
	_, h, sms := setupServerWithLog(t, &out)

	token := citizenToken(t, h, sms, "9876543213")
	code, env := call(t, h, http.MethodPost, "/api/complaints", token, map[string]string{
		"type":        "Overcrowding",
		"description": "Doors blocked at Udhna",
		"stop":        "Udhna",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	logs := out.String()
	for _, component := range []string{"auth", "complaint", "ledger"} {
		require.Contains(t, logs, "component="+component)
	}
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		require.LessOrEqual(t, strings.Count(line, "component="), 1, line)
	}
}

func TestAdminRoutesAndPermissions(t *testing.T) {
	srv, h, _ := setupServer(t)
	ctx := context.Background()

	created, err := srv.Auth().Bootstrap(ctx, "Root", "root@brts.in", "root-password")
	require.NoError(t, err)
	require.True(t, created)

	code, env := call(t, h, http.MethodPost, "/api/admin/auth/login", "", map[string]string{
		"email": "root@brts.in", "password": "root-password",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var login auth.AdminLoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	root := login.Token

	code, env = call(t, h, http.MethodGet, "/api/admin/dashboard", root, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = call(t, h, http.MethodPost, "/api/admin/roles", root, map[string]any{
		"name":        "viewer",
		"permissions": []string{model.PermComplaintsView},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var role model.Role
	require.NoError(t, json.Unmarshal(env.Data, &role))

	code, env = call(t, h, http.MethodPost, "/api/admin/admins", root, map[string]any{
		"name": "Viewer", "email": "viewer@brts.in", "password": "viewer-password", "roleId": role.ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = call(t, h, http.MethodPost, "/api/admin/auth/login", "", map[string]string{
		"email": "viewer@brts.in", "password": "viewer-password",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &login))
	viewer := login.Token

	code, _ = call(t, h, http.MethodGet, "/api/admin/complaints", viewer, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, h, http.MethodGet, "/api/admin/withdrawals", viewer, nil)
	require.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, h, http.MethodGet, "/api/users/me", viewer, nil)
	require.Equal(t, http.StatusForbidden, code)

	// Granting the permission on the role takes effect for the same token.
	code, env = call(t, h, http.MethodPut, "/api/admin/roles/"+itoa(role.ID), root, map[string]any{
		"permissions": []string{model.PermComplaintsView, model.PermWithdrawalsView},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	code, _ = call(t, h, http.MethodGet, "/api/admin/withdrawals", viewer, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, h, http.MethodPut, "/api/admin/admins/"+itoa(login.Admin.ID)+"/status", viewer, map[string]bool{"isActive": false})
	require.Equal(t, http.StatusForbidden, code, env.Error)
}

func TestOTPSendIsRateLimited(t *testing.T) {
	_, h, _ := setupServer(t)

	var last int
	for i := 0; i < 6; i++ {
		last, _ = call(t, h, http.MethodPost, "/api/auth/otp/send", "", map[string]string{"mobile": "9876543211"})
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestRoomsFor(t *testing.T) {
	srv, h, sms := setupServer(t)
	token := citizenToken(t, h, sms, "9876543212")

	rooms, err := srv.roomsFor(context.Background(), token)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Regexp(t, `^user:\d+$`, rooms[0])

	_, err = srv.roomsFor(context.Background(), "garbage")
	require.Error(t, err)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
