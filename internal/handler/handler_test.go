package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/complaint"
	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/report"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/websocket"
	"github.com/suratbrts/cms/internal/withdrawal"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) Publish(room string, msg websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, room+":"+msg.Event)
}

type fakeNotifier struct{}

func (fakeNotifier) NotifyUser(context.Context, int64, push.Payload) int { return 0 }

type testEnv struct {
	db          *sql.DB
	ledger      *ledger.Ledger
	broadcaster *fakeBroadcaster
	mux         *http.ServeMux
	adminID     int64
}

// setupHandlers wires every handler onto a mux without the auth middleware.
// Requests carry their principal through the do helper.
func setupHandlers(t *testing.T, dev bool) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs := NewResponder(dev, logger)
	b := &fakeBroadcaster{}
	l := ledger.New(db, logger)

	admin, err := store.NewAdminStore(db).Create(context.Background(), "Reviewer", "reviewer@brts.in", "hash", nil)
	require.NoError(t, err)

	complaintH := NewComplaintHandler(rs, complaint.NewEngine(db, l, b, fakeNotifier{}, logger))
	withdrawalH := NewWithdrawalHandler(rs, withdrawal.NewEngine(db, l, b, fakeNotifier{}, logger))
	userH := NewUserHandler(rs, store.NewUserStore(db))
	pointsH := NewPointsHandler(rs, l)
	configH := NewConfigHandler(rs, store.NewConfigStore(db), b)
	reportH := NewReportHandler(rs, report.NewService(db, report.NewArchiver(report.S3Config{}, logger), logger))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/complaints", complaintH.Submit)
	mux.HandleFunc("GET /api/complaints/track/{token}", complaintH.Track)
	mux.HandleFunc("GET /api/complaints/mine", complaintH.Mine)
	mux.HandleFunc("PUT /api/complaints/{id}/approve", complaintH.Approve)
	mux.HandleFunc("GET /api/admin/complaints", complaintH.List)
	mux.HandleFunc("POST /api/withdrawals", withdrawalH.Request)
	mux.HandleFunc("PUT /api/withdrawals/{id}/approve", withdrawalH.Approve)
	mux.HandleFunc("GET /api/users/me", userH.Me)
	mux.HandleFunc("PUT /api/users/me", userH.UpdateMe)
	mux.HandleFunc("GET /api/points", pointsH.Mine)
	mux.HandleFunc("POST /api/admin/users/{id}/points", pointsH.Adjust)
	mux.HandleFunc("PUT /api/admin/config/{key}", configH.Set)
	mux.HandleFunc("GET /api/config/public", configH.Public)
	mux.HandleFunc("GET /api/admin/reports/complaints", reportH.ExportComplaints)
	mux.HandleFunc("POST /api/admin/reports/complaints/archive", reportH.ArchiveComplaints)

	return &testEnv{db: db, ledger: l, broadcaster: b, mux: mux, adminID: admin.ID}
}

func (env *testEnv) createUser(t *testing.T, mobile string, points int) int64 {
	t.Helper()
	ctx := context.Background()
	u, err := store.NewUserStore(env.db).Create(ctx, mobile, "Citizen")
	require.NoError(t, err)
	if points > 0 {
		_, err := env.ledger.AdminAdjust(ctx, u.ID, points, "opening balance", env.adminID)
		require.NoError(t, err)
	}
	return u.ID
}

func userPrincipal(id int64) *auth.Principal {
	return &auth.Principal{Kind: auth.KindUser, ID: id}
}

func adminPrincipal(id int64) *auth.Principal {
	return &auth.Principal{Kind: auth.KindAdmin, ID: id, Permissions: []string{model.PermAll}}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (env *testEnv) do(t *testing.T, method, path string, body any, p *auth.Principal) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req = req.WithContext(auth.WithAuth(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestFailHidesInternalErrorsOutsideDevelopment(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cause := errors.New("database is locked")

	for _, tt := range []struct {
		dev  bool
		want string
	}{
		{dev: false, want: genericError},
		{dev: true, want: "database is locked"},
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		NewResponder(tt.dev, logger).fail(rec, req, cause)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.False(t, resp.Success)
		require.Equal(t, tt.want, resp.Error)
	}
}

func TestFailMapsKinds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs := NewResponder(false, logger)

	tests := []struct {
		err  error
		code int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.Authorization("self"), http.StatusBadRequest},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Conflict("stale"), http.StatusConflict},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		rs.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		require.Equal(t, tt.code, rec.Code)
		require.Contains(t, rec.Body.String(), apperr.Message(tt.err))
	}
}

func TestSubmitAnonymousAndTrack(t *testing.T) {
	env := setupHandlers(t, false)

	rec, resp := env.do(t, http.MethodPost, "/api/complaints", map[string]any{
		"type":        "Bus Delay",
		"description": "Route 12 was 40 minutes late",
		"stop":        "Udhna Darwaja",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	require.True(t, resp.Success)

	var created complaint.SubmitResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Regexp(t, `^BRTS\d{6}$`, created.Token)
	require.Zero(t, created.PointsAwarded)

	rec, resp = env.do(t, http.MethodGet, "/api/complaints/track/"+strings.ToLower(created.Token), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tracked model.Complaint
	require.NoError(t, json.Unmarshal(resp.Data, &tracked))
	require.Equal(t, created.ID, tracked.ID)
	require.True(t, tracked.IsAnonymous)
	require.Len(t, tracked.Timeline, 1)

	rec, resp = env.do(t, http.MethodGet, "/api/complaints/track/BRTS000000", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, resp.Success)
}

func TestSubmitValidation(t *testing.T) {
	env := setupHandlers(t, false)

	rec, resp := env.do(t, http.MethodPost, "/api/complaints", map[string]any{
		"type": "Bus Delay",
		"stop": "Udhna Darwaja",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "description is required", resp.Error)

	rec, resp = env.do(t, http.MethodPost, "/api/complaints", "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid JSON body", resp.Error)
}

func TestSubmitIdentifiedThenApprove(t *testing.T) {
	env := setupHandlers(t, false)
	uid := env.createUser(t, "9876500001", 0)

	rec, resp := env.do(t, http.MethodPost, "/api/complaints", map[string]any{
		"type":        "Rash Driving",
		"description": "Bus jumped the red light",
		"stop":        "Majura Gate",
	}, userPrincipal(uid))
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	var created complaint.SubmitResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Equal(t, 10, created.PointsAwarded)

	points := 25
	rec, resp = env.do(t, http.MethodPut, "/api/complaints/"+itoa(created.ID)+"/approve", map[string]any{
		"status": "approved",
		"reason": "Verified with CCTV",
		"points": points,
	}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	balance, err := env.ledger.Balance(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, 35, balance)

	rec, resp = env.do(t, http.MethodPut, "/api/complaints/"+itoa(created.ID)+"/approve", map[string]any{
		"status": "rejected",
	}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, resp.Success)

	rec, resp = env.do(t, http.MethodGet, "/api/complaints/mine", nil, userPrincipal(uid))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(resp.Data), `"total":1`)
}

func TestApproveInvalidStatusAndID(t *testing.T) {
	env := setupHandlers(t, false)

	rec, resp := env.do(t, http.MethodPut, "/api/complaints/abc/approve", map[string]any{"status": "approved"}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid id", resp.Error)

	rec, resp = env.do(t, http.MethodPut, "/api/complaints/1/approve", map[string]any{"status": "closed"}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Error, "status must be one of")
}

func TestWithdrawalFlow(t *testing.T) {
	env := setupHandlers(t, false)
	uid := env.createUser(t, "9876500002", 300)

	rec, resp := env.do(t, http.MethodPost, "/api/withdrawals", map[string]any{
		"points":         500,
		"method":         "UPI",
		"paymentDetails": map[string]string{"upiId": "asha@okaxis"},
	}, userPrincipal(uid))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Insufficient points", resp.Error)

	rec, resp = env.do(t, http.MethodPost, "/api/withdrawals", map[string]any{
		"points":         200,
		"method":         "UPI",
		"paymentDetails": map[string]string{"upiId": "asha@okaxis"},
	}, userPrincipal(uid))
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)

	var created withdrawal.RequestResult
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.Equal(t, model.WithdrawalPending, created.Status)
	require.Equal(t, "20.00", created.Amount.StringFixed(2))

	rec, resp = env.do(t, http.MethodPut, "/api/withdrawals/"+itoa(created.ID)+"/approve", map[string]any{
		"status": "rejected",
		"reason": "UPI id does not exist",
	}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	balance, err := env.ledger.Balance(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, 300, balance)
}

func TestProfileUpdate(t *testing.T) {
	env := setupHandlers(t, false)
	uid := env.createUser(t, "9876500003", 0)

	rec, resp := env.do(t, http.MethodPut, "/api/users/me", map[string]any{
		"name":  "Asha Patel",
		"email": "Asha@Example.com",
	}, userPrincipal(uid))
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	var u model.User
	require.NoError(t, json.Unmarshal(resp.Data, &u))
	require.Equal(t, "asha@example.com", u.Email)
	require.Equal(t, 50, u.Progress)

	rec, resp = env.do(t, http.MethodPut, "/api/users/me", map[string]any{"email": "nope"}, userPrincipal(uid))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "email must be a valid email address", resp.Error)
}

func TestPointsAdjustAndHistory(t *testing.T) {
	env := setupHandlers(t, false)
	uid := env.createUser(t, "9876500004", 0)

	rec, resp := env.do(t, http.MethodPost, "/api/admin/users/"+itoa(uid)+"/points", map[string]any{
		"points":      40,
		"description": "Helpline bonus",
	}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)

	rec, resp = env.do(t, http.MethodPost, "/api/admin/users/"+itoa(uid)+"/points", map[string]any{
		"points": -100,
	}, adminPrincipal(env.adminID))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/points", nil, userPrincipal(uid))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Balance int `json:"balance"`
		History struct {
			Total int `json:"total"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	require.Equal(t, 40, summary.Balance)
	require.Equal(t, 1, summary.History.Total)
}

func TestConfigSet(t *testing.T) {
	env := setupHandlers(t, false)
	admin := adminPrincipal(env.adminID)

	rec, resp := env.do(t, http.MethodPut, "/api/admin/config/"+model.ConfigMinimumWithdrawal, map[string]any{"value": "abc"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Error, "positive integer")

	rec, resp = env.do(t, http.MethodPut, "/api/admin/config/unknown.key", map[string]any{"value": "1"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "unknown setting: unknown.key", resp.Error)

	rec, resp = env.do(t, http.MethodPut, "/api/admin/config/"+model.ConfigMinimumWithdrawal, map[string]any{"value": " 250 "}, admin)
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)
	require.Equal(t, []string{websocket.RoomAdmins + ":" + websocket.EventConfigUpdate}, env.broadcaster.events)

	rec, resp = env.do(t, http.MethodPut, "/api/admin/config/"+model.ConfigComplaintTypes, map[string]any{"value": `["Bus Delay", " ", "Safety"]`}, admin)
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	rec, resp = env.do(t, http.MethodGet, "/api/config/public", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pc publicConfig
	require.NoError(t, json.Unmarshal(resp.Data, &pc))
	require.Equal(t, 250, pc.MinimumWithdrawal)
	require.Equal(t, []string{"Bus Delay", "Safety"}, pc.ComplaintTypes)
	require.Equal(t, "3-5 business days", pc.ProcessingTime)
}

func TestValidateConfigValue(t *testing.T) {
	tests := []struct {
		key, value, want string
		ok               bool
	}{
		{model.ConfigSubmissionPoints, "0", "0", true},
		{model.ConfigSubmissionPoints, "-1", "", false},
		{model.ConfigPointValue, "0.25", "0.25", true},
		{model.ConfigPointValue, "0", "", false},
		{model.ConfigWithdrawalsEnabled, "false", "false", true},
		{model.ConfigWithdrawalsEnabled, "no", "", false},
		{model.ConfigProcessingTime, "", "", false},
		{model.ConfigComplaintTypes, `[]`, "", false},
	}
	for _, tt := range tests {
		got, err := validateConfigValue(tt.key, tt.value)
		require.Equal(t, tt.ok, err == nil, "%s=%q: %v", tt.key, tt.value, err)
		require.Equal(t, tt.want, got)
	}
}

func TestExportAndArchive(t *testing.T) {
	env := setupHandlers(t, false)
	admin := adminPrincipal(env.adminID)

	_, resp := env.do(t, http.MethodPost, "/api/complaints", map[string]any{
		"type":        "Cleanliness",
		"description": "Bus shelter littered",
		"stop":        "Sahara Darwaja",
	}, nil)
	require.True(t, resp.Success)

	rec, _ := env.do(t, http.MethodGet, "/api/admin/reports/complaints?format=csv&status=pending", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Report-Rows"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	require.Contains(t, rec.Body.String(), "Sahara Darwaja")

	rec, resp = env.do(t, http.MethodGet, "/api/admin/reports/complaints?status=closed", nil, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid status filter", resp.Error)

	rec, resp = env.do(t, http.MethodPost, "/api/admin/reports/complaints/archive", nil, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Report archiving is not configured", resp.Error)
}

func TestListFilters(t *testing.T) {
	env := setupHandlers(t, false)
	admin := adminPrincipal(env.adminID)

	rec, resp := env.do(t, http.MethodGet, "/api/admin/complaints?from=yesterday", nil, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "from must be a date (YYYY-MM-DD)", resp.Error)

	rec, resp = env.do(t, http.MethodGet, "/api/admin/complaints?from=2024-01-01&to=2099-12-31&page=1&limit=5", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)
	require.Contains(t, string(resp.Data), `"limit":5`)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
