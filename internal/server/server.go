package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/complaint"
	"github.com/suratbrts/cms/internal/handler"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/middleware"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/report"
	"github.com/suratbrts/cms/internal/sms"
	"github.com/suratbrts/cms/internal/store"
	ws "github.com/suratbrts/cms/internal/websocket"
	"github.com/suratbrts/cms/internal/withdrawal"
)

// Config carries the collaborators built from process configuration.
type Config struct {
	Development bool
	Tokens      *auth.TokenIssuer
	SMS         sms.Sender
	// PushSender is nil when VAPID keys are not configured.
	PushSender     push.Sender
	VAPIDPublicKey string
	Hub            *ws.Hub
	// Publisher defaults to Hub. Set it to a RedisRelay to fan out across
	// instances.
	Publisher      ws.Publisher
	Archiver       *report.Archiver
	AllowedOrigins []string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	auth        *auth.Service
	authH       *handler.AuthHandler
	userH       *handler.UserHandler
	pointsH     *handler.PointsHandler
	complaintH  *handler.ComplaintHandler
	withdrawalH *handler.WithdrawalHandler
	adminH      *handler.AdminHandler
	configH     *handler.ConfigHandler
	reportH     *handler.ReportHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	origins     []string
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = cfg.Hub
	}
	rs := handler.NewResponder(cfg.Development, logger.With("component", "handler"))

	pushStore := store.NewPushStore(db)
	notifier := push.NewNotifier(cfg.PushSender, pushStore, logger.With("component", "push"))

	authSvc := auth.NewService(db, cfg.Tokens, cfg.SMS, logger)
	pointsLedger := ledger.New(db, logger)
	complaints := complaint.NewEngine(db, pointsLedger, publisher, notifier, logger)
	withdrawals := withdrawal.NewEngine(db, pointsLedger, publisher, notifier, logger)
	reports := report.NewService(db, cfg.Archiver, logger)

	return &Server{
		db:          db,
		hub:         cfg.Hub,
		auth:        authSvc,
		authH:       handler.NewAuthHandler(rs, authSvc),
		userH:       handler.NewUserHandler(rs, store.NewUserStore(db)),
		pointsH:     handler.NewPointsHandler(rs, pointsLedger),
		complaintH:  handler.NewComplaintHandler(rs, complaints),
		withdrawalH: handler.NewWithdrawalHandler(rs, withdrawals),
		adminH:      handler.NewAdminHandler(rs, authSvc),
		configH:     handler.NewConfigHandler(rs, store.NewConfigStore(db), publisher),
		reportH:     handler.NewReportHandler(rs, reports),
		pushH:       handler.NewPushHandler(rs, pushStore, notifier, cfg.VAPIDPublicKey),
		rateLimiter: middleware.NewRateLimiter(),
		origins:     cfg.AllowedOrigins,
		logger:      logger,
	}
}

// Auth returns the auth service for startup bootstrap and cleanup tasks.
func (s *Server) Auth() *auth.Service {
	return s.auth
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("POST /api/auth/otp/send", s.rateLimited(otpSendLimit, s.authH.SendOTP))
	mux.Handle("POST /api/auth/otp/verify", s.rateLimited(otpVerifyLimit, s.authH.VerifyOTP))
	mux.Handle("POST /api/admin/auth/login", s.rateLimited(adminLoginLimit, s.authH.AdminLogin))
	mux.HandleFunc("GET /api/config/public", s.configH.Public)
	mux.HandleFunc("GET /api/complaints/types", s.complaintH.Types)
	mux.HandleFunc("GET /api/complaints/track/{token}", s.complaintH.Track)
	mux.Handle("POST /api/complaints", middleware.OptionalAuth(s.auth)(http.HandlerFunc(s.complaintH.Submit)))
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.roomsFor, s.origins, s.logger.With("component", "websocket")))

	// Citizen routes
	mux.Handle("GET /api/users/me", s.user(s.userH.Me))
	mux.Handle("PUT /api/users/me", s.user(s.userH.UpdateMe))
	mux.Handle("GET /api/points", s.user(s.pointsH.Mine))
	mux.Handle("GET /api/complaints/mine", s.user(s.complaintH.Mine))
	mux.Handle("POST /api/withdrawals", s.user(s.withdrawalH.Request))
	mux.Handle("GET /api/withdrawals/mine", s.user(s.withdrawalH.Mine))
	mux.Handle("POST /api/push/subscribe", s.user(s.pushH.Subscribe))
	mux.Handle("GET /api/push/subscriptions", s.user(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", s.user(s.pushH.Unsubscribe))
	mux.Handle("POST /api/push/test", s.user(s.pushH.TestNotification))

	// Admin routes
	mux.Handle("GET /api/admin/auth/me", s.admin("", s.authH.AdminMe))

	mux.Handle("GET /api/admin/complaints", s.admin(model.PermComplaintsView, s.complaintH.List))
	mux.Handle("GET /api/admin/complaints/{id}", s.admin(model.PermComplaintsView, s.complaintH.Get))
	mux.Handle("PUT /api/admin/complaints/{id}/assign", s.admin(model.PermComplaintsManage, s.complaintH.Assign))
	mux.Handle("PUT /api/admin/complaints/{id}/approve", s.admin(model.PermComplaintsManage, s.complaintH.Approve))
	mux.Handle("PUT /api/complaints/{id}/approve", s.admin(model.PermComplaintsManage, s.complaintH.Approve))

	mux.Handle("GET /api/admin/withdrawals", s.admin(model.PermWithdrawalsView, s.withdrawalH.List))
	mux.Handle("GET /api/admin/withdrawals/{id}", s.admin(model.PermWithdrawalsView, s.withdrawalH.Get))
	mux.Handle("PUT /api/admin/withdrawals/{id}/approve", s.admin(model.PermWithdrawalsManage, s.withdrawalH.Approve))
	mux.Handle("PUT /api/withdrawals/{id}/approve", s.admin(model.PermWithdrawalsManage, s.withdrawalH.Approve))

	mux.Handle("GET /api/admin/users", s.admin(model.PermUsersManage, s.userH.List))
	mux.Handle("PUT /api/admin/users/{id}/status", s.admin(model.PermUsersManage, s.userH.SetStatus))
	mux.Handle("POST /api/admin/users/{id}/points", s.admin(model.PermPointsAdjust, s.pointsH.Adjust))
	mux.Handle("GET /api/admin/points/reconcile", s.admin(model.PermPointsAdjust, s.pointsH.Reconcile))

	mux.Handle("GET /api/admin/admins", s.admin(model.PermAdminsManage, s.adminH.ListAdmins))
	mux.Handle("POST /api/admin/admins", s.admin(model.PermAdminsManage, s.adminH.CreateAdmin))
	mux.Handle("PUT /api/admin/admins/{id}/role", s.admin(model.PermAdminsManage, s.adminH.SetAdminRole))
	mux.Handle("PUT /api/admin/admins/{id}/status", s.admin(model.PermAdminsManage, s.adminH.SetAdminStatus))
	mux.Handle("GET /api/admin/roles", s.admin(model.PermRolesManage, s.adminH.ListRoles))
	mux.Handle("POST /api/admin/roles", s.admin(model.PermRolesManage, s.adminH.CreateRole))
	mux.Handle("PUT /api/admin/roles/{id}", s.admin(model.PermRolesManage, s.adminH.UpdateRole))

	mux.Handle("GET /api/admin/config", s.admin(model.PermConfigManage, s.configH.List))
	mux.Handle("PUT /api/admin/config/{key}", s.admin(model.PermConfigManage, s.configH.Set))

	mux.Handle("GET /api/admin/dashboard", s.admin(model.PermReportsView, s.reportH.Dashboard))
	mux.Handle("GET /api/admin/reports/complaints", s.admin(model.PermReportsView, s.reportH.ExportComplaints))
	mux.Handle("POST /api/admin/reports/complaints/archive", s.admin(model.PermReportsView, s.reportH.ArchiveComplaints))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) user(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.auth)(middleware.RequireUser(h))
}

// admin requires an admin token and, when perm is set, that permission on
// the admin's current role.
func (s *Server) admin(perm string, h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	if perm != "" {
		next = middleware.RequirePermission(perm)(next)
	}
	return middleware.RequireAuth(s.auth)(middleware.RequireAdmin(next))
}

var (
	otpSendLimit    = middleware.Limit{Name: "otp_send", Max: 5, Window: time.Minute}
	otpVerifyLimit  = middleware.Limit{Name: "otp_verify", Max: 10, Window: time.Minute}
	adminLoginLimit = middleware.Limit{Name: "admin_login", Max: 10, Window: time.Minute}
)

func (s *Server) rateLimited(l middleware.Limit, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, l)(h)
}

// roomsFor resolves a websocket token: citizens join their private room,
// admins join the admin room.
func (s *Server) roomsFor(ctx context.Context, token string) ([]string, error) {
	p, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.Kind == auth.KindAdmin {
		return []string{ws.RoomAdmins}, nil
	}
	return []string{ws.UserRoom(p.ID)}, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "clients": s.hub.ClientCount()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
