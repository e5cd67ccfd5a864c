// Package auth handles citizen OTP login, admin password login, bearer
// tokens and the request principal.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/sms"
	"github.com/suratbrts/cms/internal/store"
)

const (
	OTPExpiry       = 10 * time.Minute
	maxOTPAttempts  = 5
	SuperadminRole  = "superadmin"
	minPasswordSize = 8
)

type Service struct {
	users  *store.UserStore
	admins *store.AdminStore
	roles  *store.RoleStore
	otps   *store.OTPStore
	tokens *TokenIssuer
	sms    sms.Sender
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, tokens *TokenIssuer, sender sms.Sender, logger *slog.Logger) *Service {
	return &Service{
		users:  store.NewUserStore(db),
		admins: store.NewAdminStore(db),
		roles:  store.NewRoleStore(db),
		otps:   store.NewOTPStore(db),
		tokens: tokens,
		sms:    sender,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
}

// NormalizeMobile strips spaces, dashes and a leading +91 and checks for a
// 10 digit Indian mobile number.
func NormalizeMobile(s string) (string, error) {
	s = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+91")
	if len(s) != 10 || s[0] < '6' {
		return "", apperr.Validation("Invalid mobile number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", apperr.Validation("Invalid mobile number")
		}
	}
	return s, nil
}

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// SendOTP starts a login session for mobile and delivers the code by SMS.
// It returns the session id the client echoes back on verification.
func (s *Service) SendOTP(ctx context.Context, mobile string) (string, error) {
	mobile, err := NormalizeMobile(mobile)
	if err != nil {
		return "", err
	}
	u, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		return "", apperr.Wrap(err, "Failed to load user")
	}
	if u != nil && !u.IsActive {
		return "", apperr.Forbidden("Account is inactive")
	}

	code, err := generateCode()
	if err != nil {
		return "", apperr.Wrap(err, "Failed to generate OTP")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(err, "Failed to generate OTP")
	}

	id := uuid.NewString()
	if err := s.otps.Create(ctx, id, mobile, string(hash), s.now().Add(OTPExpiry)); err != nil {
		return "", apperr.Wrap(err, "Failed to start OTP session")
	}
	if err := s.sms.SendOTP(ctx, mobile, code); err != nil {
		s.logger.Error("send otp", "mobile", mobile, "error", err)
		return "", apperr.Wrap(err, "Failed to send OTP")
	}
	s.logger.Info("otp sent", "session_id", id)
	return id, nil
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
	IsNewUser bool        `json:"isNewUser"`
}

// VerifyOTP checks code against the session and signs the user in,
// registering them on first verification.
func (s *Service) VerifyOTP(ctx context.Context, sessionID, code, name string) (*LoginResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	code = strings.TrimSpace(code)
	if sessionID == "" || code == "" {
		return nil, apperr.Validation("Session id and OTP are required")
	}

	sess, err := s.otps.Get(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load OTP session")
	}
	if sess == nil || sess.VerifiedAt != nil {
		return nil, apperr.Validation("OTP has expired or already been used. Please request a new one.")
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, apperr.Validation("OTP has expired. Please request a new one.")
	}

	attempts, reserved, err := s.otps.ReserveAttempt(ctx, sessionID, maxOTPAttempts)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to verify OTP")
	}
	if !reserved {
		return nil, apperr.Validation("Too many incorrect attempts. Please request a new OTP.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(sess.CodeHash), []byte(code)); err != nil {
		if attempts >= maxOTPAttempts {
			return nil, apperr.Validation("Too many incorrect attempts. Please request a new OTP.")
		}
		return nil, apperr.Validation("Incorrect OTP. Please try again.")
	}

	ok, err := s.otps.MarkVerified(ctx, sessionID, maxOTPAttempts)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to verify OTP")
	}
	if !ok {
		return nil, apperr.Validation("OTP has expired or already been used. Please request a new one.")
	}

	u, created, err := s.findOrCreateUser(ctx, sess.Mobile, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.Forbidden("Account is inactive")
	}

	token, expires, err := s.tokens.Issue(KindUser, u.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to issue token")
	}
	s.logger.Info("user signed in", "user_id", u.ID, "new", created)
	return &LoginResult{Token: token, ExpiresAt: expires, User: u, IsNewUser: created}, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, mobile, name string) (*model.User, bool, error) {
	u, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		return nil, false, apperr.Wrap(err, "Failed to load user")
	}
	if u != nil {
		return u, false, nil
	}

	u, err = s.users.Create(ctx, mobile, name)
	if store.IsUniqueViolation(err) {
		// Lost a race with a concurrent first login for the same number.
		u, err = s.users.GetByMobile(ctx, mobile)
		if err != nil {
			return nil, false, apperr.Wrap(err, "Failed to load user")
		}
		if u == nil {
			return nil, false, apperr.New(apperr.KindInternal, "Failed to register user")
		}
		return u, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(err, "Failed to register user")
	}
	return u, true, nil
}

type AdminLoginResult struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expiresAt"`
	Admin     *model.AdminWithRole `json:"admin"`
}

// AdminLogin checks email and password. Unknown emails and wrong passwords
// return the same error.
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*AdminLoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	a, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load admin")
	}
	if a == nil {
		return nil, apperr.Unauthenticated("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("admin login failed", "admin_id", a.ID)
		return nil, apperr.Unauthenticated("Invalid email or password")
	}
	if !a.IsActive {
		return nil, apperr.Forbidden("Account is inactive")
	}

	if err := s.admins.TouchLogin(ctx, a.ID); err != nil {
		s.logger.Error("touch admin login", "admin_id", a.ID, "error", err)
	}
	view, err := s.AdminView(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.Issue(KindAdmin, a.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to issue token")
	}
	s.logger.Info("admin signed in", "admin_id", a.ID)
	return &AdminLoginResult{Token: token, ExpiresAt: expires, Admin: view}, nil
}

// Authenticate resolves a bearer token to a principal. Accounts deactivated
// after the token was issued are rejected, and admin permissions come from
// the admin's role as it is now.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	kind, id, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, apperr.Unauthenticated("Invalid or expired token")
	}

	switch kind {
	case KindUser:
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return Principal{}, apperr.Wrap(err, "Failed to load user")
		}
		if u == nil || !u.IsActive {
			return Principal{}, apperr.Unauthenticated("Account is inactive or does not exist")
		}
		return Principal{Kind: KindUser, ID: id}, nil
	default:
		a, err := s.admins.GetByID(ctx, id)
		if err != nil {
			return Principal{}, apperr.Wrap(err, "Failed to load admin")
		}
		if a == nil || !a.IsActive {
			return Principal{}, apperr.Unauthenticated("Account is inactive or does not exist")
		}
		_, perms, err := s.EffectivePermissions(ctx, a)
		if err != nil {
			return Principal{}, err
		}
		return Principal{Kind: KindAdmin, ID: id, Permissions: perms}, nil
	}
}

// EffectivePermissions reads the admin's current role. An admin without a
// role has no permissions.
func (s *Service) EffectivePermissions(ctx context.Context, a *model.Admin) (*model.Role, []string, error) {
	if a.RoleID == nil {
		return nil, []string{}, nil
	}
	role, err := s.roles.GetByID(ctx, *a.RoleID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "Failed to load role")
	}
	if role == nil {
		return nil, []string{}, nil
	}
	return role, role.Permissions, nil
}

// AdminView loads an admin with its role and effective permissions.
func (s *Service) AdminView(ctx context.Context, id int64) (*model.AdminWithRole, error) {
	a, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load admin")
	}
	if a == nil {
		return nil, apperr.NotFound("Admin not found")
	}
	role, perms, err := s.EffectivePermissions(ctx, a)
	if err != nil {
		return nil, err
	}
	return &model.AdminWithRole{Admin: *a, Role: role, Permissions: perms}, nil
}

// HashPassword validates and hashes an admin password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordSize {
		return "", apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordSize))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Bootstrap creates the superadmin role and a first admin when no admin
// exists yet. It reports whether an admin was created.
func (s *Service) Bootstrap(ctx context.Context, name, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := s.admins.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	roles, err := s.roles.List(ctx)
	if err != nil {
		return false, err
	}
	var roleID int64
	for _, r := range roles {
		if r.Name == SuperadminRole {
			roleID = r.ID
		}
	}
	if roleID == 0 {
		r, err := s.roles.Create(ctx, SuperadminRole, "Full access", []string{model.PermAll})
		if err != nil {
			return false, err
		}
		roleID = r.ID
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	a, err := s.admins.Create(ctx, name, strings.ToLower(strings.TrimSpace(email)), hash, &roleID)
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", "admin_id", a.ID, "email", a.Email)
	return true, nil
}

// CleanupOTP deletes expired login sessions.
func (s *Service) CleanupOTP(ctx context.Context) (int64, error) {
	return s.otps.DeleteExpired(ctx, s.now())
}
