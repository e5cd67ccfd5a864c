package handler

import (
	"net/http"

	"github.com/suratbrts/cms/internal/auth"
)

type AuthHandler struct {
	Responder
	auth *auth.Service
}

func NewAuthHandler(rs Responder, svc *auth.Service) *AuthHandler {
	return &AuthHandler{Responder: rs, auth: svc}
}

type sendOTPRequest struct {
	Mobile string `json:"mobile" validate:"required"`
}

// SendOTP handles POST /api/auth/otp/send
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sessionID, err := h.auth.SendOTP(r.Context(), req.Mobile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"sessionId": sessionID}, "OTP sent")
}

type verifyOTPRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	OTP       string `json:"otp" validate:"required,len=6,numeric"`
	Name      string `json:"name" validate:"max=100"`
}

// VerifyOTP handles POST /api/auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.VerifyOTP(r.Context(), req.SessionID, req.OTP, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "Login successful")
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLogin handles POST /api/admin/auth/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "Login successful")
}

// AdminMe handles GET /api/admin/auth/me
func (h *AuthHandler) AdminMe(w http.ResponseWriter, r *http.Request) {
	a, err := h.auth.AdminView(r.Context(), auth.AdminID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, a, "")
}
