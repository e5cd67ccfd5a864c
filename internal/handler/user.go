package handler

import (
	"net/http"
	"strings"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
)

type UserHandler struct {
	Responder
	userStore *store.UserStore
}

func NewUserHandler(rs Responder, us *store.UserStore) *UserHandler {
	return &UserHandler{Responder: rs, userStore: us}
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userStore.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load profile"))
		return
	}
	if u == nil {
		h.fail(w, r, apperr.NotFound("User not found"))
		return
	}
	h.ok(w, http.StatusOK, u, "")
}

type updateProfileRequest struct {
	Name       string `json:"name" validate:"max=100"`
	Email      string `json:"email" validate:"omitempty,email"`
	Address    string `json:"address" validate:"max=500"`
	Profession string `json:"profession" validate:"max=100"`
}

// UpdateMe handles PUT /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.userStore.UpdateProfile(r.Context(), auth.UserID(r.Context()),
		strings.TrimSpace(req.Name),
		strings.ToLower(strings.TrimSpace(req.Email)),
		strings.TrimSpace(req.Address),
		strings.TrimSpace(req.Profession),
	)
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to update profile"))
		return
	}
	if u == nil {
		h.fail(w, r, apperr.NotFound("User not found"))
		return
	}
	h.ok(w, http.StatusOK, u, "Profile updated")
}

// List handles GET /api/admin/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "isActive")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := query.FromRequest(r, 20)
	users, total, err := h.userStore.List(r.Context(), store.UserFilter{
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
		IsActive: active,
	}, p)
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to list users"))
		return
	}
	h.ok(w, http.StatusOK, query.NewResult(users, total, p), "")
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// SetStatus handles PUT /api/admin/users/{id}/status
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req setActiveRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx := r.Context()
	u, err := h.userStore.GetByID(ctx, id)
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load user"))
		return
	}
	if u == nil {
		h.fail(w, r, apperr.NotFound("User not found"))
		return
	}
	if err := h.userStore.SetActive(ctx, id, *req.IsActive); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to update user"))
		return
	}
	u.IsActive = *req.IsActive
	h.ok(w, http.StatusOK, u, "User status updated")
}
