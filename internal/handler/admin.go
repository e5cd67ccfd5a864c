package handler

import (
	"net/http"

	"github.com/suratbrts/cms/internal/auth"
)

// AdminHandler serves admin account and role management.
type AdminHandler struct {
	Responder
	auth *auth.Service
}

func NewAdminHandler(rs Responder, svc *auth.Service) *AdminHandler {
	return &AdminHandler{Responder: rs, auth: svc}
}

// ListAdmins handles GET /api/admin/admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.auth.ListAdmins(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, admins, "")
}

type createAdminRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	RoleID   *int64 `json:"roleId"`
}

// CreateAdmin handles POST /api/admin/admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.auth.CreateAdmin(r.Context(), req.Name, req.Email, req.Password, req.RoleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, a, "Admin created")
}

type setRoleRequest struct {
	RoleID *int64 `json:"roleId"`
}

// SetAdminRole handles PUT /api/admin/admins/{id}/role. A null roleId clears
// the role.
func (h *AdminHandler) SetAdminRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req setRoleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.auth.SetAdminRole(r.Context(), id, req.RoleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, a, "Role updated")
}

// SetAdminStatus handles PUT /api/admin/admins/{id}/status
func (h *AdminHandler) SetAdminStatus(w http.ResponseWriter, r *http.Request) {
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
	a, err := h.auth.SetAdminActive(r.Context(), auth.AdminID(r.Context()), id, *req.IsActive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, a, "Admin status updated")
}

// ListRoles handles GET /api/admin/roles
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.auth.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, roles, "")
}

type roleRequest struct {
	Name        string   `json:"name" validate:"max=100"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// CreateRole handles POST /api/admin/roles
func (h *AdminHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.auth.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, role, "Role created")
}

// UpdateRole handles PUT /api/admin/roles/{id}
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.auth.UpdateRole(r.Context(), id, req.Name, req.Description, req.Permissions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, role, "Role updated")
}
