package model

import (
	"slices"
	"time"
)

// Permission names checked by the admin API.
const (
	PermAll               = "*"
	PermComplaintsView    = "complaints.view"
	PermComplaintsManage  = "complaints.manage"
	PermWithdrawalsView   = "withdrawals.view"
	PermWithdrawalsManage = "withdrawals.manage"
	PermUsersManage       = "users.manage"
	PermPointsAdjust      = "points.adjust"
	PermAdminsManage      = "admins.manage"
	PermRolesManage       = "roles.manage"
	PermConfigManage      = "config.manage"
	PermReportsView       = "reports.view"
)

var KnownPermissions = []string{
	PermAll,
	PermComplaintsView,
	PermComplaintsManage,
	PermWithdrawalsView,
	PermWithdrawalsManage,
	PermUsersManage,
	PermPointsAdjust,
	PermAdminsManage,
	PermRolesManage,
	PermConfigManage,
	PermReportsView,
}

func IsKnownPermission(p string) bool {
	return slices.Contains(KnownPermissions, p)
}

type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Allows reports whether the role grants perm, either directly or through "*".
func (r *Role) Allows(perm string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.Permissions, PermAll) || slices.Contains(r.Permissions, perm)
}

// Admin has no permissions of its own; they are always read from the
// current Role so role edits apply to every admin holding it.
type Admin struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	RoleID       *int64     `json:"roleId"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AdminWithRole is the admin API view: the admin plus its effective permissions.
type AdminWithRole struct {
	Admin
	Role        *Role    `json:"role"`
	Permissions []string `json:"permissions"`
}
