package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/store"
)

func validatePermissions(perms []string) ([]string, error) {
	out := make([]string, 0, len(perms))
	seen := make(map[string]bool)
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if !model.IsKnownPermission(p) {
			return nil, apperr.Validation(fmt.Sprintf("Unknown permission %q", p))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to list roles")
	}
	if roles == nil {
		roles = []model.Role{}
	}
	return roles, nil
}

func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Role name is required")
	}
	perms, err := validatePermissions(permissions)
	if err != nil {
		return nil, err
	}
	r, err := s.roles.Create(ctx, name, description, perms)
	if store.IsUniqueViolation(err) {
		return nil, apperr.Conflict("A role with that name already exists")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to create role")
	}
	return r, nil
}

// UpdateRole rewrites a role. Admins holding it see the change on their next
// request.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, permissions []string) (*model.Role, error) {
	existing, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load role")
	}
	if existing == nil {
		return nil, apperr.NotFound("Role not found")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = existing.Name
	}
	perms, err := validatePermissions(permissions)
	if err != nil {
		return nil, err
	}
	r, err := s.roles.Update(ctx, id, name, description, perms)
	if store.IsUniqueViolation(err) {
		return nil, apperr.Conflict("A role with that name already exists")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to update role")
	}
	s.logger.Info("role updated", "role_id", id, "permissions", perms)
	return r, nil
}

func (s *Service) ListAdmins(ctx context.Context) ([]model.AdminWithRole, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to list admins")
	}
	out := make([]model.AdminWithRole, 0, len(admins))
	for i := range admins {
		role, perms, err := s.EffectivePermissions(ctx, &admins[i])
		if err != nil {
			return nil, err
		}
		out = append(out, model.AdminWithRole{Admin: admins[i], Role: role, Permissions: perms})
	}
	return out, nil
}

func (s *Service) requireRole(ctx context.Context, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	r, err := s.roles.GetByID(ctx, *roleID)
	if err != nil {
		return apperr.Wrap(err, "Failed to load role")
	}
	if r == nil {
		return apperr.Validation("Role not found")
	}
	return nil
}

func (s *Service) CreateAdmin(ctx context.Context, name, email, password string, roleID *int64) (*model.AdminWithRole, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, apperr.Validation("Name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("Invalid email address")
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	a, err := s.admins.Create(ctx, name, email, hash, roleID)
	if store.IsUniqueViolation(err) {
		return nil, apperr.Conflict("An admin with that email already exists")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to create admin")
	}
	s.logger.Info("admin created", "admin_id", a.ID)
	return s.AdminView(ctx, a.ID)
}

func (s *Service) SetAdminRole(ctx context.Context, id int64, roleID *int64) (*model.AdminWithRole, error) {
	if _, err := s.AdminView(ctx, id); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.admins.SetRole(ctx, id, roleID); err != nil {
		return nil, apperr.Wrap(err, "Failed to set role")
	}
	return s.AdminView(ctx, id)
}

// SetAdminActive activates or deactivates an admin. Admins cannot
// deactivate themselves.
func (s *Service) SetAdminActive(ctx context.Context, actorID, id int64, active bool) (*model.AdminWithRole, error) {
	if actorID == id && !active {
		return nil, apperr.Authorization("You cannot deactivate your own account")
	}
	if _, err := s.AdminView(ctx, id); err != nil {
		return nil, err
	}
	if err := s.admins.SetActive(ctx, id, active); err != nil {
		return nil, apperr.Wrap(err, "Failed to update admin")
	}
	s.logger.Info("admin status changed", "admin_id", id, "active", active, "by", actorID)
	return s.AdminView(ctx, id)
}
