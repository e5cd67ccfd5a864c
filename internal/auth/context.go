package auth

import (
	"context"
	"slices"

	"github.com/suratbrts/cms/internal/model"
)

// Kind distinguishes citizen tokens from admin tokens.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

type contextKey struct{}

// Principal is the authenticated caller. Permissions is only populated for
// admins and always reflects the admin's current role.
type Principal struct {
	Kind        Kind
	ID          int64
	Permissions []string
}

// Can reports whether the principal holds perm, directly or through "*".
func (p Principal) Can(perm string) bool {
	if p.Kind != KindAdmin {
		return false
	}
	return slices.Contains(p.Permissions, model.PermAll) || slices.Contains(p.Permissions, perm)
}

func WithAuth(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// UserID returns the citizen id, or 0 when the caller is not a signed-in user.
func UserID(ctx context.Context) int64 {
	p, ok := FromContext(ctx)
	if !ok || p.Kind != KindUser {
		return 0
	}
	return p.ID
}

// AdminID returns the admin id, or 0 when the caller is not an admin.
func AdminID(ctx context.Context) int64 {
	p, ok := FromContext(ctx)
	if !ok || p.Kind != KindAdmin {
		return 0
	}
	return p.ID
}

func IsAdmin(ctx context.Context) bool {
	return AdminID(ctx) != 0
}
