// Package auth carries the authenticated principal through request contexts.
// Identity is asserted by an upstream gateway through trusted headers.
package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Additional-Code/procura/pkg/errorbank"
)

// Roles known to the procurement backend.
const (
	RoleAdmin          = "ADMIN"
	RoleSiteEngineer   = "SITE_ENGINEER"
	RoleProjectManager = "PROJECT_MANAGER"
	RoleProcurement    = "PROCUREMENT_OFFICER"
)

// Principal is the caller a request acts on behalf of.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the principal bypasses project membership checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanCreateOrders reports whether the principal's role may raise orders.
func (p Principal) CanCreateOrders() bool {
	return p.Role == RoleSiteEngineer || p.Role == RoleAdmin
}

// CanManageProjects reports whether the principal may create projects.
func (p Principal) CanManageProjects() bool {
	return p.IsAdmin()
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Require returns the principal stored in ctx or an unauthorized error.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, errorbank.Unauthorized("authentication required")
	}
	return p, nil
}

// ParsePrincipal builds a principal from raw header values.
func ParsePrincipal(userID, role string) (Principal, bool) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil || id == uuid.Nil {
		return Principal{}, false
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return Principal{}, false
	}
	return Principal{UserID: id, Role: role}, true
}
