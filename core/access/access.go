// Package access holds the per-request access decision and the checks applied to it.
package access

import (
	"context"
	"errors"

	"github.com/trezcool/academia/core/principal"
)

var (
	ErrAuthenticationRequired  = errors.New("authentication required")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrCrossTenantAccess       = errors.New("cross-tenant access denied")
)

type identityKey struct{}

// Identity is the access decision attached to a request once its session is verified.
// The zero value is not a valid identity.
type Identity struct {
	principal principal.Principal
	role      principal.Role
	schoolID  string
}

func NewIdentity(p principal.Principal) Identity {
	return Identity{
		principal: p,
		role:      p.AccessRole(),
		schoolID:  p.School(),
	}
}

func (id Identity) Principal() principal.Principal { return id.principal }
func (id Identity) Role() principal.Role           { return id.role }
func (id Identity) SchoolID() string               { return id.schoolID }
func (id Identity) Kind() principal.Kind           { return id.principal.Kind() }
func (id Identity) Subject() string                { return id.principal.Subject() }

// Staff returns the staff principal, if the identity is one.
func (id Identity) Staff() (principal.Staff, bool) {
	s, ok := id.principal.(principal.Staff)
	return s, ok
}

// Student returns the student principal, if the identity is one.
func (id Identity) Student() (principal.Student, bool) {
	s, ok := id.principal.(principal.Student)
	return s, ok
}

// ScopeFilter returns the tenant predicate every data access of this request must apply.
func (id Identity) ScopeFilter() ScopeFilter {
	return ScopeFilter{schoolID: id.schoolID}
}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by the session verifier.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.principal == nil {
		return Identity{}, false
	}
	return id, true
}

// RequireRole returns the request identity if its role is one of allowed.
func RequireRole(ctx context.Context, allowed ...principal.Role) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrAuthenticationRequired
	}
	for _, role := range allowed {
		if id.role == role {
			return id, nil
		}
	}
	return Identity{}, ErrInsufficientPermissions
}

// RequireSchoolScope rejects a school id carried by the request that is not the caller's own.
// An empty requestedSchoolID means the request names no school and passes.
func RequireSchoolScope(ctx context.Context, requestedSchoolID string) error {
	id, ok := FromContext(ctx)
	if !ok {
		return ErrAuthenticationRequired
	}
	if requestedSchoolID != "" && !id.ScopeFilter().Allows(requestedSchoolID) {
		return ErrCrossTenantAccess
	}
	return nil
}

// Scope returns the request's ScopeFilter.
func Scope(ctx context.Context) (ScopeFilter, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return ScopeFilter{}, ErrAuthenticationRequired
	}
	return id.ScopeFilter(), nil
}

// ScopeFilter restricts data access to a single school. It cannot be changed once built.
type ScopeFilter struct {
	schoolID string
}

func (f ScopeFilter) SchoolID() string { return f.schoolID }
func (f ScopeFilter) IsZero() bool     { return f.schoolID == "" }

// Allows reports whether a record of schoolID is visible through the filter.
func (f ScopeFilter) Allows(schoolID string) bool {
	return !f.IsZero() && f.schoolID == schoolID
}

// OperatorScope scopes operator tooling to schoolID. It never comes from a request.
func OperatorScope(schoolID string) ScopeFilter {
	return ScopeFilter{schoolID: schoolID}
}
