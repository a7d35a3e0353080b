package auth

import (
	"fmt"

	"github.com/ehr/records/internal/platform/apperr"
)

// Scope is the outcome class of an authorization decision.
type Scope int

const (
	ScopeDeny Scope = iota
	ScopeAll
	ScopeOwn
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "allow_all"
	case ScopeOwn:
		return "allow_own_only"
	}
	return "deny"
}

// Decision is the result of Authorize for one principal and permission.
type Decision struct {
	Scope    Scope
	Required Permission
}

// grantedBy lists the held permissions that satisfy a requirement.
// read_own satisfies read, and write satisfies limited_write.
func grantedBy(required Permission) Permissions {
	switch required {
	case PermRead:
		return NewPermissions(PermRead, PermReadOwn)
	case PermLimitedWrite:
		return NewPermissions(PermWrite, PermLimitedWrite)
	case PermWrite, PermDelete, PermAdmin, PermReadOwn:
		return NewPermissions(required)
	}
	return 0
}

// Authorize decides whether p may perform an operation needing required.
// Administrators are unscoped; every other role is limited to the records
// whose owning reference equals its own id.
func Authorize(p *Principal, required Permission) Decision {
	d := Decision{Scope: ScopeDeny, Required: required}
	if p == nil || p.ID == "" || !p.Permissions.HasAny(grantedBy(required)) {
		return d
	}
	if p.IsAdmin() {
		d.Scope = ScopeAll
		return d
	}
	d.Scope = ScopeOwn
	return d
}

func (d Decision) Allowed() bool {
	return d.Scope != ScopeDeny
}

// Err returns a Forbidden error for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return apperr.Forbidden(fmt.Sprintf("requires %s permission", d.Required))
}

// Permits reports whether p may touch a record owned by owner.
func (d Decision) Permits(p *Principal, owner string) bool {
	switch d.Scope {
	case ScopeAll:
		return true
	case ScopeOwn:
		return p != nil && owner != "" && owner == p.ID
	}
	return false
}

// OwnerFilter returns the owner id storage queries must be restricted to,
// or "" when the query is unscoped.
func (d Decision) OwnerFilter(p *Principal) string {
	if d.Scope == ScopeOwn && p != nil {
		return p.ID
	}
	return ""
}
