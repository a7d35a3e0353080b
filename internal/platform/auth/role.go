package auth

import "strings"

// Role is the closed set of caller roles.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleReceptionist Role = "RECEPTIONIST"
	RolePatient      Role = "PATIENT"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RolePatient}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RolePatient:
		return r, true
	}
	return "", false
}

func (r Role) Description() string {
	switch r {
	case RoleAdmin:
		return "Administrator with full access"
	case RoleDoctor:
		return "Medical doctor with access to their patients' records"
	case RoleNurse:
		return "Nurse with limited access to patient records"
	case RoleReceptionist:
		return "Front desk staff with basic access"
	case RolePatient:
		return "Patient with access only to their own records"
	}
	return ""
}

// Permission is a single capability flag.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermLimitedWrite
	PermDelete
	PermAdmin
	PermReadOwn
)

var allPermissions = []Permission{PermRead, PermWrite, PermLimitedWrite, PermDelete, PermAdmin, PermReadOwn}

func (p Permission) String() string {
	switch p {
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermLimitedWrite:
		return "limited_write"
	case PermDelete:
		return "delete"
	case PermAdmin:
		return "admin"
	case PermReadOwn:
		return "read_own"
	}
	return "unknown"
}

// Permissions is a set of Permission flags.
type Permissions uint8

func NewPermissions(perms ...Permission) Permissions {
	var ps Permissions
	for _, p := range perms {
		ps |= Permissions(p)
	}
	return ps
}

func (ps Permissions) Has(p Permission) bool {
	return ps&Permissions(p) != 0
}

// HasAny reports whether ps and other share at least one flag.
func (ps Permissions) HasAny(other Permissions) bool {
	return ps&other != 0
}

// Names returns the permission names in declaration order.
func (ps Permissions) Names() []string {
	names := make([]string, 0, len(allPermissions))
	for _, p := range allPermissions {
		if ps.Has(p) {
			names = append(names, p.String())
		}
	}
	return names
}

// PermissionsFor is the role table. Unknown roles get the empty set.
func PermissionsFor(r Role) Permissions {
	switch r {
	case RoleAdmin:
		return NewPermissions(PermRead, PermWrite, PermDelete, PermAdmin)
	case RoleDoctor:
		return NewPermissions(PermRead, PermWrite)
	case RoleNurse, RoleReceptionist:
		return NewPermissions(PermRead, PermLimitedWrite)
	case RolePatient:
		return NewPermissions(PermReadOwn)
	}
	return 0
}
