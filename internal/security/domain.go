// Package security implements the permission evaluation and role-assignment
// subsystem: permission and role catalogs, the two binding managers, and the
// access decision engine.
package security

import (
	"encoding/json"
	"time"
)

// Relations owned or read by this package.
const (
	relPermissions     = "permisos"
	relRoles           = "roles"
	relRolePermissions = "roles_permisos"
	relUserRoles       = "usuarios_roles"
	relProfiles        = "perfiles"
)

// Level is an access level forming the total order LECTURA < ESCRITURA <
// ADMINISTRADOR.
type Level string

const (
	LevelRead  Level = "LECTURA"
	LevelWrite Level = "ESCRITURA"
	LevelAdmin Level = "ADMINISTRADOR"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	return l == LevelRead || l == LevelWrite || l == LevelAdmin
}

// Satisfies reports whether a grant at level l covers the required level:
// LECTURA is covered by any grant, ESCRITURA only by ESCRITURA or
// ADMINISTRADOR, ADMINISTRADOR only by ADMINISTRADOR.
func (l Level) Satisfies(required Level) bool {
	switch required {
	case LevelRead:
		return l.Valid()
	case LevelWrite:
		return l == LevelWrite || l == LevelAdmin
	case LevelAdmin:
		return l == LevelAdmin
	default:
		return false
	}
}

// Permission identifies a capability by name, scoped to a module tag.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"nombre"`
	Module      string    `json:"modulo"`
	Description string    `json:"descripcion"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named bundle of permission grants. Permissions is populated only
// when the read requested expansion.
type Role struct {
	ID          string           `json:"id"`
	Name        string           `json:"nombre"`
	Description string           `json:"descripcion"`
	Active      bool             `json:"activo"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Permissions []RolePermission `json:"permisos,omitempty"`
}

// RolePermission grants one permission to one role at an access level.
type RolePermission struct {
	ID           string      `json:"id"`
	RoleID       string      `json:"id_rol"`
	PermissionID string      `json:"id_permiso"`
	Level        Level       `json:"nivel"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Role         *Role       `json:"rol,omitempty"`
	Permission   *Permission `json:"permiso,omitempty"`
}

// UserRole assigns one role to one user. Only active assignments contribute to
// access decisions.
type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"id_usuario"`
	RoleID    string    `json:"id_rol"`
	Active    bool      `json:"activo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Role      *Role     `json:"rol,omitempty"`
}

// The store returns rows as raw JSON; a row that does not decode into its
// expected shape (or arrived without a requested expansion) is reported via
// ok=false so each call site can drop it or fall back to a basic read.

func decodePermission(raw json.RawMessage) (Permission, bool) {
	var perm Permission
	if err := json.Unmarshal(raw, &perm); err != nil || perm.ID == "" {
		return Permission{}, false
	}
	return perm, true
}

func decodeRole(raw json.RawMessage, wantPermissions bool) (Role, bool) {
	var role Role
	if err := json.Unmarshal(raw, &role); err != nil || role.ID == "" {
		return Role{}, false
	}
	if wantPermissions {
		if role.Permissions == nil {
			return Role{}, false
		}
		for _, grant := range role.Permissions {
			if grant.Permission == nil || !grant.Level.Valid() {
				return Role{}, false
			}
		}
	}
	return role, true
}

func decodeRolePermission(raw json.RawMessage, wantRole, wantPermission bool) (RolePermission, bool) {
	var grant RolePermission
	if err := json.Unmarshal(raw, &grant); err != nil || grant.ID == "" || !grant.Level.Valid() {
		return RolePermission{}, false
	}
	if wantRole && grant.Role == nil {
		return RolePermission{}, false
	}
	if wantPermission && grant.Permission == nil {
		return RolePermission{}, false
	}
	return grant, true
}

func decodeUserRole(raw json.RawMessage, wantRole bool) (UserRole, bool) {
	var assignment UserRole
	if err := json.Unmarshal(raw, &assignment); err != nil || assignment.ID == "" {
		return UserRole{}, false
	}
	if wantRole && assignment.Role == nil {
		return UserRole{}, false
	}
	return assignment, true
}
