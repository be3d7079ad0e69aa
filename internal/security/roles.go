package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/festeja/festeja/internal/store"
)

// RoleInput carries the fields for a new role. Active defaults to true when
// not provided.
type RoleInput struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	Active      *bool  `json:"activo,omitempty"`
}

// RolePatch carries optional updates; nil fields are left untouched.
type RolePatch struct {
	Name        *string `json:"nombre,omitempty"`
	Description *string `json:"descripcion,omitempty"`
	Active      *bool   `json:"activo,omitempty"`
}

// RoleService manages the role catalog.
type RoleService struct {
	store  store.Gateway
	logger *slog.Logger
	audit  AuditPort
}

// NewRoleService builds a RoleService.
func NewRoleService(gw store.Gateway, logger *slog.Logger, audit AuditPort) *RoleService {
	return &RoleService{store: gw, logger: logger, audit: audit}
}

// Create persists a new role with both timestamps set to now.
func (s *RoleService) Create(ctx context.Context, input RoleInput) (Role, error) {
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	now := time.Now().UTC()
	raw, err := s.store.Insert(ctx, relRoles, map[string]any{
		"nombre":      input.Name,
		"descripcion": input.Description,
		"activo":      active,
		"created_at":  now,
		"updated_at":  now,
	})
	if err != nil {
		return Role{}, operation("create role", err)
	}
	role, ok := decodeRole(raw, false)
	if !ok {
		return Role{}, operation("create role", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "crear", "rol", role.ID)
	}
	return role, nil
}

// List returns every role ordered by name. With expandPermissions the grants
// and their nested permissions are embedded; rows the store could not render
// into the expected shape are logged and excluded rather than failing the
// whole read.
func (s *RoleService) List(ctx context.Context, expandPermissions bool) ([]Role, error) {
	q := store.Query{OrderBy: "nombre"}
	if expandPermissions {
		q.Expand = []string{"permisos"}
	}
	rows, err := s.store.Select(ctx, relRoles, q)
	if err != nil {
		return nil, operation("list roles", err)
	}
	roles := make([]Role, 0, len(rows))
	for _, raw := range rows {
		role, ok := decodeRole(raw, expandPermissions)
		if !ok {
			s.logger.Warn("role row dropped", slog.Bool("expanded", expandPermissions))
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// Get fetches one role by id. If the expanded read yields an unparseable row
// the role is re-read without expansion instead of failing.
func (s *RoleService) Get(ctx context.Context, id string, expandPermissions bool) (Role, error) {
	q := store.Query{Filters: []store.Filter{store.Eq("id", id)}}
	if expandPermissions {
		q.Expand = []string{"permisos"}
	}
	rows, err := s.store.Select(ctx, relRoles, q)
	if err != nil {
		return Role{}, operation("get role", err)
	}
	if len(rows) == 0 {
		return Role{}, notFound("rol", id)
	}
	role, ok := decodeRole(rows[0], expandPermissions)
	if ok {
		return role, nil
	}
	if !expandPermissions {
		return Role{}, operation("get role", errUnparseable)
	}
	s.logger.Warn("expanded role unparseable, retrying basic read", slog.String("id", id))
	return s.Get(ctx, id, false)
}

// Update applies the non-nil patch fields and refreshes updated_at.
func (s *RoleService) Update(ctx context.Context, id string, patch RolePatch) (Role, error) {
	if _, err := s.Get(ctx, id, false); err != nil {
		return Role{}, err
	}
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		fields["nombre"] = *patch.Name
	}
	if patch.Description != nil {
		fields["descripcion"] = *patch.Description
	}
	if patch.Active != nil {
		fields["activo"] = *patch.Active
	}
	raw, err := s.store.Update(ctx, relRoles, []store.Filter{store.Eq("id", id)}, fields)
	if err != nil {
		return Role{}, operation("update role", err)
	}
	role, ok := decodeRole(raw, false)
	if !ok {
		return Role{}, operation("update role", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "actualizar", "rol", role.ID)
	}
	return role, nil
}

// Delete removes a role and all of its permission grants. Deletion is blocked
// while any user assignment references the role, active or not. The grants are
// removed first; a failure there aborts before the role row is touched so a
// partial deletion never leaves orphaned grants without their role.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id, false); err != nil {
		return err
	}
	refs, err := s.store.Select(ctx, relUserRoles, store.Query{
		Filters: []store.Filter{store.Eq("id_rol", id)},
	})
	if err != nil {
		return operation("delete role", err)
	}
	if len(refs) > 0 {
		return forbidden("el rol está asignado a uno o más usuarios")
	}
	if err := s.store.Delete(ctx, relRolePermissions, []store.Filter{store.Eq("id_rol", id)}); err != nil {
		return operation("delete role grants", err)
	}
	if err := s.store.Delete(ctx, relRoles, []store.Filter{store.Eq("id", id)}); err != nil {
		return operation("delete role", err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "eliminar", "rol", id)
	}
	return nil
}
