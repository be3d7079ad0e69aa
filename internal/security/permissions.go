package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/festeja/festeja/internal/store"
)

// AuditPort records administrative changes for the audit trail. Recording is
// best-effort and never fails the originating operation.
type AuditPort interface {
	Record(ctx context.Context, action, entity, entityID string)
}

// PermissionInput carries the fields for a new permission.
type PermissionInput struct {
	Name        string `json:"nombre"`
	Module      string `json:"modulo"`
	Description string `json:"descripcion"`
}

// PermissionPatch carries optional updates; nil fields are left untouched.
type PermissionPatch struct {
	Name        *string `json:"nombre,omitempty"`
	Module      *string `json:"modulo,omitempty"`
	Description *string `json:"descripcion,omitempty"`
}

// PermissionService manages the permission catalog.
type PermissionService struct {
	store  store.Gateway
	logger *slog.Logger
	audit  AuditPort
}

// NewPermissionService builds a PermissionService.
func NewPermissionService(gw store.Gateway, logger *slog.Logger, audit AuditPort) *PermissionService {
	return &PermissionService{store: gw, logger: logger, audit: audit}
}

// Create persists a new permission with both timestamps set to now.
func (s *PermissionService) Create(ctx context.Context, input PermissionInput) (Permission, error) {
	now := time.Now().UTC()
	raw, err := s.store.Insert(ctx, relPermissions, map[string]any{
		"nombre":      input.Name,
		"modulo":      input.Module,
		"descripcion": input.Description,
		"created_at":  now,
		"updated_at":  now,
	})
	if err != nil {
		return Permission{}, operation("create permission", err)
	}
	perm, ok := decodePermission(raw)
	if !ok {
		return Permission{}, operation("create permission", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "crear", "permiso", perm.ID)
	}
	return perm, nil
}

// List returns every permission ordered by name, optionally restricted to one
// module. An empty result is a valid empty list.
func (s *PermissionService) List(ctx context.Context, module string) ([]Permission, error) {
	q := store.Query{OrderBy: "nombre"}
	if module != "" {
		q.Filters = append(q.Filters, store.Eq("modulo", module))
	}
	rows, err := s.store.Select(ctx, relPermissions, q)
	if err != nil {
		return nil, operation("list permissions", err)
	}
	perms := make([]Permission, 0, len(rows))
	for _, raw := range rows {
		perm, ok := decodePermission(raw)
		if !ok {
			s.logger.Warn("permission row dropped", slog.String("relation", relPermissions))
			continue
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

// Get fetches one permission by id.
func (s *PermissionService) Get(ctx context.Context, id string) (Permission, error) {
	rows, err := s.store.Select(ctx, relPermissions, store.Query{
		Filters: []store.Filter{store.Eq("id", id)},
	})
	if err != nil {
		return Permission{}, operation("get permission", err)
	}
	if len(rows) == 0 {
		return Permission{}, notFound("permiso", id)
	}
	perm, ok := decodePermission(rows[0])
	if !ok {
		return Permission{}, operation("get permission", errUnparseable)
	}
	return perm, nil
}

// Update applies the non-nil patch fields and refreshes updated_at.
func (s *PermissionService) Update(ctx context.Context, id string, patch PermissionPatch) (Permission, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Permission{}, err
	}
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		fields["nombre"] = *patch.Name
	}
	if patch.Module != nil {
		fields["modulo"] = *patch.Module
	}
	if patch.Description != nil {
		fields["descripcion"] = *patch.Description
	}
	raw, err := s.store.Update(ctx, relPermissions, []store.Filter{store.Eq("id", id)}, fields)
	if err != nil {
		return Permission{}, operation("update permission", err)
	}
	perm, ok := decodePermission(raw)
	if !ok {
		return Permission{}, operation("update permission", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "actualizar", "permiso", perm.ID)
	}
	return perm, nil
}

// Delete removes a permission. Deletion is blocked while any role still holds
// a grant on it, so no binding ever references a deleted permission.
func (s *PermissionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	refs, err := s.store.Select(ctx, relRolePermissions, store.Query{
		Filters: []store.Filter{store.Eq("id_permiso", id)},
	})
	if err != nil {
		return operation("delete permission", err)
	}
	if len(refs) > 0 {
		return forbidden("el permiso está asignado a uno o más roles")
	}
	if err := s.store.Delete(ctx, relPermissions, []store.Filter{store.Eq("id", id)}); err != nil {
		return operation("delete permission", err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "eliminar", "permiso", id)
	}
	return nil
}
