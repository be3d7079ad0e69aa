package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/festeja/festeja/internal/store"
)

// RolePermissionService manages the role↔permission grants.
type RolePermissionService struct {
	store       store.Gateway
	roles       *RoleService
	permissions *PermissionService
	logger      *slog.Logger
	audit       AuditPort
}

// NewRolePermissionService builds a RolePermissionService.
func NewRolePermissionService(gw store.Gateway, roles *RoleService, permissions *PermissionService, logger *slog.Logger, audit AuditPort) *RolePermissionService {
	return &RolePermissionService{store: gw, roles: roles, permissions: permissions, logger: logger, audit: audit}
}

// Assign grants a permission to a role at the given level. The operation is an
// idempotent upsert: an existing grant for the pair has only its level and
// timestamp updated, so repeated calls converge to a single row holding the
// latest level. The returned grant carries the expanded role and permission;
// if the expanded read is unparseable the basic row is returned instead.
//
// The existing-pair lookup and the write are two round-trips, not one atomic
// statement; two concurrent assigns for the same pair can both miss and both
// insert. The store keeps no uniqueness constraint on the pair.
func (s *RolePermissionService) Assign(ctx context.Context, roleID, permissionID string, level Level) (RolePermission, error) {
	if !level.Valid() {
		return RolePermission{}, fmt.Errorf("%w: nivel %q", ErrValidation, level)
	}
	if _, err := s.roles.Get(ctx, roleID, false); err != nil {
		return RolePermission{}, err
	}
	if _, err := s.permissions.Get(ctx, permissionID); err != nil {
		return RolePermission{}, err
	}

	existing, err := s.store.Select(ctx, relRolePermissions, store.Query{
		Filters: []store.Filter{store.Eq("id_rol", roleID), store.Eq("id_permiso", permissionID)},
	})
	if err != nil {
		return RolePermission{}, operation("assign permission", err)
	}

	now := time.Now().UTC()
	var raw []byte
	if len(existing) > 0 {
		current, ok := decodeRolePermission(existing[0], false, false)
		if !ok {
			return RolePermission{}, operation("assign permission", errUnparseable)
		}
		raw, err = s.store.Update(ctx, relRolePermissions,
			[]store.Filter{store.Eq("id", current.ID)},
			map[string]any{"nivel": level, "updated_at": now},
		)
	} else {
		raw, err = s.store.Insert(ctx, relRolePermissions, map[string]any{
			"id_rol":     roleID,
			"id_permiso": permissionID,
			"nivel":      level,
			"created_at": now,
			"updated_at": now,
		})
	}
	if err != nil {
		return RolePermission{}, operation("assign permission", err)
	}

	grant, ok := decodeRolePermission(raw, false, false)
	if !ok {
		return RolePermission{}, operation("assign permission", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "asignar", "rol_permiso", grant.ID)
	}
	return s.expandGrant(ctx, grant), nil
}

// expandGrant re-reads the grant with its role and permission embedded,
// falling back to the basic row when the expanded read fails or does not
// decode.
func (s *RolePermissionService) expandGrant(ctx context.Context, grant RolePermission) RolePermission {
	rows, err := s.store.Select(ctx, relRolePermissions, store.Query{
		Filters: []store.Filter{store.Eq("id", grant.ID)},
		Expand:  []string{"rol", "permiso"},
	})
	if err != nil || len(rows) == 0 {
		s.logger.Warn("grant expansion failed", slog.String("id", grant.ID), slog.Any("error", err))
		return grant
	}
	expanded, ok := decodeRolePermission(rows[0], true, true)
	if !ok {
		s.logger.Warn("expanded grant unparseable", slog.String("id", grant.ID))
		return grant
	}
	return expanded
}

// Unassign removes a grant by id. Removing a grant that no longer exists is
// not an error.
func (s *RolePermissionService) Unassign(ctx context.Context, bindingID string) error {
	if err := s.store.Delete(ctx, relRolePermissions, []store.Filter{store.Eq("id", bindingID)}); err != nil {
		return operation("unassign permission", err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "revocar", "rol_permiso", bindingID)
	}
	return nil
}
