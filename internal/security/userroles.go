package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/festeja/festeja/internal/store"
)

// UserRoleService manages the user↔role assignments.
type UserRoleService struct {
	store  store.Gateway
	roles  *RoleService
	logger *slog.Logger
	audit  AuditPort
}

// NewUserRoleService builds a UserRoleService.
func NewUserRoleService(gw store.Gateway, roles *RoleService, logger *slog.Logger, audit AuditPort) *UserRoleService {
	return &UserRoleService{store: gw, roles: roles, logger: logger, audit: audit}
}

// Assign gives a user a role. The user must exist in the external identity
// store and the role in the catalog. Upsert semantics mirror the permission
// grants: an existing assignment for the pair has only its active flag updated
// (reactivation never inserts a duplicate). Active defaults to true. The
// returned assignment carries the expanded role, falling back to the basic row
// when the expanded read is unparseable.
func (s *UserRoleService) Assign(ctx context.Context, userID, roleID string, active *bool) (UserRole, error) {
	if _, err := s.roles.Get(ctx, roleID, false); err != nil {
		return UserRole{}, err
	}
	profiles, err := s.store.Select(ctx, relProfiles, store.Query{
		Filters: []store.Filter{store.Eq("id", userID)},
	})
	if err != nil {
		return UserRole{}, fmt.Errorf("%w: usuario %s: %v", ErrNotFound, userID, err)
	}
	if len(profiles) == 0 {
		return UserRole{}, notFound("usuario", userID)
	}

	flag := true
	if active != nil {
		flag = *active
	}

	existing, err := s.store.Select(ctx, relUserRoles, store.Query{
		Filters: []store.Filter{store.Eq("id_usuario", userID), store.Eq("id_rol", roleID)},
	})
	if err != nil {
		return UserRole{}, operation("assign role", err)
	}

	now := time.Now().UTC()
	var raw []byte
	if len(existing) > 0 {
		current, ok := decodeUserRole(existing[0], false)
		if !ok {
			return UserRole{}, operation("assign role", errUnparseable)
		}
		raw, err = s.store.Update(ctx, relUserRoles,
			[]store.Filter{store.Eq("id", current.ID)},
			map[string]any{"activo": flag, "updated_at": now},
		)
	} else {
		raw, err = s.store.Insert(ctx, relUserRoles, map[string]any{
			"id_usuario": userID,
			"id_rol":     roleID,
			"activo":     flag,
			"created_at": now,
			"updated_at": now,
		})
	}
	if err != nil {
		return UserRole{}, operation("assign role", err)
	}

	assignment, ok := decodeUserRole(raw, false)
	if !ok {
		return UserRole{}, operation("assign role", errUnparseable)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "asignar", "usuario_rol", assignment.ID)
	}
	return s.expandAssignment(ctx, assignment), nil
}

func (s *UserRoleService) expandAssignment(ctx context.Context, assignment UserRole) UserRole {
	rows, err := s.store.Select(ctx, relUserRoles, store.Query{
		Filters: []store.Filter{store.Eq("id", assignment.ID)},
		Expand:  []string{"rol"},
	})
	if err != nil || len(rows) == 0 {
		s.logger.Warn("assignment expansion failed", slog.String("id", assignment.ID), slog.Any("error", err))
		return assignment
	}
	expanded, ok := decodeUserRole(rows[0], true)
	if !ok {
		s.logger.Warn("expanded assignment unparseable", slog.String("id", assignment.ID))
		return assignment
	}
	return expanded
}

// Unassign removes an assignment by id. Removing an assignment that no longer
// exists is not an error.
func (s *UserRoleService) Unassign(ctx context.Context, bindingID string) error {
	if err := s.store.Delete(ctx, relUserRoles, []store.Filter{store.Eq("id", bindingID)}); err != nil {
		return operation("unassign role", err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, "revocar", "usuario_rol", bindingID)
	}
	return nil
}

// ListActive returns the user's active role assignments with each role
// embedded. Rows that fail to parse are logged and filtered out, not surfaced
// as errors.
func (s *UserRoleService) ListActive(ctx context.Context, userID string) ([]UserRole, error) {
	rows, err := s.store.Select(ctx, relUserRoles, store.Query{
		Filters: []store.Filter{store.Eq("id_usuario", userID), store.Eq("activo", true)},
		Expand:  []string{"rol"},
	})
	if err != nil {
		return nil, operation("list active roles", err)
	}
	assignments := make([]UserRole, 0, len(rows))
	for _, raw := range rows {
		assignment, ok := decodeUserRole(raw, true)
		if !ok {
			s.logger.Warn("assignment row dropped", slog.String("usuario", userID))
			continue
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}
