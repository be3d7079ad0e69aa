package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/festeja/festeja/internal/identity"
	"github.com/festeja/festeja/internal/store"
)

// AccessService answers the question "may this user perform this action".
type AccessService struct {
	identity  identity.Resolver
	userRoles *UserRoleService
	store     store.Gateway
	logger    *slog.Logger
}

// NewAccessService builds an AccessService.
func NewAccessService(resolver identity.Resolver, userRoles *UserRoleService, gw store.Gateway, logger *slog.Logger) *AccessService {
	return &AccessService{identity: resolver, userRoles: userRoles, store: gw, logger: logger}
}

// CheckPermission decides whether the user holds the named permission at the
// required level (LECTURA when empty). A denied check returns false, never an
// error; errors are reserved for the identity lookup failing entirely.
//
// Administrator accounts short-circuit to true before any role or grant is
// consulted. This is the single privileged escape hatch of the authorization
// model; keeping it as the first branch here keeps it auditable.
func (s *AccessService) CheckPermission(ctx context.Context, userID, permission string, required Level) (bool, error) {
	if required == "" {
		required = LevelRead
	}
	account, err := s.identity.AccountType(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: usuario %s: %v", ErrNotFound, userID, err)
	}
	if account == identity.AccountAdministrator {
		return true, nil
	}

	assignments, err := s.userRoles.ListActive(ctx, userID)
	if err != nil {
		return false, operation("check permission", err)
	}
	if len(assignments) == 0 {
		return false, nil
	}
	roleIDs := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		roleIDs = append(roleIDs, assignment.RoleID)
	}

	rows, err := s.store.Select(ctx, relRolePermissions, store.Query{
		Filters: []store.Filter{store.In("id_rol", roleIDs...)},
		Expand:  []string{"permiso"},
	})
	if err != nil {
		return false, operation("check permission", err)
	}
	for _, raw := range rows {
		grant, ok := decodeRolePermission(raw, false, true)
		if !ok {
			s.logger.Warn("grant row skipped", slog.String("usuario", userID))
			continue
		}
		if grant.Permission.Name == permission && grant.Level.Satisfies(required) {
			return true, nil
		}
	}
	return false, nil
}
