package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/festeja/festeja/internal/store"
)

func TestAssignRoleRequiresProfile(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)

	_, err = env.assignments.Assign(ctx, "fantasma", role.ID, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssignRoleRequiresRole(t *testing.T) {
	env := newTestEnv()
	env.addProfile("u-1", "estandar")

	_, err := env.assignments.Assign(context.Background(), "u-1", "no-existe", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssignRoleDefaultsToActiveAndEmbedsRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addProfile("u-1", "estandar")

	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)

	assignment, err := env.assignments.Assign(ctx, "u-1", role.ID, nil)
	require.NoError(t, err)
	require.True(t, assignment.Active)
	require.NotNil(t, assignment.Role)
	require.Equal(t, "Coordinador", assignment.Role.Name)
}

func TestAssignRoleReactivatesExistingAssignment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addProfile("u-1", "estandar")

	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)

	first, err := env.assignments.Assign(ctx, "u-1", role.ID, nil)
	require.NoError(t, err)

	inactive := false
	deactivated, err := env.assignments.Assign(ctx, "u-1", role.ID, &inactive)
	require.NoError(t, err)
	require.Equal(t, first.ID, deactivated.ID)
	require.False(t, deactivated.Active)

	reactivated, err := env.assignments.Assign(ctx, "u-1", role.ID, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, reactivated.ID)
	require.True(t, reactivated.Active)

	require.Equal(t, 1, env.gw.count(relUserRoles,
		store.Eq("id_usuario", "u-1"), store.Eq("id_rol", role.ID)))
}

func TestListActiveExcludesInactiveAssignments(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addProfile("u-1", "estandar")

	coordinator, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)
	viewer, err := env.roles.Create(ctx, RoleInput{Name: "Consulta"})
	require.NoError(t, err)

	_, err = env.assignments.Assign(ctx, "u-1", coordinator.ID, nil)
	require.NoError(t, err)
	inactive := false
	_, err = env.assignments.Assign(ctx, "u-1", viewer.ID, &inactive)
	require.NoError(t, err)

	active, err := env.assignments.ListActive(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, coordinator.ID, active[0].RoleID)
	require.NotNil(t, active[0].Role)
}

func TestListActiveDropsAssignmentWithMissingRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gw.addRow(relUserRoles, map[string]any{
		"id": "a-huérfana", "id_usuario": "u-1", "id_rol": "borrado", "activo": true,
	})

	active, err := env.assignments.ListActive(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestUnassignRoleMissingIsNoError(t *testing.T) {
	env := newTestEnv()

	require.NoError(t, env.assignments.Unassign(context.Background(), "no-existe"))
}
