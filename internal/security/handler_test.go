package security

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/festeja/festeja/internal/identity"
)

func newTestRouter(t *testing.T, env *testEnv, accounts map[string]identity.AccountType) http.Handler {
	t.Helper()
	access := newAccessService(env, accounts)
	guard := Middleware{Access: access, Logger: discardLogger()}
	handler := NewHandler(discardLogger(), env.permissions, env.roles, env.grants, env.assignments, access, guard)
	r := chi.NewRouter()
	r.Route("/seguridad", handler.MountRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req = req.WithContext(identity.ContextWithUser(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func adminEnv(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	env := newTestEnv()
	env.addProfile("admin", "administrador")
	router := newTestRouter(t, env, map[string]identity.AccountType{
		"admin": identity.AccountAdministrator,
	})
	return env, router
}

func TestHandlerRejectsAnonymousAdministration(t *testing.T) {
	_, router := adminEnv(t)

	rec := doRequest(t, router, http.MethodGet, "/seguridad/permisos/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRejectsCallerWithoutSecurityPermission(t *testing.T) {
	env := newTestEnv()
	env.addProfile("u-1", "estandar")
	router := newTestRouter(t, env, map[string]identity.AccountType{
		"u-1": identity.AccountStandard,
	})

	rec := doRequest(t, router, http.MethodGet, "/seguridad/permisos/", "u-1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerPermissionCRUD(t *testing.T) {
	_, router := adminEnv(t)

	rec := doRequest(t, router, http.MethodPost, "/seguridad/permisos/", "admin", map[string]any{
		"nombre": "eventos", "modulo": "eventos", "descripcion": "Gestionar eventos",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Permission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doRequest(t, router, http.MethodGet, "/seguridad/permisos/"+created.ID, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPut, "/seguridad/permisos/"+created.ID, "admin", map[string]any{
		"descripcion": "Programar eventos",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Permission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "Programar eventos", updated.Description)

	rec = doRequest(t, router, http.MethodDelete, "/seguridad/permisos/"+created.ID, "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/seguridad/permisos/"+created.ID, "admin", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreatePermissionValidation(t *testing.T) {
	_, router := adminEnv(t)

	rec := doRequest(t, router, http.MethodPost, "/seguridad/permisos/", "admin", map[string]any{
		"modulo": "eventos",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/seguridad/roles-permisos/", "admin", map[string]any{
		"id_rol": "r-1", "id_permiso": "p-1", "nivel": "TOTAL",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeletePermissionInUse(t *testing.T) {
	env, router := adminEnv(t)
	ctx := context.Background()

	perm, err := env.permissions.Create(ctx, PermissionInput{Name: "eventos", Module: "eventos"})
	require.NoError(t, err)
	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)
	_, err = env.grants.Assign(ctx, role.ID, perm.ID, LevelRead)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodDelete, "/seguridad/permisos/"+perm.ID, "admin", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRoleListExpansion(t *testing.T) {
	env, router := adminEnv(t)
	ctx := context.Background()

	perm, err := env.permissions.Create(ctx, PermissionInput{Name: "eventos", Module: "eventos"})
	require.NoError(t, err)
	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)
	_, err = env.grants.Assign(ctx, role.ID, perm.ID, LevelWrite)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/seguridad/roles/?expandir=true", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	require.Len(t, roles, 1)
	require.Len(t, roles[0].Permissions, 1)
	require.NotNil(t, roles[0].Permissions[0].Permission)
}

func TestHandlerAssignRoleAndListActive(t *testing.T) {
	env, router := adminEnv(t)
	ctx := context.Background()
	env.addProfile("u-1", "estandar")

	role, err := env.roles.Create(ctx, RoleInput{Name: "Coordinador"})
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/seguridad/usuarios-roles/", "admin", map[string]any{
		"id_usuario": "u-1", "id_rol": role.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/seguridad/usuarios-roles/usuario/u-1", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assignments []UserRole
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignments))
	require.Len(t, assignments, 1)
	require.Equal(t, role.ID, assignments[0].RoleID)
}

func TestHandlerCheckEndpoint(t *testing.T) {
	env := newTestEnv()
	env.addProfile("u-1", "estandar")
	grantPermission(t, env, "u-1", "Consulta", "reportes", LevelRead)
	router := newTestRouter(t, env, map[string]identity.AccountType{
		"u-1": identity.AccountStandard,
	})

	rec := doRequest(t, router, http.MethodGet, "/seguridad/verificar", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/seguridad/verificar?usuario=u-1&permiso=reportes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verdict map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	require.True(t, verdict["autorizado"])

	rec = doRequest(t, router, http.MethodGet, "/seguridad/verificar?usuario=u-1&permiso=reportes&nivel=ESCRITURA", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	require.False(t, verdict["autorizado"])

	rec = doRequest(t, router, http.MethodGet, "/seguridad/verificar?usuario=u-1&permiso=reportes&nivel=TOTAL", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
