package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSelectPlain(t *testing.T) {
	sqlText, args, err := renderSelect(Relations["permisos"], Query{
		Filters: []Filter{Eq("modulo", "inventario")},
		OrderBy: "nombre",
	})
	require.NoError(t, err)
	require.Equal(t, "SELECT to_jsonb(permisos) FROM permisos WHERE modulo = $1 ORDER BY nombre ASC", sqlText)
	require.Equal(t, []any{"inventario"}, args)
}

func TestRenderSelectExpandOne(t *testing.T) {
	sqlText, args, err := renderSelect(Relations["usuarios_roles"], Query{
		Filters: []Filter{Eq("id_usuario", "u-1"), Eq("activo", true)},
		Expand:  []string{"rol"},
	})
	require.NoError(t, err)
	require.Equal(t,
		"SELECT to_jsonb(usuarios_roles) || jsonb_build_object('rol', (SELECT to_jsonb(o) FROM roles o WHERE o.id = usuarios_roles.id_rol))"+
			" FROM usuarios_roles WHERE id_usuario = $1 AND activo = $2",
		sqlText)
	require.Equal(t, []any{"u-1", true}, args)
}

func TestRenderSelectExpandManyNested(t *testing.T) {
	sqlText, _, err := renderSelect(Relations["roles"], Query{Expand: []string{"permisos"}, OrderBy: "nombre"})
	require.NoError(t, err)
	require.Contains(t, sqlText, "coalesce(jsonb_agg(to_jsonb(c) || jsonb_build_object('permiso'")
	require.Contains(t, sqlText, "FROM roles_permisos c WHERE c.id_rol = roles.id")
	require.Contains(t, sqlText, "ORDER BY nombre ASC")
}

func TestRenderSelectUnknownExpansion(t *testing.T) {
	_, _, err := renderSelect(Relations["permisos"], Query{Expand: []string{"roles"}})
	require.Error(t, err)
}

func TestRenderFiltersIn(t *testing.T) {
	where, args, err := renderFilters([]Filter{In("id_rol", "a", "b")}, 3)
	require.NoError(t, err)
	require.Equal(t, " WHERE id_rol = ANY($3)", where)
	require.Equal(t, []any{[]string{"a", "b"}}, args)
}

func TestCheckIdentRejectsInjection(t *testing.T) {
	require.Error(t, checkIdent("nombre; DROP TABLE roles"))
	require.Error(t, checkIdent(""))
	require.NoError(t, checkIdent("id_rol"))
}

func TestRowFieldsFromStruct(t *testing.T) {
	fields, err := rowFields(struct {
		Name   string `json:"nombre"`
		Active bool   `json:"activo"`
	}{Name: "cajero", Active: true})
	require.NoError(t, err)
	require.Equal(t, "cajero", fields["nombre"])
	require.Equal(t, true, fields["activo"])
}
