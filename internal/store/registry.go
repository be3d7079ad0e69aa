package store

// ExpansionKind selects how related rows are embedded.
type ExpansionKind int

const (
	// ExpandOne embeds the single row referenced by a foreign key on this relation.
	ExpandOne ExpansionKind = iota
	// ExpandMany embeds every child row whose foreign key references this relation.
	ExpandMany
)

// Expansion describes how a related relation is embedded into a row.
type Expansion struct {
	// Field is the JSON key the related rows are embedded under.
	Field string
	Table string
	Kind  ExpansionKind
	// Column is the foreign-key column: on this relation for ExpandOne, on the
	// child relation for ExpandMany.
	Column string
	// Nested optionally embeds one more ExpandOne level into each child row.
	Nested *Expansion
}

// Relation maps a logical relation name onto its table and known expansions.
type Relation struct {
	Table      string
	Expansions map[string]Expansion
}

// Relations registers every relation the platform reads or writes. The perfiles
// relation belongs to the external identity domain and is read-only here.
var Relations = map[string]Relation{
	"permisos": {Table: "permisos"},
	"roles": {
		Table: "roles",
		Expansions: map[string]Expansion{
			"permisos": {
				Field:  "permisos",
				Table:  "roles_permisos",
				Kind:   ExpandMany,
				Column: "id_rol",
				Nested: &Expansion{Field: "permiso", Table: "permisos", Kind: ExpandOne, Column: "id_permiso"},
			},
		},
	},
	"roles_permisos": {
		Table: "roles_permisos",
		Expansions: map[string]Expansion{
			"rol":     {Field: "rol", Table: "roles", Kind: ExpandOne, Column: "id_rol"},
			"permiso": {Field: "permiso", Table: "permisos", Kind: ExpandOne, Column: "id_permiso"},
		},
	},
	"usuarios_roles": {
		Table: "usuarios_roles",
		Expansions: map[string]Expansion{
			"rol": {Field: "rol", Table: "roles", Kind: ExpandOne, Column: "id_rol"},
		},
	},
	"perfiles":          {Table: "perfiles"},
	"eventos_auditoria": {Table: "eventos_auditoria"},
}
