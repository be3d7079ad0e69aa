package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGateway implements Gateway on a pgx pool. Every row is rendered to
// JSON by the database itself so requested expansions arrive already embedded.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway builds a gateway backed by the provided pool.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

// Select returns every row of the relation matching the query.
func (g *PostgresGateway) Select(ctx context.Context, relation string, q Query) ([]json.RawMessage, error) {
	rel, err := lookupRelation(relation)
	if err != nil {
		return nil, err
	}
	sqlText, args, err := renderSelect(rel, q)
	if err != nil {
		return nil, err
	}
	rows, err := g.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select %s: %w", relation, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", relation, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: select %s: %w", relation, err)
	}
	return out, nil
}

// Insert persists a new row and returns it as stored. A missing id is assigned
// here so the caller never needs a second round-trip to learn it.
func (g *PostgresGateway) Insert(ctx context.Context, relation string, row any) (json.RawMessage, error) {
	rel, err := lookupRelation(relation)
	if err != nil {
		return nil, err
	}
	fields, err := rowFields(row)
	if err != nil {
		return nil, fmt.Errorf("store: insert %s: %w", relation, err)
	}
	if _, ok := fields["id"]; !ok {
		fields["id"] = uuid.NewString()
	}

	cols := sortedColumns(fields)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[col]
	}
	sqlText := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING to_jsonb(%s)",
		rel.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), rel.Table,
	)

	var raw []byte
	if err := g.pool.QueryRow(ctx, sqlText, args...).Scan(&raw); err != nil {
		return nil, classifyWriteErr(relation, err)
	}
	return json.RawMessage(raw), nil
}

// Update patches every matching row and returns the first updated row.
func (g *PostgresGateway) Update(ctx context.Context, relation string, filters []Filter, patch any) (json.RawMessage, error) {
	rel, err := lookupRelation(relation)
	if err != nil {
		return nil, err
	}
	fields, err := rowFields(patch)
	if err != nil {
		return nil, fmt.Errorf("store: update %s: %w", relation, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("store: update %s: empty patch", relation)
	}

	cols := sortedColumns(fields)
	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, fields[col])
	}
	where, filterArgs, err := renderFilters(filters, len(cols)+1)
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)
	sqlText := fmt.Sprintf(
		"UPDATE %s SET %s%s RETURNING to_jsonb(%s)",
		rel.Table, strings.Join(assignments, ", "), where, rel.Table,
	)

	var raw []byte
	if err := g.pool.QueryRow(ctx, sqlText, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoRows, relation)
		}
		return nil, classifyWriteErr(relation, err)
	}
	return json.RawMessage(raw), nil
}

// Delete removes every matching row. Matching nothing is not an error.
func (g *PostgresGateway) Delete(ctx context.Context, relation string, filters []Filter) error {
	rel, err := lookupRelation(relation)
	if err != nil {
		return err
	}
	where, args, err := renderFilters(filters, 1)
	if err != nil {
		return err
	}
	if where == "" {
		return fmt.Errorf("store: delete %s: refusing unfiltered delete", relation)
	}
	if _, err := g.pool.Exec(ctx, "DELETE FROM "+rel.Table+where, args...); err != nil {
		return classifyWriteErr(relation, err)
	}
	return nil
}

func lookupRelation(relation string) (Relation, error) {
	rel, ok := Relations[relation]
	if !ok {
		return Relation{}, fmt.Errorf("store: unknown relation %q", relation)
	}
	return rel, nil
}

func renderSelect(rel Relation, q Query) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT to_jsonb(")
	sb.WriteString(rel.Table)
	sb.WriteString(")")
	for _, name := range q.Expand {
		exp, ok := rel.Expansions[name]
		if !ok {
			return "", nil, fmt.Errorf("store: relation %s has no expansion %q", rel.Table, name)
		}
		sb.WriteString(" || ")
		sb.WriteString(renderExpansion(rel.Table, exp))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(rel.Table)

	where, args, err := renderFilters(q.Filters, 1)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	if q.OrderBy != "" {
		if err := checkIdent(q.OrderBy); err != nil {
			return "", nil, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.OrderBy)
		sb.WriteString(" ASC")
	}
	return sb.String(), args, nil
}

// renderExpansion embeds related rows as a JSON object or array. ExpandMany
// children carry at most one nested ExpandOne, which covers every registered
// relation; deeper nesting is not supported.
func renderExpansion(parent string, exp Expansion) string {
	switch exp.Kind {
	case ExpandMany:
		inner := "to_jsonb(c)"
		if exp.Nested != nil {
			inner += " || " + renderExpansion("c", *exp.Nested)
		}
		return fmt.Sprintf(
			"jsonb_build_object('%s', (SELECT coalesce(jsonb_agg(%s), '[]'::jsonb) FROM %s c WHERE c.%s = %s.id))",
			exp.Field, inner, exp.Table, exp.Column, parent,
		)
	default:
		return fmt.Sprintf(
			"jsonb_build_object('%s', (SELECT to_jsonb(o) FROM %s o WHERE o.id = %s.%s))",
			exp.Field, exp.Table, parent, exp.Column,
		)
	}
}

func renderFilters(filters []Filter, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	n := start
	for _, f := range filters {
		if err := checkIdent(f.Column); err != nil {
			return "", nil, err
		}
		switch f.Op {
		case OpIn:
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", f.Column, n))
			args = append(args, f.Values)
		case OpLt:
			clauses = append(clauses, fmt.Sprintf("%s < $%d", f.Column, n))
			args = append(args, f.Value)
		default:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", f.Column, n))
			args = append(args, f.Value)
		}
		n++
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func rowFields(row any) (map[string]any, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func sortedColumns(fields map[string]any) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func checkIdent(name string) error {
	if name == "" {
		return errors.New("store: empty identifier")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("store: invalid identifier %q", name)
		}
	}
	return nil
}

// classifyWriteErr maps malformed-input rejections (SQLSTATE classes 22 and 23)
// onto ErrRejected so the domain layer can distinguish them from infrastructure
// failures.
func classifyWriteErr(relation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return fmt.Errorf("%w: %s: %s", ErrRejected, relation, pgErr.Message)
		}
	}
	return fmt.Errorf("store: %s: %w", relation, err)
}
