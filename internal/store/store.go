// Package store exposes the record-store gateway backing every platform relation.
// Rows travel as raw JSON: the underlying store is a remote relational service
// that renders each row (and any requested relation expansion) as a JSON object.
// Callers decode into their own shapes and decide what to do with rows that do
// not match the expected shape.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNoRows indicates the statement matched no rows.
	ErrNoRows = errors.New("store: no rows")
	// ErrRejected indicates the store refused a write (malformed or
	// constraint-violating input).
	ErrRejected = errors.New("store: write rejected")
)

// Op selects the comparison a Filter applies.
type Op string

const (
	// OpEq matches rows where the column equals the value.
	OpEq Op = "eq"
	// OpIn matches rows where the column equals any of the values.
	OpIn Op = "in"
	// OpLt matches rows where the column is strictly less than the value.
	OpLt Op = "lt"
)

// Filter restricts a statement to rows matching a column.
type Filter struct {
	Column string
	Op     Op
	Value  any
	Values []string
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In builds a membership filter.
func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// Lt builds a less-than filter.
func Lt(column string, value any) Filter {
	return Filter{Column: column, Op: OpLt, Value: value}
}

// Query describes a read against a relation.
type Query struct {
	Filters []Filter
	// OrderBy names a column to sort by, ascending.
	OrderBy string
	// Expand names registered expansions to embed into each returned row.
	Expand []string
}

// Gateway is the row-store capability consumed by the domain services.
type Gateway interface {
	Select(ctx context.Context, relation string, q Query) ([]json.RawMessage, error)
	Insert(ctx context.Context, relation string, row any) (json.RawMessage, error)
	Update(ctx context.Context, relation string, filters []Filter, patch any) (json.RawMessage, error)
	Delete(ctx context.Context, relation string, filters []Filter) error
}
