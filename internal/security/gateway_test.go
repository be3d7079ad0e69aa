package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/festeja/festeja/internal/store"
)

// memoryGateway is an in-memory store.Gateway for tests. It honours the
// expansion registry so expanded reads embed related rows the way the real
// gateway renders them, including null for a dangling ExpandOne reference.
type memoryGateway struct {
	mu   sync.Mutex
	rows map[string][]map[string]any
	seq  int

	selectErr map[string]error
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{
		rows:      make(map[string][]map[string]any),
		selectErr: make(map[string]error),
	}
}

func jsonKey(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func toFields(row any) (map[string]any, error) {
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

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func rowMatches(row map[string]any, f store.Filter) bool {
	switch f.Op {
	case store.OpEq:
		return jsonKey(row[f.Column]) == jsonKey(f.Value)
	case store.OpIn:
		for _, v := range f.Values {
			if jsonKey(row[f.Column]) == jsonKey(v) {
				return true
			}
		}
		return false
	case store.OpLt:
		return jsonKey(row[f.Column]) < jsonKey(f.Value)
	default:
		return false
	}
}

func (g *memoryGateway) Select(ctx context.Context, relation string, q store.Query) ([]json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.selectErr[relation]; err != nil {
		return nil, err
	}
	rel, ok := store.Relations[relation]
	if !ok {
		return nil, fmt.Errorf("memory: unknown relation %s", relation)
	}

	matched := make([]map[string]any, 0)
	for _, row := range g.rows[relation] {
		keep := true
		for _, f := range q.Filters {
			if !rowMatches(row, f) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return jsonKey(matched[i][q.OrderBy]) < jsonKey(matched[j][q.OrderBy])
		})
	}

	out := make([]json.RawMessage, 0, len(matched))
	for _, row := range matched {
		rendered := cloneRow(row)
		for _, name := range q.Expand {
			exp, ok := rel.Expansions[name]
			if !ok {
				return nil, fmt.Errorf("memory: unknown expansion %s on %s", name, relation)
			}
			rendered[exp.Field] = g.expand(exp, row)
		}
		data, err := json.Marshal(rendered)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (g *memoryGateway) expand(exp store.Expansion, row map[string]any) any {
	if exp.Kind == store.ExpandOne {
		for _, candidate := range g.rows[exp.Table] {
			if jsonKey(candidate["id"]) == jsonKey(row[exp.Column]) {
				return cloneRow(candidate)
			}
		}
		return nil
	}
	children := make([]map[string]any, 0)
	for _, candidate := range g.rows[exp.Table] {
		if jsonKey(candidate[exp.Column]) == jsonKey(row["id"]) {
			child := cloneRow(candidate)
			if exp.Nested != nil {
				child[exp.Nested.Field] = g.expand(*exp.Nested, candidate)
			}
			children = append(children, child)
		}
	}
	return children
}

func (g *memoryGateway) Insert(ctx context.Context, relation string, row any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fields, err := toFields(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrRejected, err)
	}
	if id, ok := fields["id"].(string); !ok || id == "" {
		g.seq++
		fields["id"] = "row-" + strconv.Itoa(g.seq)
	}
	g.rows[relation] = append(g.rows[relation], fields)
	return json.Marshal(fields)
}

func (g *memoryGateway) Update(ctx context.Context, relation string, filters []store.Filter, patch any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fields, err := toFields(patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrRejected, err)
	}
	var first map[string]any
	for _, row := range g.rows[relation] {
		keep := true
		for _, f := range filters {
			if !rowMatches(row, f) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		for k, v := range fields {
			row[k] = v
		}
		if first == nil {
			first = row
		}
	}
	if first == nil {
		return nil, store.ErrNoRows
	}
	return json.Marshal(first)
}

func (g *memoryGateway) Delete(ctx context.Context, relation string, filters []store.Filter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := make([]map[string]any, 0, len(g.rows[relation]))
	for _, row := range g.rows[relation] {
		match := true
		for _, f := range filters {
			if !rowMatches(row, f) {
				match = false
				break
			}
		}
		if !match {
			remaining = append(remaining, row)
		}
	}
	g.rows[relation] = remaining
	return nil
}

// count reports how many rows of a relation match the filters.
func (g *memoryGateway) count(relation string, filters ...store.Filter) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, row := range g.rows[relation] {
		match := true
		for _, f := range filters {
			if !rowMatches(row, f) {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

// addRow bypasses Insert so tests can plant rows the services would refuse to
// write, such as a grant with a malformed level.
func (g *memoryGateway) addRow(relation string, row map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[relation] = append(g.rows[relation], row)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []string
}

func (a *recordingAudit) Record(ctx context.Context, action, entity, entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, action+" "+entity)
}

func (a *recordingAudit) has(entry string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	gw          *memoryGateway
	audit       *recordingAudit
	permissions *PermissionService
	roles       *RoleService
	grants      *RolePermissionService
	assignments *UserRoleService
}

func newTestEnv() *testEnv {
	gw := newMemoryGateway()
	logger := discardLogger()
	audit := &recordingAudit{}
	permissions := NewPermissionService(gw, logger, audit)
	roles := NewRoleService(gw, logger, audit)
	grants := NewRolePermissionService(gw, roles, permissions, logger, audit)
	assignments := NewUserRoleService(gw, roles, logger, audit)
	return &testEnv{
		gw:          gw,
		audit:       audit,
		permissions: permissions,
		roles:       roles,
		grants:      grants,
		assignments: assignments,
	}
}

func (e *testEnv) addProfile(id, accountType string) {
	e.gw.addRow(relProfiles, map[string]any{
		"id":          id,
		"correo":      id + "@festeja.local",
		"tipo_cuenta": accountType,
	})
}
