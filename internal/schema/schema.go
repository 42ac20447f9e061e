// Package schema holds the engine-agnostic description of a reflected
// source schema and the dependency ordering used to sequence DDL.
package schema

import (
	"fmt"
	"sort"

	"github.com/sqlbridge/migrator/internal/typemap"
)

// TableKind distinguishes ordinary tables from the two view flavors, since
// materialization orders them into separate phases.
type TableKind int

const (
	KindTable TableKind = iota
	KindView
	KindMaterializedView
)

// ConstraintKind enumerates the constraint flavors the reflector preserves.
type ConstraintKind int

const (
	ConstraintPrimaryKey ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintCheck
)

// Column describes one reflected column, already reduced to the generic
// type representation plus whatever engine-specific metadata the
// materializer needs to render it back out.
type Column struct {
	Name          string
	SourceType    string // raw native type string, as the catalog reported it
	Generic       typemap.ColumnType
	Nullable      bool
	Default       string // raw default expression, empty if none or stripped
	Identity      bool   // auto-increment / identity column
	OrdinalPos    int
}

// IsLOB reports whether this column must move through the chunked LOB
// path rather than an ordinary batch INSERT parameter.
func (c Column) IsLOB() bool { return c.Generic.IsLOB() }

// Constraint describes a single table-level constraint.
type Constraint struct {
	Name              string
	Kind              ConstraintKind
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
	CheckExpr         string
}

// Index describes a single index definition. Primary key and unique
// constraint backing indexes are tracked as Constraints, not here;
// Index covers secondary, non-constraint indexes only.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is the full reflected description of one source relation.
type Table struct {
	Schema      string
	Name        string
	Kind        TableKind
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
	ViewScript  string // raw SELECT body, only set when Kind != KindTable
}

// QualifiedName returns "schema.table" for diagnostics and error messages.
func (t Table) QualifiedName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// PrimaryKeyColumns returns the ordered column list of the table's primary
// key, or nil if it has none.
func (t Table) PrimaryKeyColumns() []string {
	for _, c := range t.Constraints {
		if c.Kind == ConstraintPrimaryKey {
			return c.Columns
		}
	}
	return nil
}

// ForeignKeys returns the subset of Constraints that are foreign keys,
// the edges the dependency graph is built from.
func (t Table) ForeignKeys() []Constraint {
	var out []Constraint
	for _, c := range t.Constraints {
		if c.Kind == ConstraintForeignKey {
			out = append(out, c)
		}
	}
	return out
}

// Graph is the dependency graph over a set of reflected tables, with an
// edge from a table to every table it references via a foreign key.
type Graph struct {
	tables map[string]Table
	edges  map[string]map[string]bool // table -> set of tables it depends on
}

// NewGraph builds a dependency graph from a flat table list. Self
// references and foreign keys pointing at tables outside the set are
// ignored, the same way the original migrator only orders the tables it
// is actually moving.
func NewGraph(tables []Table) *Graph {
	g := &Graph{
		tables: make(map[string]Table, len(tables)),
		edges:  make(map[string]map[string]bool, len(tables)),
	}
	for _, t := range tables {
		key := t.QualifiedName()
		g.tables[key] = t
		g.edges[key] = make(map[string]bool)
	}
	for _, t := range tables {
		key := t.QualifiedName()
		for _, fk := range t.ForeignKeys() {
			dep := fmt.Sprintf("%s.%s", fk.ReferencedSchema, fk.ReferencedTable)
			if dep == key {
				continue
			}
			if _, ok := g.tables[dep]; !ok {
				continue
			}
			g.edges[key][dep] = true
		}
	}
	return g
}

// CycleError reports a dependency cycle discovered during topological
// sort. The orchestrator surfaces this back to the caller rather than
// picking an arbitrary order, since breaking the cycle silently could
// fail a foreign key create.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("schema: dependency cycle among %d table(s): %v", len(e.Remaining), e.Remaining)
}

// TopologicalOrder returns tables ordered so that every table appears
// after the tables it depends on via foreign key, using Kahn's algorithm
// for a deterministic, cycle-detecting sort (no reliance on cyclic ORM
// metadata walks).
func (g *Graph) TopologicalOrder() ([]Table, error) {
	inDegree := make(map[string]int, len(g.tables))
	for key := range g.tables {
		inDegree[key] = 0
	}
	// edges[key] = deps of key; an edge key->dep means dep must come first,
	// i.e. key has an incoming requirement from dep's completion.
	for key, deps := range g.edges {
		inDegree[key] = len(deps)
	}
	dependents := make(map[string][]string) // dep -> tables waiting on it
	for key, deps := range g.edges {
		for dep := range deps {
			dependents[dep] = append(dependents[dep], key)
		}
	}

	var ready []string
	for key, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, key)
		}
	}
	sort.Strings(ready)

	var order []Table
	for len(ready) > 0 {
		sort.Strings(ready)
		key := ready[0]
		ready = ready[1:]
		order = append(order, g.tables[key])

		waiting := dependents[key]
		sort.Strings(waiting)
		for _, w := range waiting {
			inDegree[w]--
			if inDegree[w] == 0 {
				ready = append(ready, w)
			}
		}
	}

	if len(order) != len(g.tables) {
		var remaining []string
		seen := make(map[string]bool, len(order))
		for _, t := range order {
			seen[t.QualifiedName()] = true
		}
		for key := range g.tables {
			if !seen[key] {
				remaining = append(remaining, key)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return order, nil
}
