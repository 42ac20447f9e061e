// Package reflector turns a live catalog connection into the
// engine-agnostic schema.Table model: resolving the schema name,
// listing and filtering tables, mapping native types, and producing a
// dependency-ordered table list.
package reflector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/util"
)

// Options controls which tables, columns, indexes, and constraints the
// reflector keeps. Every slice is matched case-insensitively against the
// catalog's canonical spelling.
type Options struct {
	IncludeTables             []string
	ExcludeTables             []string
	ExcludeColumns            map[string][]string // table name -> column names
	IncludeViews              bool
	IncludeMaterializedViews  bool
	StripIndexes              bool
	SkipConstraints           map[string]bool // constraint name -> skip
	SkipFKConstraintTables    []string        // tables whose foreign-key constraints are dropped entirely
	SkipCheckConstraintTables []string        // tables whose check constraints are dropped entirely
}

// ValidateFilterSets rejects a request naming both an include-set and an
// exclude-set of tables: the two are mutually exclusive filtering modes,
// never a combinable pair. It needs no catalog access, so callers run it
// before opening any connection.
func ValidateFilterSets(opts Options) error {
	if len(opts.IncludeTables) > 0 && len(opts.ExcludeTables) > 0 {
		return util.New(util.CodeInvalidValue, "include-tables and exclude-tables are mutually exclusive")
	}
	return nil
}

// validateNamesExist reports the first name in names that doesn't match a
// raw table's catalog spelling, so an include/exclude list naming a table
// that doesn't exist is refused rather than silently producing a
// partial result.
func validateNamesExist(names []string, raw []engine.RawTable) error {
	for _, name := range names {
		found := false
		for _, rt := range raw {
			if strings.EqualFold(rt.Name, name) {
				found = true
				break
			}
		}
		if !found {
			return util.New(util.CodeNotFound, "table %q not found", name)
		}
	}
	return nil
}

// ValidateExcludeColumns rejects an exclude-columns request that names a
// primary key column, once the source tables are listed and before the
// target connection is opened: dropping a PK
// column during reflection would silently break every foreign key that
// targets it, so the request is rejected up front rather than allowed to
// fail deep into materialization.
func ValidateExcludeColumns(pkColumnsByTable map[string][]string, excludeColumns map[string][]string) error {
	for table, excluded := range excludeColumns {
		pk := pkColumnsByTable[table]
		for _, col := range excluded {
			for _, pkCol := range pk {
				if strings.EqualFold(col, pkCol) {
					return util.New(util.CodeInvalidValue, "exclude-columns for table %q names primary key column %q", table, col)
				}
			}
		}
	}
	return nil
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// Reflect resolves schemaName against the catalog, lists its tables and
// views, applies opts, and returns the filtered set with generic types
// resolved and foreign-key dependency order computed.
func Reflect(ctx context.Context, adapter engine.Adapter, conn engine.Conn, schemaName string, opts Options) (resolvedSchema string, ordered []schema.Table, err error) {
	resolvedSchema, err = adapter.ResolveSchemaName(ctx, conn, schemaName)
	if err != nil {
		return "", nil, util.Wrap(util.CodeNotFound, err, "resolve schema %q", schemaName)
	}

	raw, err := adapter.ListTables(ctx, conn, resolvedSchema)
	if err != nil {
		return "", nil, util.Wrap(util.CodeOperationFailed, err, "list tables in %q", resolvedSchema)
	}

	ordered, err = FilterAndOrder(adapter, resolvedSchema, raw, opts)
	return resolvedSchema, ordered, err
}

// FilterAndOrder applies opts to an already-fetched raw table list and
// returns the dependency-ordered, type-mapped schema.Table set. Split out
// of Reflect so callers that must validate exclude-columns against the
// live primary keys (see ValidateExcludeColumns) can call ListTables
// once, validate, and only then filter.
func FilterAndOrder(adapter engine.Adapter, resolvedSchema string, raw []engine.RawTable, opts Options) ([]schema.Table, error) {
	if len(opts.IncludeTables) > 0 {
		if err := validateNamesExist(opts.IncludeTables, raw); err != nil {
			return nil, err
		}
	} else if err := validateNamesExist(opts.ExcludeTables, raw); err != nil {
		return nil, err
	}

	var kept []schema.Table
	for _, rt := range raw {
		if len(opts.IncludeTables) > 0 && !contains(opts.IncludeTables, rt.Name) {
			continue
		}
		if contains(opts.ExcludeTables, rt.Name) {
			continue
		}
		if rt.Kind == schema.KindView && !opts.IncludeViews {
			continue
		}
		if rt.Kind == schema.KindMaterializedView && !opts.IncludeMaterializedViews {
			continue
		}
		t, err := buildTable(adapter, resolvedSchema, rt, opts)
		if err != nil {
			return nil, err
		}
		kept = append(kept, t)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })

	tableOnly := make([]schema.Table, 0, len(kept))
	for _, t := range kept {
		if t.Kind == schema.KindTable {
			tableOnly = append(tableOnly, t)
		}
	}
	graph := schema.NewGraph(tableOnly)
	orderedTables, err := graph.TopologicalOrder()
	if err != nil {
		return nil, util.Wrap(util.CodeOperationFailed, err, "order tables in %q", resolvedSchema)
	}

	var views []schema.Table
	for _, t := range kept {
		if t.Kind != schema.KindTable {
			views = append(views, t)
		}
	}
	return append(orderedTables, views...), nil
}

func buildTable(adapter engine.Adapter, resolvedSchema string, rt engine.RawTable, opts Options) (schema.Table, error) {
	excluded := opts.ExcludeColumns[rt.Name]
	t := schema.Table{Schema: resolvedSchema, Name: rt.Name, Kind: rt.Kind, ViewScript: rt.ViewScript}

	for _, rc := range rt.Columns {
		if contains(excluded, rc.Name) {
			continue
		}
		generic, err := adapter.MapNativeType(rc.SourceType)
		if err != nil {
			return schema.Table{}, util.Wrap(util.CodeTypeMismatch, err, "map type of %s.%s", rt.Name, rc.Name)
		}
		t.Columns = append(t.Columns, schema.Column{
			Name: rc.Name, SourceType: rc.SourceType, Generic: generic,
			Nullable: rc.Nullable, Default: rc.Default, Identity: rc.Identity, OrdinalPos: rc.OrdinalPos,
		})
	}

	for _, rc := range rt.Constraints {
		if opts.SkipConstraints[rc.Name] {
			continue
		}
		if rc.Kind == schema.ConstraintForeignKey && contains(opts.SkipFKConstraintTables, rt.Name) {
			continue
		}
		if rc.Kind == schema.ConstraintCheck && contains(opts.SkipCheckConstraintTables, rt.Name) {
			continue
		}
		if columnsExcluded(rc.Columns, excluded) {
			continue
		}
		t.Constraints = append(t.Constraints, schema.Constraint{
			Name: rc.Name, Kind: rc.Kind, Columns: rc.Columns,
			ReferencedSchema: rc.ReferencedSchema, ReferencedTable: rc.ReferencedTable,
			ReferencedColumns: rc.ReferencedColumns, CheckExpr: rc.CheckExpr,
		})
	}

	if !opts.StripIndexes {
		for _, ri := range rt.Indexes {
			if columnsExcluded(ri.Columns, excluded) {
				continue
			}
			t.Indexes = append(t.Indexes, schema.Index{Name: ri.Name, Columns: ri.Columns, Unique: ri.Unique})
		}
	}

	return t, nil
}

func columnsExcluded(columns, excluded []string) bool {
	for _, c := range columns {
		if contains(excluded, c) {
			return true
		}
	}
	return false
}

// PrimaryKeysByTable extracts a table-name -> PK-column-list map from a
// raw table list, the shape ValidateExcludeColumns needs before any
// schema.Table has been built.
func PrimaryKeysByTable(raw []engine.RawTable) map[string][]string {
	out := make(map[string][]string, len(raw))
	for _, t := range raw {
		for _, c := range t.Constraints {
			if c.Kind == schema.ConstraintPrimaryKey {
				out[t.Name] = c.Columns
			}
		}
	}
	return out
}

// DescribeFilters renders a one-line human summary of the applied
// filters for logging.
func DescribeFilters(opts Options) string {
	return fmt.Sprintf("include=%d exclude=%d views=%t matviews=%t stripIndexes=%t skipFkTables=%d skipCheckTables=%d",
		len(opts.IncludeTables), len(opts.ExcludeTables), opts.IncludeViews, opts.IncludeMaterializedViews, opts.StripIndexes,
		len(opts.SkipFKConstraintTables), len(opts.SkipCheckConstraintTables))
}
