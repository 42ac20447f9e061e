package reflector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/reflector"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func TestValidateExcludeColumns_RejectsPrimaryKey(t *testing.T) {
	pk := map[string][]string{"orders": {"id"}}
	excl := map[string][]string{"orders": {"ID"}}

	err := reflector.ValidateExcludeColumns(pk, excl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders")
}

func TestValidateExcludeColumns_AllowsNonKeyColumn(t *testing.T) {
	pk := map[string][]string{"orders": {"id"}}
	excl := map[string][]string{"orders": {"notes"}}

	assert.NoError(t, reflector.ValidateExcludeColumns(pk, excl))
}

func TestValidateFilterSets_RejectsBothNonEmpty(t *testing.T) {
	err := reflector.ValidateFilterSets(reflector.Options{IncludeTables: []string{"orders"}, ExcludeTables: []string{"customers"}})
	require.Error(t, err)
}

func TestValidateFilterSets_AllowsEitherAlone(t *testing.T) {
	assert.NoError(t, reflector.ValidateFilterSets(reflector.Options{IncludeTables: []string{"orders"}}))
	assert.NoError(t, reflector.ValidateFilterSets(reflector.Options{ExcludeTables: []string{"orders"}}))
	assert.NoError(t, reflector.ValidateFilterSets(reflector.Options{}))
}

func rawTables(names ...string) []engine.RawTable {
	out := make([]engine.RawTable, len(names))
	for i, n := range names {
		out[i] = engine.RawTable{Name: n, Kind: schema.KindTable}
	}
	return out
}

func TestFilterAndOrder_RejectsUnknownIncludeName(t *testing.T) {
	raw := rawTables("orders", "customers")
	_, err := reflector.FilterAndOrder(nil, "public", raw, reflector.Options{IncludeTables: []string{"missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFilterAndOrder_RejectsUnknownExcludeName(t *testing.T) {
	raw := rawTables("orders", "customers")
	_, err := reflector.FilterAndOrder(nil, "public", raw, reflector.Options{ExcludeTables: []string{"missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

type passthroughAdapter struct{}

func (passthroughAdapter) Kind() engine.Kind { return engine.Postgres }
func (passthroughAdapter) BuildConnectionURL(engine.Config) (string, error) { return "", nil }
func (passthroughAdapter) Open(context.Context, engine.Config) (engine.Conn, error) { return nil, nil }
func (passthroughAdapter) ResolveSchemaName(context.Context, engine.Conn, string) (string, error) {
	return "", nil
}
func (passthroughAdapter) ListTables(context.Context, engine.Conn, string) ([]engine.RawTable, error) {
	return nil, nil
}
func (passthroughAdapter) DisableSessionRestrictions(context.Context, engine.Conn) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (passthroughAdapter) DisableTableRestrictions(context.Context, engine.Conn, string, string) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (passthroughAdapter) BuildPaginatedSelect(string, string, []string, []string, int, int) string {
	return ""
}
func (passthroughAdapter) BuildBulkInsert(string, string, []string, int) string { return "" }
func (passthroughAdapter) BuildLOBUpdate(string, string, []string, string) string { return "" }
func (passthroughAdapter) FetchLOBChunk(context.Context, engine.Conn, string, string, []string, []any, string, int64, []byte) (int, bool, error) {
	return 0, false, nil
}
func (passthroughAdapter) ReadViewScript(context.Context, engine.Conn, string, string, bool) (string, error) {
	return "", nil
}
func (passthroughAdapter) MapNativeType(sourceType string) (typemap.ColumnType, error) {
	return typemap.ColumnType{Kind: typemap.KindInt}, nil
}
func (passthroughAdapter) RenderColumnType(typemap.ColumnType) (string, error) { return "", nil }
func (passthroughAdapter) RenderCreateTable(string, schema.Table, typemap.Overrides) (string, error) {
	return "", nil
}
func (passthroughAdapter) RenderCreateIndex(string, schema.Table, schema.Index) string { return "" }
func (passthroughAdapter) RenderCreateView(string, schema.Table, string, string) string { return "" }

func TestFilterAndOrder_SkipFKConstraintTableBreaksCycle(t *testing.T) {
	raw := []engine.RawTable{
		{Name: "a", Kind: schema.KindTable, Constraints: []engine.RawConstraint{
			{Name: "fk_a_b", Kind: schema.ConstraintForeignKey, ReferencedSchema: "public", ReferencedTable: "b"},
		}},
		{Name: "b", Kind: schema.KindTable, Constraints: []engine.RawConstraint{
			{Name: "fk_b_a", Kind: schema.ConstraintForeignKey, ReferencedSchema: "public", ReferencedTable: "a"},
		}},
	}

	_, err := reflector.FilterAndOrder(passthroughAdapter{}, "public", raw, reflector.Options{})
	require.Error(t, err, "cyclic FK without a skip-set must fail to order")

	kept, err := reflector.FilterAndOrder(passthroughAdapter{}, "public", raw, reflector.Options{
		SkipFKConstraintTables: []string{"a", "b"},
	})
	require.NoError(t, err)
	require.Len(t, kept, 2)
	for _, tbl := range kept {
		assert.Empty(t, tbl.Constraints)
	}
}

func TestPrimaryKeysByTable(t *testing.T) {
	raw := []engine.RawTable{
		{Name: "orders", Constraints: []engine.RawConstraint{
			{Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
			{Kind: schema.ConstraintUnique, Columns: []string{"external_ref"}},
		}},
	}
	got := reflector.PrimaryKeysByTable(raw)
	assert.Equal(t, []string{"id"}, got["orders"])
}
