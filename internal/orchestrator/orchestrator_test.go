package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/orchestrator"
	"github.com/sqlbridge/migrator/internal/reflector"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

const (
	fakeSourceKind engine.Kind = "orchestrator-test-source"
	fakeTargetKind engine.Kind = "orchestrator-test-target"
)

func init() {
	engine.Register(&fakeAdapter{kind: fakeSourceKind})
	engine.Register(&fakeAdapter{kind: fakeTargetKind})
}

// fakeAdapter implements engine.Adapter with enough behavior to drive the
// full orchestrator state machine against one fixed table, without a live
// database: one table "customers" with an int primary key and a text
// column, no LOB columns, no indexes.
type fakeAdapter struct {
	kind engine.Kind
}

func (f *fakeAdapter) Kind() engine.Kind                                      { return f.kind }
func (f *fakeAdapter) BuildConnectionURL(engine.Config) (string, error)       { return "fake://", nil }
func (f *fakeAdapter) Open(context.Context, engine.Config) (engine.Conn, error) {
	return &fakeConn{}, nil
}
func (f *fakeAdapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	return name, nil
}
func (f *fakeAdapter) ListTables(ctx context.Context, conn engine.Conn, schemaName string) ([]engine.RawTable, error) {
	return []engine.RawTable{
		{
			Name: "customers",
			Kind: schema.KindTable,
			Columns: []engine.RawColumn{
				{Name: "id", SourceType: "int", OrdinalPos: 1},
				{Name: "name", SourceType: "varchar", OrdinalPos: 2},
			},
			Constraints: []engine.RawConstraint{
				{Name: "pk_customers", Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
			},
		},
	}, nil
}
func (f *fakeAdapter) DisableSessionRestrictions(context.Context, engine.Conn) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (f *fakeAdapter) DisableTableRestrictions(context.Context, engine.Conn, string, string) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (f *fakeAdapter) BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string {
	return "SELECT"
}
func (f *fakeAdapter) BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string {
	return "INSERT"
}
func (f *fakeAdapter) BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string {
	return "UPDATE"
}
func (f *fakeAdapter) FetchLOBChunk(context.Context, engine.Conn, string, string, []string, []any, string, int64, []byte) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeAdapter) ReadViewScript(context.Context, engine.Conn, string, string, bool) (string, error) {
	return "", nil
}
func (f *fakeAdapter) MapNativeType(sourceType string) (typemap.ColumnType, error) {
	if sourceType == "int" {
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 32, Signed: true}, nil
	}
	return typemap.ColumnType{Kind: typemap.KindVarChar, Length: 255}, nil
}
func (f *fakeAdapter) RenderColumnType(typemap.ColumnType) (string, error) { return "TEXT", nil }
func (f *fakeAdapter) RenderCreateTable(targetSchema string, t schema.Table, overrides typemap.Overrides) (string, error) {
	return "CREATE TABLE " + targetSchema + "." + t.Name, nil
}
func (f *fakeAdapter) RenderCreateIndex(string, schema.Table, schema.Index) string { return "CREATE INDEX" }
func (f *fakeAdapter) RenderCreateView(string, schema.Table, string, string) string { return "CREATE VIEW" }

// fakeConn hands back one page of two customer rows on the first
// QueryContext call, and an empty page on every call after.
type fakeConn struct {
	queries int
	execs   int
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (engine.Rows, error) {
	c.queries++
	if c.queries == 1 {
		return &fakeRows{rows: [][]any{{int64(1), "alice"}, {int64(2), "bob"}}}, nil
	}
	return &fakeRows{}, nil
}
func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	c.execs++
	return 1, nil
}
func (c *fakeConn) Close() error { return nil }

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool { return r.pos < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error {
	src := r.rows[r.pos]
	r.pos++
	for i, d := range dest {
		*(d.(*any)) = src[i]
	}
	return nil
}
func (r *fakeRows) Columns() ([]string, error) { return nil, nil }
func (r *fakeRows) Err() error                 { return nil }
func (r *fakeRows) Close() error               { return nil }

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	reg := config.NewRegistry()
	params := config.EngineParams{Host: "h", Database: "d", User: "u", Password: "p"}
	require.NoError(t, reg.SetEngine(fakeSourceKind, params))
	require.NoError(t, reg.SetEngine(fakeTargetKind, params))
	return reg
}

func testLogger() log.Logger {
	l, _ := log.NewLogger("json", log.Debug, discardWriter{}, discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRun_VerifyOnlyStopsAfterReflecting(t *testing.T) {
	t.Parallel()
	orch := orchestrator.New(testRegistry(t), testLogger())

	result, err := orch.Run(context.Background(), orchestrator.Request{
		SourceKind: fakeSourceKind, TargetKind: fakeTargetKind,
		SourceSchema: "src", TargetSchema: "tgt",
		VerifyOnly: true,
	})

	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateDone, result.FinalState)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "customers", result.Tables[0].Name)
	assert.Empty(t, result.Materialized)
	assert.Empty(t, result.DataResults)
}

func TestRun_FullMigrationMovesPlainData(t *testing.T) {
	t.Parallel()
	orch := orchestrator.New(testRegistry(t), testLogger())

	result, err := orch.Run(context.Background(), orchestrator.Request{
		SourceKind: fakeSourceKind, TargetKind: fakeTargetKind,
		SourceSchema: "src", TargetSchema: "tgt",
		Options: reflector.Options{},
	})

	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateDone, result.FinalState)
	assert.False(t, result.Errors.HasErrors())
	require.Len(t, result.Materialized, 1)
	assert.True(t, result.Materialized[0].Created)
	require.Len(t, result.DataResults, 1)
	assert.EqualValues(t, 2, result.DataResults[0].RowsMoved)
}

func TestRun_UnknownSourceEngineFailsBeforeOpeningAnyConnection(t *testing.T) {
	t.Parallel()
	orch := orchestrator.New(testRegistry(t), testLogger())

	_, err := orch.Run(context.Background(), orchestrator.Request{
		SourceKind: engine.Kind("does-not-exist"), TargetKind: fakeTargetKind,
		SourceSchema: "src", TargetSchema: "tgt",
	})

	require.Error(t, err)
}
