package materializer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/engine/postgres"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/materializer"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

// fakeConn records every statement it is asked to execute, so tests can
// assert on materialization order without a live database.
type fakeConn struct {
	executed []string
	failOn   string
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (engine.Rows, error) {
	return &emptyRows{}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	c.executed = append(c.executed, query)
	if c.failOn != "" && contains(query, c.failOn) {
		return 0, assertErr
	}
	return 0, nil
}

func (c *fakeConn) Close() error { return nil }

type emptyRows struct{}

func (r *emptyRows) Next() bool                { return false }
func (r *emptyRows) Scan(dest ...any) error    { return nil }
func (r *emptyRows) Columns() ([]string, error) { return nil, nil }
func (r *emptyRows) Err() error                { return nil }
func (r *emptyRows) Close() error              { return nil }

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

var assertErr = &fakeErr{"boom"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func discardLogger() log.Logger {
	logger, _ := log.NewLogger("standard", log.Error, discardWriter{}, discardWriter{})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// resolvingConn wraps fakeConn but lets a test control whether
// ResolveSchemaName reports the target schema as already present.
type resolvingAdapter struct {
	*postgres.Adapter
	exists bool
}

func (a *resolvingAdapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	if a.exists {
		return name, nil
	}
	return "", assertErr
}

func TestEnsureTargetSchema_DropsCandidateTablesInReverseOrderWhenSchemaExists(t *testing.T) {
	adapter := &resolvingAdapter{Adapter: &postgres.Adapter{}, exists: true}
	conn := &fakeConn{}
	tables := []schema.Table{
		{Schema: "public", Name: "orders", Kind: schema.KindTable},
		{Schema: "public", Name: "customers", Kind: schema.KindTable},
	}

	err := materializer.EnsureTargetSchema(context.Background(), adapter, conn, "public", "app_user", tables)

	require.NoError(t, err)
	require.Len(t, conn.executed, 2)
	assert.Contains(t, conn.executed[0], "DROP TABLE IF EXISTS public.customers")
	assert.Contains(t, conn.executed[1], "DROP TABLE IF EXISTS public.orders")
}

func TestEnsureTargetSchema_CreatesWithAuthorizationWhenAbsent(t *testing.T) {
	adapter := &resolvingAdapter{Adapter: &postgres.Adapter{}, exists: false}
	conn := &fakeConn{}

	err := materializer.EnsureTargetSchema(context.Background(), adapter, conn, "public", "app_user", nil)

	require.Error(t, err, "the adapter keeps reporting the schema absent even after create, in this fake")
	require.Len(t, conn.executed, 1)
	assert.Equal(t, "CREATE SCHEMA public AUTHORIZATION app_user", conn.executed[0])
}

// onCreateResolvingAdapter reports the schema absent once (driving the
// create branch) then present on every later probe, simulating a CREATE
// SCHEMA that actually took effect.
type onCreateResolvingAdapter struct {
	*postgres.Adapter
	calls int
}

func (a *onCreateResolvingAdapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	a.calls++
	if a.calls == 1 {
		return "", assertErr
	}
	return name, nil
}

func TestEnsureTargetSchema_SucceedsWhenCreateThenReprobeFindsSchema(t *testing.T) {
	adapter := &onCreateResolvingAdapter{Adapter: &postgres.Adapter{}}
	conn := &fakeConn{}

	err := materializer.EnsureTargetSchema(context.Background(), adapter, conn, "public", "app_user", nil)

	require.NoError(t, err)
	require.Len(t, conn.executed, 1)
	assert.Equal(t, "CREATE SCHEMA public AUTHORIZATION app_user", conn.executed[0])
}

func TestMaterialize_TablesBeforeViews(t *testing.T) {
	adapter := &postgres.Adapter{}
	conn := &fakeConn{}
	tables := []schema.Table{
		{Schema: "public", Name: "customers", Kind: schema.KindTable, Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt, Width: 32}, Nullable: false},
		}},
		{Schema: "src", Name: "active_customers", Kind: schema.KindView, ViewScript: "SELECT * FROM src.customers"},
	}

	results := materializer.Materialize(context.Background(), discardLogger(), adapter, conn, "public", tables, materializer.Options{})

	require.Len(t, results, 2)
	assert.True(t, results[0].Created)
	assert.Equal(t, "customers", results[0].Table)
	assert.True(t, results[1].Created)
	assert.Equal(t, "active_customers", results[1].Table)

	require.Len(t, conn.executed, 2)
	assert.Contains(t, conn.executed[0], "CREATE TABLE public.customers")
	assert.Contains(t, conn.executed[1], "CREATE VIEW public.active_customers")
	assert.Contains(t, conn.executed[1], "public.customers")
}

func TestMaterialize_RecordsFailureButContinues(t *testing.T) {
	adapter := &postgres.Adapter{}
	conn := &fakeConn{failOn: "orders"}
	tables := []schema.Table{
		{Schema: "public", Name: "orders", Kind: schema.KindTable, Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt}},
		}},
		{Schema: "public", Name: "customers", Kind: schema.KindTable, Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt}},
		}},
	}

	results := materializer.Materialize(context.Background(), discardLogger(), adapter, conn, "public", tables, materializer.Options{})

	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Err)
	assert.Nil(t, results[1].Err)
	assert.True(t, results[1].Created)
}
