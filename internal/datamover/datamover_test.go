package datamover

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

// fakeRows plays back a fixed set of rows, one page at a time.
type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool { return r.pos < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error {
	src := r.rows[r.pos]
	r.pos++
	for i, d := range dest {
		p := d.(*any)
		*p = src[i]
	}
	return nil
}
func (r *fakeRows) Columns() ([]string, error) { return nil, nil }
func (r *fakeRows) Err() error                 { return nil }
func (r *fakeRows) Close() error               { return nil }

// fakeAdapter is a minimal engine.Adapter stand-in that serves one page of
// rows per table and records the insert statements it receives.
type fakeAdapter struct {
	kind       engine.Kind
	pages      [][][]any // successive QueryContext calls return these pages in order
	callIdx    int
	lobChunks  map[string][][]byte // column name -> chunks to hand back in sequence
	lobCallIdx map[string]int
	noSelect   bool
}

func (f *fakeAdapter) Kind() engine.Kind { return f.kind }
func (f *fakeAdapter) BuildConnectionURL(engine.Config) (string, error) { return "", nil }
func (f *fakeAdapter) Open(context.Context, engine.Config) (engine.Conn, error) { return nil, nil }
func (f *fakeAdapter) ResolveSchemaName(context.Context, engine.Conn, string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) ListTables(context.Context, engine.Conn, string) ([]engine.RawTable, error) {
	return nil, nil
}
func (f *fakeAdapter) DisableSessionRestrictions(context.Context, engine.Conn) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (f *fakeAdapter) DisableTableRestrictions(context.Context, engine.Conn, string, string) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}
func (f *fakeAdapter) BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string {
	if f.noSelect {
		return ""
	}
	return "SELECT"
}
func (f *fakeAdapter) BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string {
	return "INSERT"
}
func (f *fakeAdapter) BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string {
	return "UPDATE"
}
func (f *fakeAdapter) FetchLOBChunk(ctx context.Context, conn engine.Conn, schemaName, table string, pkColumns []string, pkValues []any, column string, offset int64, buf []byte) (int, bool, error) {
	chunks := f.lobChunks[column]
	idx := f.lobCallIdx[column]
	if idx >= len(chunks) {
		return 0, false, nil
	}
	f.lobCallIdx[column]++
	c := chunks[idx]
	if c == nil {
		return 0, false, errBoom
	}
	n := copy(buf, c)
	return n, true, nil
}

var errBoom = fmt.Errorf("boom")
func (f *fakeAdapter) ReadViewScript(context.Context, engine.Conn, string, string, bool) (string, error) {
	return "", nil
}
func (f *fakeAdapter) MapNativeType(string) (typemap.ColumnType, error) { return typemap.ColumnType{}, nil }
func (f *fakeAdapter) RenderColumnType(typemap.ColumnType) (string, error) { return "", nil }
func (f *fakeAdapter) RenderCreateTable(string, schema.Table, typemap.Overrides) (string, error) {
	return "", nil
}
func (f *fakeAdapter) RenderCreateIndex(string, schema.Table, schema.Index) string { return "" }
func (f *fakeAdapter) RenderCreateView(string, schema.Table, string, string) string { return "" }

// fakeConn hands back successive pages from an adapter-held list on each
// QueryContext call, and records every ExecContext it receives.
type fakeConn struct {
	pages   [][][]any
	callIdx int
	execs   []struct {
		query string
		args  []any
	}
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args ...any) (engine.Rows, error) {
	if c.callIdx >= len(c.pages) {
		return &fakeRows{}, nil
	}
	page := c.pages[c.callIdx]
	c.callIdx++
	return &fakeRows{rows: page}, nil
}
func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	c.execs = append(c.execs, struct {
		query string
		args  []any
	}{query, args})
	return 1, nil
}
func (c *fakeConn) Close() error { return nil }

func discardLogger() log.Logger {
	l, _ := log.NewLogger("json", log.Debug, discardWriter{}, discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func plainTable() schema.Table {
	return schema.Table{
		Schema: "src", Name: "customers", Kind: schema.KindTable,
		Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt}},
			{Name: "name", Generic: typemap.ColumnType{Kind: typemap.KindVarChar}},
		},
		Constraints: []schema.Constraint{
			{Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	}
}

func TestMovePlain_StopsOnShortPage(t *testing.T) {
	t.Parallel()
	src := &fakeConn{pages: [][][]any{
		{{int64(1), "alice"}, {int64(2), "bob"}},
	}}
	tgt := &fakeConn{}
	adapter := &fakeAdapter{kind: engine.Postgres}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: src, TargetConn: tgt, BatchSize: 10, ChunkSize: 1024, Logger: discardLogger()}

	res := m.MovePlain(context.Background(), plainTable())

	assert.Equal(t, StatusFull, res.PlainStatus)
	assert.EqualValues(t, 2, res.RowsMoved)
	require.Len(t, tgt.execs, 1)
}

func TestMovePlain_ReportsUnsupportedSelect(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{kind: engine.MySQL, noSelect: true}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: &fakeConn{}, TargetConn: &fakeConn{}, BatchSize: 10, ChunkSize: 1024, Logger: discardLogger()}

	res := m.MovePlain(context.Background(), plainTable())

	assert.Equal(t, StatusNone, res.PlainStatus)
	require.Error(t, res.Err)
}

func TestMovePlain_NoPlainColumnsIsNoop(t *testing.T) {
	t.Parallel()
	tbl := schema.Table{Name: "lobs_only", Columns: []schema.Column{
		{Name: "blob_col", Generic: typemap.ColumnType{Kind: typemap.KindBlob}},
	}}
	adapter := &fakeAdapter{kind: engine.Postgres}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: &fakeConn{}, TargetConn: &fakeConn{}, BatchSize: 10, Logger: discardLogger()}

	res := m.MovePlain(context.Background(), tbl)

	assert.Equal(t, StatusNone, res.PlainStatus)
	assert.NoError(t, res.Err)
}

func TestMoveLOB_AssemblesChunksAndSkipsNull(t *testing.T) {
	t.Parallel()
	tbl := schema.Table{
		Schema: "src", Name: "docs",
		Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt}},
			{Name: "body", Generic: typemap.ColumnType{Kind: typemap.KindClob}},
		},
		Constraints: []schema.Constraint{{Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}}},
	}
	adapter := &fakeAdapter{
		kind: engine.Postgres,
		lobChunks: map[string][][]byte{
			"body": {[]byte("hello "), []byte("world")},
		},
		lobCallIdx: map[string]int{},
	}
	tgt := &fakeConn{}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: &fakeConn{}, TargetConn: tgt, ChunkSize: 6, Logger: discardLogger()}

	res := m.MoveLOB(context.Background(), tbl, [][]any{{int64(1)}, {int64(2)}})

	assert.Equal(t, 1, res.LOBColumns)
	assert.NoError(t, res.Err)
	assert.Equal(t, StatusFull, res.LOBStatus)
	// Row 1 streams two non-empty chunks ("hello " then "world"), row 2's
	// FetchLOBChunk call reports no value on the first read and is skipped.
	assert.EqualValues(t, 1, res.LOBRowsMoved)
	assert.EqualValues(t, 11, res.LOBBytesMoved)
	require.Len(t, tgt.execs, 1)
}

func TestMoveLOB_IsolatesPerRowFailureAsPartial(t *testing.T) {
	t.Parallel()
	tbl := schema.Table{
		Schema: "src", Name: "docs",
		Columns: []schema.Column{
			{Name: "id", Generic: typemap.ColumnType{Kind: typemap.KindInt}},
			{Name: "body", Generic: typemap.ColumnType{Kind: typemap.KindClob}},
		},
		Constraints: []schema.Constraint{{Kind: schema.ConstraintPrimaryKey, Columns: []string{"id"}}},
	}
	adapter := &fakeAdapter{
		kind: engine.Postgres,
		lobChunks: map[string][][]byte{
			// Row 1 fails to stream; row 2 and row 3 succeed.
			"body": {nil, []byte("ok-two"), []byte("ok-three")},
		},
		lobCallIdx: map[string]int{},
	}
	tgt := &fakeConn{}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: &fakeConn{}, TargetConn: tgt, ChunkSize: 64, Logger: discardLogger()}

	res := m.MoveLOB(context.Background(), tbl, [][]any{{int64(1)}, {int64(2)}, {int64(3)}})

	assert.Equal(t, StatusPartial, res.LOBStatus)
	require.Error(t, res.Err)
	assert.EqualValues(t, 2, res.LOBRowsMoved)
	require.Len(t, tgt.execs, 2)
}

func TestMoveLOB_RejectsTableWithoutPrimaryKey(t *testing.T) {
	t.Parallel()
	tbl := schema.Table{Name: "nopk", Columns: []schema.Column{
		{Name: "body", Generic: typemap.ColumnType{Kind: typemap.KindClob}},
	}}
	adapter := &fakeAdapter{kind: engine.Postgres, lobCallIdx: map[string]int{}}
	m := &Mover{SourceAdapter: adapter, TargetAdapter: adapter, SourceConn: &fakeConn{}, TargetConn: &fakeConn{}, ChunkSize: 8, Logger: discardLogger()}

	res := m.MoveLOB(context.Background(), tbl, nil)

	require.Error(t, res.Err)
}
