// Package datamover moves row data between an already-reflected source
// table and its materialized target counterpart: plain columns in
// offset-paginated batches, LOB columns row-by-row in fixed-size chunks.
package datamover

import (
	"context"
	"fmt"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/util"
)

// Status summarizes how much of a table's data actually moved, the
// unified plain+LOB counters the control surface reports per table.
type Status int

const (
	StatusFull Status = iota
	StatusPartial
	StatusNone
)

func (s Status) String() string {
	switch s {
	case StatusFull:
		return "full"
	case StatusPartial:
		return "partial"
	default:
		return "none"
	}
}

// TableResult is the per-table record the orchestrator accumulates
// across both the plain and LOB passes, reported together rather than
// as two separate lists.
type TableResult struct {
	Table         string
	PlainStatus   Status
	RowsMoved     int64
	LOBColumns    int
	LOBStatus     Status
	LOBRowsMoved  int64
	LOBBytesMoved int64
	Err           *util.MigrationError
}

// Mover moves data for one migration, holding the opened source and
// target connections plus the sizing knobs for the duration of the data
// phase.
type Mover struct {
	SourceAdapter engine.Adapter
	TargetAdapter engine.Adapter
	SourceConn    engine.Conn
	TargetConn    engine.Conn
	BatchSize     int
	ChunkSize     int
	Logger        log.Logger
}

func orderColumns(t schema.Table) []string {
	if pk := t.PrimaryKeyColumns(); len(pk) > 0 {
		return pk
	}
	return nil
}

func plainColumns(t schema.Table) []schema.Column {
	var out []schema.Column
	for _, c := range t.Columns {
		if !c.IsLOB() {
			out = append(out, c)
		}
	}
	return out
}

func lobColumns(t schema.Table) []schema.Column {
	var out []schema.Column
	for _, c := range t.Columns {
		if c.IsLOB() {
			out = append(out, c)
		}
	}
	return out
}

// MovePlain copies every non-LOB column of t in BatchSize-row pages,
// using a deterministic ORDER BY (the primary key, falling back to
// whatever the adapter's paginated-select default is) so successive
// OFFSET pages of a table that is not being written to neither overlap
// nor skip rows. Concurrent writes to the source table can shift rows
// between pages.
func (m *Mover) MovePlain(ctx context.Context, t schema.Table) TableResult {
	cols := plainColumns(t)
	if len(cols) == 0 {
		return TableResult{Table: t.Name, PlainStatus: StatusNone}
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	order := orderColumns(t)

	var moved int64
	offset := 0
	for {
		query := m.SourceAdapter.BuildPaginatedSelect(t.Schema, t.Name, names, order, offset, m.BatchSize)
		if query == "" {
			return TableResult{Table: t.Name, PlainStatus: StatusNone, Err: util.WithEngine(string(m.SourceAdapter.Kind()), util.New(util.CodeOperationFailed, "paginated select unsupported for table %s", t.Name))}
		}
		rows, err := m.SourceConn.QueryContext(ctx, query)
		if err != nil {
			return TableResult{Table: t.Name, PlainStatus: partialOf(moved), RowsMoved: moved, Err: util.Wrap(util.CodeOperationFailed, err, "select page of %s", t.Name)}
		}

		batch, n, err := scanBatch(rows, len(names))
		rows.Close()
		if err != nil {
			return TableResult{Table: t.Name, PlainStatus: partialOf(moved), RowsMoved: moved, Err: util.Wrap(util.CodeOperationFailed, err, "scan page of %s", t.Name)}
		}
		if n == 0 {
			break
		}

		insert := m.TargetAdapter.BuildBulkInsert(t.Schema, t.Name, names, n)
		if _, err := m.TargetConn.ExecContext(ctx, insert, batch...); err != nil {
			return TableResult{Table: t.Name, PlainStatus: partialOf(moved), RowsMoved: moved, Err: util.Wrap(util.CodeOperationFailed, err, "insert page of %s", t.Name)}
		}
		moved += int64(n)
		m.Logger.DebugContext(ctx, "moved batch", "table", t.Name, "offset", offset, "rows", n)

		if n < m.BatchSize {
			break
		}
		offset += m.BatchSize
	}

	return TableResult{Table: t.Name, PlainStatus: StatusFull, RowsMoved: moved}
}

func partialOf(moved int64) Status {
	if moved > 0 {
		return StatusPartial
	}
	return StatusNone
}

func scanBatch(rows engine.Rows, width int) ([]any, int, error) {
	var flat []any
	n := 0
	for rows.Next() {
		dest := make([]any, width)
		ptrs := make([]any, width)
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, n, err
		}
		flat = append(flat, dest...)
		n++
	}
	return flat, n, rows.Err()
}

// MoveLOB streams every LOB column of t row by row: for each row it
// reads ChunkSize-byte chunks from the source until a short read signals
// EOF, and writes the assembled value back with one UPDATE per row per
// column. NULL source values are preserved by skipping the write
// entirely rather than writing an empty value.
//
// A per-row/per-column failure is isolated to that cell rather than
// aborting the table: its LOB count is simply left unchanged and every
// other row and column is still attempted, so one bad value yields a
// partial result instead of zeroing out the whole table.
func (m *Mover) MoveLOB(ctx context.Context, t schema.Table, pkValues [][]any) TableResult {
	cols := lobColumns(t)
	res := TableResult{Table: t.Name, LOBColumns: len(cols), LOBStatus: StatusNone}
	if len(cols) == 0 {
		return res
	}
	pk := t.PrimaryKeyColumns()
	if len(pk) == 0 {
		res.Err = util.New(util.CodeOperationFailed, "table %s has LOB columns but no primary key to address rows by", t.Name)
		return res
	}

	var succeeded, failed int
	var lastErr *util.MigrationError

	for _, col := range cols {
		for _, row := range pkValues {
			value, hasValue, n, err := m.streamColumn(ctx, t, pk, row, col.Name)
			if err != nil {
				failed++
				lastErr = util.Wrap(util.CodeOperationFailed, err, "stream %s.%s", t.Name, col.Name)
				m.Logger.WarnContext(ctx, "lob stream failed, skipping row", "table", t.Name, "column", col.Name, "err", err)
				continue
			}
			if !hasValue {
				continue
			}
			update := m.TargetAdapter.BuildLOBUpdate(t.Schema, t.Name, pk, col.Name)
			args := append([]any{value}, row...)
			if _, err := m.TargetConn.ExecContext(ctx, update, args...); err != nil {
				failed++
				lastErr = util.Wrap(util.CodeOperationFailed, err, "write %s.%s", t.Name, col.Name)
				m.Logger.WarnContext(ctx, "lob write failed, skipping row", "table", t.Name, "column", col.Name, "err", err)
				continue
			}
			succeeded++
			res.LOBRowsMoved++
			res.LOBBytesMoved += int64(n)
		}
	}

	switch {
	case failed == 0:
		res.LOBStatus = StatusFull
	case succeeded == 0:
		res.LOBStatus = StatusNone
	default:
		res.LOBStatus = StatusPartial
	}
	if failed > 0 {
		res.Err = util.Wrap(util.CodeOperationFailed, lastErr, "%d of %d LOB values failed to migrate for table %s", failed, failed+succeeded, t.Name)
	}
	return res
}

func (m *Mover) streamColumn(ctx context.Context, t schema.Table, pk []string, pkValues []any, column string) ([]byte, bool, int, error) {
	var assembled []byte
	buf := make([]byte, m.ChunkSize)
	offset := int64(0)
	for {
		n, hasValue, err := m.SourceAdapter.FetchLOBChunk(ctx, m.SourceConn, t.Schema, t.Name, pk, pkValues, column, offset, buf)
		if err != nil {
			return nil, false, 0, err
		}
		if offset == 0 && !hasValue {
			return nil, false, 0, nil
		}
		if n == 0 {
			break
		}
		assembled = append(assembled, buf[:n]...)
		offset += int64(n)
		if n < len(buf) {
			break
		}
	}
	return assembled, true, len(assembled), nil
}

// FetchPrimaryKeyValues pages through t's primary key columns so MoveLOB
// knows which rows to address without re-reading every plain column.
func FetchPrimaryKeyValues(ctx context.Context, adapter engine.Adapter, conn engine.Conn, t schema.Table, batchSize int) ([][]any, error) {
	pk := t.PrimaryKeyColumns()
	if len(pk) == 0 {
		return nil, fmt.Errorf("datamover: table %s has no primary key", t.Name)
	}
	var all [][]any
	offset := 0
	for {
		query := adapter.BuildPaginatedSelect(t.Schema, t.Name, pk, pk, offset, batchSize)
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return nil, err
		}
		batch, n, err := scanBatch(rows, len(pk))
		rows.Close()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			all = append(all, batch[i*len(pk):(i+1)*len(pk)])
		}
		if n < batchSize {
			break
		}
		offset += batchSize
	}
	return all, nil
}
