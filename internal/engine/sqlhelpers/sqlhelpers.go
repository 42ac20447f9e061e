// Package sqlhelpers adapts a database/sql handle into the engine.Conn
// capability set shared by the three database/sql-based adapters (Oracle,
// SQL Server, MySQL); Postgres uses pgx natively instead. It also carries
// the generic row-to-map scanning jmoiron/sqlx gives these adapters for
// catalog queries where the result shape is not known at compile time.
package sqlhelpers

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/sqlbridge/migrator/internal/engine"
)

// DBConn wraps a *sqlx.DB to satisfy engine.Conn.
type DBConn struct {
	DB *sqlx.DB
}

// Open wraps an already-opened *sql.DB (driverName is needed again because
// database/sql forgets it once open) as a sqlx.DB-backed engine.Conn.
func Open(driverName string, db *sql.DB) *DBConn {
	return &DBConn{DB: sqlx.NewDb(db, driverName)}
}

func (c *DBConn) QueryContext(ctx context.Context, query string, args ...any) (engine.Rows, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows}, nil
}

func (c *DBConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DBConn) Close() error { return c.DB.Close() }

// QueryMapsContext runs query and returns each row as a column-name-keyed
// map, the pattern the catalog-reflection queries use since the column
// set varies per engine and per call.
func (c *DBConn) QueryMapsContext(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowsAdapter struct {
	rows *sql.Rows
}

func (r *rowsAdapter) Next() bool                    { return r.rows.Next() }
func (r *rowsAdapter) Scan(dest ...any) error         { return r.rows.Scan(dest...) }
func (r *rowsAdapter) Columns() ([]string, error)     { return r.rows.Columns() }
func (r *rowsAdapter) Err() error                     { return r.rows.Err() }
func (r *rowsAdapter) Close() error                   { return r.rows.Close() }

// FetchLOBChunk reads a single-column, single-row result into buf at
// offset using database/sql's []byte scanning; shared by the Oracle and
// SQL Server adapters since both expose LOB columns as
// byte/character streams addressable by a SUBSTR/SUBSTRING-shaped query
// that the caller has already built.
func FetchLOBChunk(ctx context.Context, conn engine.Conn, query string, args []any, buf []byte) (n int, hasValue bool, err error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var chunk sql.NullString
	if err := rows.Scan(&chunk); err != nil {
		return 0, false, err
	}
	if !chunk.Valid {
		return 0, false, nil
	}
	n = copy(buf, chunk.String)
	return n, true, nil
}
