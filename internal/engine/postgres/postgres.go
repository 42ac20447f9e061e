// Package postgres adapts the migration engine's capability set to
// PostgreSQL via the native pgx driver, the way the teacher toolbox's
// Postgres source package uses pgxpool directly instead of database/sql.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func init() {
	engine.Register(&Adapter{})
}

type Adapter struct{}

func (a *Adapter) Kind() engine.Kind { return engine.Postgres }

func (a *Adapter) BuildConnectionURL(cfg engine.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("postgres: host and database are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=prefer",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database), nil
}

func (a *Adapter) Open(ctx context.Context, cfg engine.Config) (engine.Conn, error) {
	url, err := a.BuildConnectionURL(cfg)
	if err != nil {
		return nil, err
	}
	ctx, span := engine.InitConnectionSpan(ctx, engine.Postgres, cfg.Host)
	defer func() { engine.EndConnectionSpan(span, err) }()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &poolConn{pool: pool}, nil
}

type poolConn struct {
	pool *pgxpool.Pool
}

func (c *poolConn) QueryContext(ctx context.Context, query string, args ...any) (engine.Rows, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (c *poolConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *poolConn) Close() error {
	c.pool.Close()
	return nil
}

type pgxRows struct {
	rows pgx.Rows
	err  error
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}
func (r *pgxRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}
func (r *pgxRows) Err() error { return r.rows.Err() }
func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}

func (a *Adapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT schema_name FROM information_schema.schemata WHERE lower(schema_name) = lower($1)`, name)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("postgres: schema %q not found", name)
	}
	var resolved string
	if err := rows.Scan(&resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

const columnsQuery = `
SELECT c.relname, a.attname, format_type(a.atttypid, a.atttypmod), NOT a.attnotnull,
       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''), a.attnum,
       a.attidentity <> '' AS is_identity,
       c.relkind
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
WHERE n.nspname = $1 AND a.attnum > 0 AND NOT a.attisdropped
  AND c.relkind IN ('r','v','m')
ORDER BY c.relname, a.attnum`

const constraintsQuery = `
SELECT conrelid::regclass::text, conname, contype, conkey, confrelid::regclass::text, confkey,
       pg_get_constraintdef(oid)
FROM pg_constraint
WHERE connamespace = (SELECT oid FROM pg_namespace WHERE nspname = $1)`

func (a *Adapter) ListTables(ctx context.Context, conn engine.Conn, schemaName string) ([]engine.RawTable, error) {
	tables := map[string]*engine.RawTable{}
	var order []string

	rows, err := conn.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("postgres: list columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var relName, colName, dataType, defaultExpr, relKind string
		var nullable, identity bool
		var attnum int16
		if err := rows.Scan(&relName, &colName, &dataType, &nullable, &defaultExpr, &attnum, &identity, &relKind); err != nil {
			return nil, err
		}
		t, ok := tables[relName]
		if !ok {
			kind := schema.KindTable
			if relKind == "v" {
				kind = schema.KindView
			} else if relKind == "m" {
				kind = schema.KindMaterializedView
			}
			t = &engine.RawTable{Name: relName, Kind: kind}
			tables[relName] = t
			order = append(order, relName)
		}
		if typemap.StripVolatileDefault(defaultExpr) {
			defaultExpr = ""
		}
		t.Columns = append(t.Columns, engine.RawColumn{
			Name: colName, SourceType: dataType, Nullable: nullable,
			Default: strings.TrimSpace(defaultExpr), Identity: identity, OrdinalPos: int(attnum),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	consRows, err := conn.QueryContext(ctx, constraintsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("postgres: list constraints: %w", err)
	}
	defer consRows.Close()
	for consRows.Next() {
		var relName, consName, contype, refTable, def string
		var conkey, confkey []int16
		if err := consRows.Scan(&relName, &consName, &contype, &conkey, &refTable, &confkey, &def); err != nil {
			return nil, err
		}
		t, ok := tables[stripSchemaPrefix(relName)]
		if !ok {
			continue
		}
		kind := schema.ConstraintUnique
		switch contype {
		case "p":
			kind = schema.ConstraintPrimaryKey
		case "f":
			kind = schema.ConstraintForeignKey
		case "c":
			kind = schema.ConstraintCheck
		}
		columns := columnNamesByNum(t, conkey)
		var refColumns []string
		if rt, ok := tables[stripSchemaPrefix(refTable)]; ok {
			refColumns = columnNamesByNum(rt, confkey)
		}
		t.Constraints = append(t.Constraints, engine.RawConstraint{
			Name: consName, Kind: kind, Columns: columns,
			ReferencedSchema: schemaName, ReferencedTable: stripSchemaPrefix(refTable),
			ReferencedColumns: refColumns, CheckExpr: def,
		})
	}

	for viewName, t := range tables {
		if t.Kind == schema.KindTable {
			continue
		}
		script, err := a.ReadViewScript(ctx, conn, schemaName, viewName, t.Kind == schema.KindMaterializedView)
		if err == nil {
			t.ViewScript = script
		}
	}

	out := make([]engine.RawTable, 0, len(order))
	for _, name := range order {
		out = append(out, *tables[name])
	}
	return out, nil
}

func stripSchemaPrefix(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return strings.Trim(qualified[i+1:], `"`)
	}
	return strings.Trim(qualified, `"`)
}

func columnNamesByNum(t *engine.RawTable, nums []int16) []string {
	if len(nums) == 0 {
		return nil
	}
	out := make([]string, 0, len(nums))
	for _, n := range nums {
		for _, c := range t.Columns {
			if int16(c.OrdinalPos) == n {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

// DisableSessionRestrictions disables synchronous_commit for the session,
// the closest Postgres equivalent of the redo-suppression toggles the
// other engines expose, without touching durability guarantees other
// sessions rely on.
func (a *Adapter) DisableSessionRestrictions(ctx context.Context, conn engine.Conn) (engine.RestoreFunc, error) {
	if _, err := conn.ExecContext(ctx, `SET SESSION synchronous_commit = off`); err != nil {
		return nil, fmt.Errorf("postgres: disable session restrictions: %w", err)
	}
	return func(ctx context.Context, conn engine.Conn) error {
		_, err := conn.ExecContext(ctx, `SET SESSION synchronous_commit = on`)
		return err
	}, nil
}

func (a *Adapter) DisableTableRestrictions(ctx context.Context, conn engine.Conn, schemaName, table string) (engine.RestoreFunc, error) {
	qualified := fmt.Sprintf("%s.%s", schemaName, table)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s DISABLE TRIGGER ALL`, qualified)); err != nil {
		return nil, fmt.Errorf("postgres: disable triggers on %s: %w", qualified, err)
	}
	return func(ctx context.Context, conn engine.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ENABLE TRIGGER ALL`, qualified))
		return err
	}, nil
}

func (a *Adapter) BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string {
	order := "ctid"
	if len(orderBy) > 0 {
		order = strings.Join(orderBy, ", ")
	}
	return fmt.Sprintf(`SELECT %s FROM %s.%s ORDER BY %s LIMIT %d OFFSET %d`,
		strings.Join(columns, ", "), schemaName, table, order, limit, offset)
}

func (a *Adapter) BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string {
	rows := make([]string, rowCount)
	for r := 0; r < rowCount; r++ {
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = fmt.Sprintf("$%d", r*len(columns)+i+1)
		}
		rows[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}
	return fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES %s`, schemaName, table, strings.Join(columns, ", "), strings.Join(rows, ", "))
}

func (a *Adapter) BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string {
	where := make([]string, len(pkColumns))
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = $%d", c, i+2)
	}
	return fmt.Sprintf(`UPDATE %s.%s SET %s = $1 WHERE %s`, schemaName, table, column, strings.Join(where, " AND "))
}

func (a *Adapter) FetchLOBChunk(ctx context.Context, conn engine.Conn, schemaName, table string, pkColumns []string, pkValues []any, column string, offset int64, buf []byte) (int, bool, error) {
	where := make([]string, len(pkColumns))
	args := make([]any, 0, len(pkValues)+2)
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, pkValues[i])
	}
	query := fmt.Sprintf(`SELECT substring(%s FROM $%d FOR $%d) FROM %s.%s WHERE %s`,
		column, len(args)+1, len(args)+2, schemaName, table, strings.Join(where, " AND "))
	args = append(args, offset+1, int64(len(buf)))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var chunk []byte
	if err := rows.Scan(&chunk); err != nil {
		return 0, false, err
	}
	if chunk == nil {
		return 0, false, nil
	}
	n := copy(buf, chunk)
	return n, true, nil
}

func (a *Adapter) ReadViewScript(ctx context.Context, conn engine.Conn, schemaName, view string, materialized bool) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT pg_get_viewdef(format('%I.%I', $1::text, $2::text)::regclass, true)`, schemaName, view)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("postgres: view %s.%s not found", schemaName, view)
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return "", err
	}
	return text, nil
}
