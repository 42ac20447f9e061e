// Package oracle adapts the migration engine's capability set to Oracle
// Database, copied and adapted from the teacher toolbox's Oracle source
// almost directly for connection setup, then extended with the catalog,
// session-restriction, and paginated-select behavior the original Python
// migrator's pydb_oracle module implements.
package oracle

import (
	"context"
	"fmt"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/engine/sqlhelpers"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func init() {
	engine.Register(&Adapter{})
}

type Adapter struct{}

func (a *Adapter) Kind() engine.Kind { return engine.Oracle }

// BuildConnectionURL renders cfg into a go-ora URL, preferring a TNS alias
// when given, then host/service_name, matching the three connection
// shapes pydb_oracle.py accepted.
func (a *Adapter) BuildConnectionURL(cfg engine.Config) (string, error) {
	options := map[string]string{}
	server := cfg.Host
	if cfg.TNSAlias != "" {
		// go-ora resolves a bare alias against tnsnames.ora on the host
		// running the process when no explicit host/port is given.
		server = cfg.TNSAlias
	} else if cfg.Host == "" || cfg.ServiceName == "" {
		return "", fmt.Errorf("oracle: host and service name are required when no TNS alias is given")
	}
	port := cfg.Port
	if port == 0 {
		port = 1521
	}
	return go_ora.BuildUrl(server, port, cfg.ServiceName, cfg.User, cfg.Password, options), nil
}

func (a *Adapter) Open(ctx context.Context, cfg engine.Config) (engine.Conn, error) {
	url, err := a.BuildConnectionURL(cfg)
	if err != nil {
		return nil, err
	}
	ctx, span := engine.InitConnectionSpan(ctx, engine.Oracle, cfg.Host)
	defer func() { engine.EndConnectionSpan(span, err) }()

	db, err := sqlOpen(url)
	if err != nil {
		return nil, fmt.Errorf("oracle: open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("oracle: open: %w", err)
	}
	return sqlhelpers.Open("oracle", db), nil
}

func (a *Adapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT username FROM all_users WHERE UPPER(username) = UPPER(:1)`, name)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("oracle: schema %q not found", name)
	}
	var resolved string
	if err := rows.Scan(&resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

const tableColumnsQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.nullable, c.data_default, c.column_id
FROM all_tab_columns c
WHERE c.owner = :1
ORDER BY c.table_name, c.column_id`

const constraintsQuery = `
SELECT ac.table_name, ac.constraint_name, ac.constraint_type, acc.column_name,
       ac.r_owner, rc.table_name AS r_table_name, rcc.column_name AS r_column_name
FROM all_constraints ac
JOIN all_cons_columns acc ON acc.owner = ac.owner AND acc.constraint_name = ac.constraint_name
LEFT JOIN all_constraints rc ON rc.owner = ac.r_owner AND rc.constraint_name = ac.r_constraint_name
LEFT JOIN all_cons_columns rcc ON rcc.owner = rc.owner AND rcc.constraint_name = rc.constraint_name AND rcc.position = acc.position
WHERE ac.owner = :1 AND ac.constraint_type IN ('P','U','R')
ORDER BY ac.table_name, ac.constraint_name, acc.position`

const viewsQuery = `SELECT view_name, text FROM all_views WHERE owner = :1`

func (a *Adapter) ListTables(ctx context.Context, conn engine.Conn, schemaName string) ([]engine.RawTable, error) {
	tables := map[string]*engine.RawTable{}
	var order []string

	colRows, err := conn.QueryContext(ctx, tableColumnsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("oracle: list columns: %w", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var tableName, colName, dataType, defaultExpr, nullable string
		var colID int
		if err := colRows.Scan(&tableName, &colName, &dataType, &nullable, &defaultExpr, &colID); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			t = &engine.RawTable{Name: tableName, Kind: schema.KindTable}
			tables[tableName] = t
			order = append(order, tableName)
		}
		if typemap.StripVolatileDefault(defaultExpr) {
			defaultExpr = ""
		}
		t.Columns = append(t.Columns, engine.RawColumn{
			Name:       colName,
			SourceType: dataType,
			Nullable:   strings.EqualFold(nullable, "Y"),
			Default:    strings.TrimSpace(defaultExpr),
			OrdinalPos: colID,
		})
	}
	if err := colRows.Err(); err != nil {
		return nil, err
	}

	consRows, err := conn.QueryContext(ctx, constraintsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("oracle: list constraints: %w", err)
	}
	defer consRows.Close()
	constraintIndex := map[string]*engine.RawConstraint{}
	for consRows.Next() {
		var tableName, consName, consType, colName, rOwner, rTable, rCol string
		if err := consRows.Scan(&tableName, &consName, &consType, &colName, &rOwner, &rTable, &rCol); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		key := tableName + "." + consName
		c, ok := constraintIndex[key]
		if !ok {
			kind := schema.ConstraintUnique
			switch consType {
			case "P":
				kind = schema.ConstraintPrimaryKey
			case "R":
				kind = schema.ConstraintForeignKey
			}
			c = &engine.RawConstraint{Name: consName, Kind: kind, ReferencedSchema: rOwner, ReferencedTable: rTable}
			constraintIndex[key] = c
			t.Constraints = append(t.Constraints, *c)
		}
		idx := len(t.Constraints) - 1
		t.Constraints[idx].Columns = append(t.Constraints[idx].Columns, colName)
		if rCol != "" {
			t.Constraints[idx].ReferencedColumns = append(t.Constraints[idx].ReferencedColumns, rCol)
		}
	}
	if err := consRows.Err(); err != nil {
		return nil, err
	}

	viewRows, err := conn.QueryContext(ctx, viewsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("oracle: list views: %w", err)
	}
	defer viewRows.Close()
	for viewRows.Next() {
		var viewName, text string
		if err := viewRows.Scan(&viewName, &text); err != nil {
			return nil, err
		}
		if t, ok := tables[viewName]; ok {
			t.Kind = schema.KindView
			t.ViewScript = text
		}
	}

	out := make([]engine.RawTable, 0, len(order))
	for _, name := range order {
		out = append(out, *tables[name])
	}
	return out, nil
}

// DisableSessionRestrictions disables redo generation for the session's
// bulk-load tables is handled per table (see DisableTableRestrictions);
// at the session level Oracle only needs autocommit left off, which
// go-ora already defaults to, so there is nothing to toggle.
func (a *Adapter) DisableSessionRestrictions(ctx context.Context, conn engine.Conn) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}

func (a *Adapter) DisableTableRestrictions(ctx context.Context, conn engine.Conn, schemaName, table string) (engine.RestoreFunc, error) {
	qualified := fmt.Sprintf("%s.%s", schemaName, table)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s NOLOGGING`, qualified)); err != nil {
		return nil, fmt.Errorf("oracle: disable logging on %s: %w", qualified, err)
	}
	return func(ctx context.Context, conn engine.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s LOGGING`, qualified))
		return err
	}, nil
}

// BuildPaginatedSelect uses ROWID ordering when no deterministic key is
// supplied, the same fallback pydb_oracle.py used for tables without a
// primary key.
func (a *Adapter) BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string {
	order := "ROWID"
	if len(orderBy) > 0 {
		order = strings.Join(orderBy, ", ")
	}
	return fmt.Sprintf(
		`SELECT %s FROM %s.%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY`,
		strings.Join(columns, ", "), schemaName, table, order, offset, limit,
	)
}

func (a *Adapter) BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string {
	rows := make([]string, rowCount)
	for r := 0; r < rowCount; r++ {
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = fmt.Sprintf(":%d", r*len(columns)+i+1)
		}
		rows[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}
	return fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES %s`, schemaName, table, strings.Join(columns, ", "), strings.Join(rows, ", "))
}

func (a *Adapter) BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string {
	where := make([]string, len(pkColumns))
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = :%d", c, i+2)
	}
	return fmt.Sprintf(`UPDATE %s.%s SET %s = :1 WHERE %s`, schemaName, table, column, strings.Join(where, " AND "))
}

func (a *Adapter) FetchLOBChunk(ctx context.Context, conn engine.Conn, schemaName, table string, pkColumns []string, pkValues []any, column string, offset int64, buf []byte) (int, bool, error) {
	where := make([]string, len(pkColumns))
	args := make([]any, 0, len(pkValues)+2)
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = :%d", c, i+1)
		args = append(args, pkValues[i])
	}
	query := fmt.Sprintf(`SELECT DBMS_LOB.SUBSTR(%s, :%d, :%d) FROM %s.%s WHERE %s`,
		column, len(args)+1, len(args)+2, schemaName, table, strings.Join(where, " AND "))
	args = append(args, len(buf), offset+1)
	return sqlhelpers.FetchLOBChunk(ctx, conn, query, args, buf)
}

func (a *Adapter) ReadViewScript(ctx context.Context, conn engine.Conn, schemaName, view string, materialized bool) (string, error) {
	table := "all_views"
	col := "text"
	if materialized {
		table, col = "all_mviews", "query"
	}
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE owner = :1 AND view_name = :2`, col, table), schemaName, view)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("oracle: view %s.%s not found", schemaName, view)
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return "", err
	}
	return text, nil
}
