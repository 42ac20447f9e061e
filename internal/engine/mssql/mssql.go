// Package mssql adapts the migration engine's capability set to SQL
// Server, reusing the sys.tables/sys.columns/sys.key_constraints/
// sys.foreign_key_columns catalog query shape the teacher toolbox's
// mssqllisttables tool queries against, extended here with full column
// and constraint detail instead of a name-only listing.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/engine/sqlhelpers"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func init() {
	engine.Register(&Adapter{})
}

type Adapter struct{}

func (a *Adapter) Kind() engine.Kind { return engine.MSSQL }

func (a *Adapter) BuildConnectionURL(cfg engine.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("mssql: host and database are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	host := cfg.Host
	if cfg.InstanceName != "" {
		host = fmt.Sprintf("%s\\%s", cfg.Host, cfg.InstanceName)
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		cfg.User, cfg.Password, host, port, cfg.Database), nil
}

func (a *Adapter) Open(ctx context.Context, cfg engine.Config) (engine.Conn, error) {
	url, err := a.BuildConnectionURL(cfg)
	if err != nil {
		return nil, err
	}
	ctx, span := engine.InitConnectionSpan(ctx, engine.MSSQL, cfg.Host)
	defer func() { engine.EndConnectionSpan(span, err) }()

	db, err := sql.Open("sqlserver", url)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	return sqlhelpers.Open("sqlserver", db), nil
}

func (a *Adapter) ResolveSchemaName(ctx context.Context, conn engine.Conn, name string) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT name FROM sys.schemas WHERE LOWER(name) = LOWER(@p1)`, name)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("mssql: schema %q not found", name)
	}
	var resolved string
	if err := rows.Scan(&resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

const columnsQuery = `
SELECT t.name, c.name, ty.name, c.is_nullable, ISNULL(dc.definition, ''), c.column_id, c.is_identity, 'table'
FROM sys.tables t
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.columns c ON c.object_id = t.object_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
WHERE s.name = @p1
UNION ALL
SELECT v.name, c.name, ty.name, c.is_nullable, '', c.column_id, 0, 'view'
FROM sys.views v
JOIN sys.schemas s ON s.schema_id = v.schema_id
JOIN sys.columns c ON c.object_id = v.object_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
WHERE s.name = @p1
ORDER BY 1, 6`

const constraintsQuery = `
SELECT t.name, kc.name, kc.type, c.name, ''
FROM sys.key_constraints kc
JOIN sys.tables t ON t.object_id = kc.parent_object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE s.name = @p1
UNION ALL
SELECT t.name, fk.name, 'F', pc.name, rt.name + ':' + rc.name
FROM sys.foreign_keys fk
JOIN sys.tables t ON t.object_id = fk.parent_object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
WHERE s.name = @p1`

func (a *Adapter) ListTables(ctx context.Context, conn engine.Conn, schemaName string) ([]engine.RawTable, error) {
	tables := map[string]*engine.RawTable{}
	var order []string

	rows, err := conn.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("mssql: list columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tableName, colName, typeName, defaultExpr, relKind string
		var nullable, identity bool
		var colID int
		if err := rows.Scan(&tableName, &colName, &typeName, &nullable, &defaultExpr, &colID, &identity, &relKind); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			kind := schema.KindTable
			if relKind == "view" {
				kind = schema.KindView
			}
			t = &engine.RawTable{Name: tableName, Kind: kind}
			tables[tableName] = t
			order = append(order, tableName)
		}
		defaultExpr = strings.TrimSpace(defaultExpr)
		for strings.HasPrefix(defaultExpr, "(") && strings.HasSuffix(defaultExpr, ")") {
			defaultExpr = defaultExpr[1 : len(defaultExpr)-1]
		}
		if typemap.StripVolatileDefault(defaultExpr) {
			defaultExpr = ""
		}
		t.Columns = append(t.Columns, engine.RawColumn{
			Name: colName, SourceType: typeName, Nullable: nullable,
			Default: strings.Trim(defaultExpr, "()"), Identity: identity, OrdinalPos: colID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	consRows, err := conn.QueryContext(ctx, constraintsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("mssql: list constraints: %w", err)
	}
	defer consRows.Close()
	constraintIndex := map[string]int{}
	for consRows.Next() {
		var tableName, consName, consType, colName, ref string
		if err := consRows.Scan(&tableName, &consName, &consType, &colName, &ref); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		key := tableName + "." + consName
		idx, ok := constraintIndex[key]
		if !ok {
			kind := schema.ConstraintUnique
			switch consType {
			case "PK":
				kind = schema.ConstraintPrimaryKey
			case "F":
				kind = schema.ConstraintForeignKey
			}
			t.Constraints = append(t.Constraints, engine.RawConstraint{Name: consName, Kind: kind, ReferencedSchema: schemaName})
			idx = len(t.Constraints) - 1
			constraintIndex[key] = idx
		}
		t.Constraints[idx].Columns = append(t.Constraints[idx].Columns, colName)
		if ref != "" {
			parts := strings.SplitN(ref, ":", 2)
			t.Constraints[idx].ReferencedTable = parts[0]
			if len(parts) > 1 {
				t.Constraints[idx].ReferencedColumns = append(t.Constraints[idx].ReferencedColumns, parts[1])
			}
		}
	}

	for viewName, t := range tables {
		if t.Kind != schema.KindView {
			continue
		}
		if script, err := a.ReadViewScript(ctx, conn, schemaName, viewName, false); err == nil {
			t.ViewScript = script
		}
	}

	out := make([]engine.RawTable, 0, len(order))
	for _, name := range order {
		out = append(out, *tables[name])
	}
	return out, nil
}

func (a *Adapter) DisableSessionRestrictions(ctx context.Context, conn engine.Conn) (engine.RestoreFunc, error) {
	return engine.NoopRestore, nil
}

func (a *Adapter) DisableTableRestrictions(ctx context.Context, conn engine.Conn, schemaName, table string) (engine.RestoreFunc, error) {
	qualified := fmt.Sprintf("%s.%s", schemaName, table)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s NOCHECK CONSTRAINT ALL`, qualified)); err != nil {
		return nil, fmt.Errorf("mssql: disable constraints on %s: %w", qualified, err)
	}
	return func(ctx context.Context, conn engine.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s WITH CHECK CHECK CONSTRAINT ALL`, qualified))
		return err
	}, nil
}

func (a *Adapter) BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string {
	order := "(SELECT NULL)"
	if len(orderBy) > 0 {
		order = strings.Join(orderBy, ", ")
	}
	return fmt.Sprintf(`SELECT %s FROM %s.%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY`,
		strings.Join(columns, ", "), schemaName, table, order, offset, limit)
}

func (a *Adapter) BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string {
	rows := make([]string, rowCount)
	for r := 0; r < rowCount; r++ {
		placeholders := make([]string, len(columns))
		for i := range columns {
			placeholders[i] = fmt.Sprintf("@p%d", r*len(columns)+i+1)
		}
		rows[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}
	return fmt.Sprintf(`INSERT INTO %s.%s (%s) VALUES %s`, schemaName, table, strings.Join(columns, ", "), strings.Join(rows, ", "))
}

func (a *Adapter) BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string {
	where := make([]string, len(pkColumns))
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = @p%d", c, i+2)
	}
	return fmt.Sprintf(`UPDATE %s.%s SET %s = @p1 WHERE %s`, schemaName, table, column, strings.Join(where, " AND "))
}

func (a *Adapter) FetchLOBChunk(ctx context.Context, conn engine.Conn, schemaName, table string, pkColumns []string, pkValues []any, column string, offset int64, buf []byte) (int, bool, error) {
	where := make([]string, len(pkColumns))
	args := make([]any, 0, len(pkValues)+2)
	for i, c := range pkColumns {
		where[i] = fmt.Sprintf("%s = @p%d", c, i+1)
		args = append(args, pkValues[i])
	}
	query := fmt.Sprintf(`SELECT SUBSTRING(%s, @p%d, @p%d) FROM %s.%s WHERE %s`,
		column, len(args)+1, len(args)+2, schemaName, table, strings.Join(where, " AND "))
	args = append(args, offset+1, int64(len(buf)))
	return sqlhelpers.FetchLOBChunk(ctx, conn, query, args, buf)
}

func (a *Adapter) ReadViewScript(ctx context.Context, conn engine.Conn, schemaName, view string, materialized bool) (string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT OBJECT_DEFINITION(OBJECT_ID(@p1))`, fmt.Sprintf("%s.%s", schemaName, view))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", fmt.Errorf("mssql: view %s.%s not found", schemaName, view)
	}
	var text sql.NullString
	if err := rows.Scan(&text); err != nil {
		return "", err
	}
	return text.String, nil
}
