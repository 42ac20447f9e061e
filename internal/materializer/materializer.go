// Package materializer renders a reflected schema's DDL against a target
// connection: tables in dependency order, each followed by its indexes,
// then views and materialized views last with their bodies rewritten to
// the target schema.
package materializer

import (
	"context"
	"fmt"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
	"github.com/sqlbridge/migrator/internal/util"
)

// Options controls schema-level materialization behavior.
type Options struct {
	Overrides typemap.Overrides
}

// Result reports one table's materialization outcome, per the unified
// per-table result record every migration phase reports through.
type Result struct {
	Table    string
	Created  bool
	Err      *util.MigrationError
}

// EnsureTargetSchema implements the two-branch reset protocol a migration
// run always performs before materializing DDL: if the target schema
// already exists, the candidate tables are dropped in reverse topological
// order (so a repeated run starts from a clean slate without touching
// objects outside the migration's table list); otherwise the schema is
// created with AUTHORIZATION user and re-probed, since some engines accept
// a CREATE SCHEMA statement against a name they silently refuse to create
// (e.g. a reserved word, or insufficient privilege masked by a generic
// success response).
func EnsureTargetSchema(ctx context.Context, adapter engine.Adapter, conn engine.Conn, targetSchema, user string, tables []schema.Table) error {
	if _, err := adapter.ResolveSchemaName(ctx, conn, targetSchema); err == nil {
		for i := len(tables) - 1; i >= 0; i-- {
			t := tables[i]
			if t.Kind != schema.KindTable {
				continue
			}
			stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", targetSchema, t.Name)
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return util.Wrap(util.CodeOperationFailed, err, "drop table %s.%s", targetSchema, t.Name)
			}
		}
		return nil
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s AUTHORIZATION %s", targetSchema, user)); err != nil {
		return util.Wrap(util.CodeOperationFailed, err, "create target schema %q", targetSchema)
	}
	if _, err := adapter.ResolveSchemaName(ctx, conn, targetSchema); err != nil {
		return util.Wrap(util.CodeOperationFailed, err, "target schema %q did not materialize", targetSchema)
	}
	return nil
}

// Materialize renders and executes DDL for every table in tables,
// assumed to already be in dependency order: each table is created and
// its indexes right after it, and views are created after all tables.
func Materialize(ctx context.Context, logger log.Logger, adapter engine.Adapter, conn engine.Conn, targetSchema string, tables []schema.Table, opts Options) []Result {
	var results []Result

	for _, t := range tables {
		if t.Kind != schema.KindTable {
			continue
		}
		logger.InfoContext(ctx, "materializing table", "table", t.Name)
		ddl, err := adapter.RenderCreateTable(targetSchema, t, opts.Overrides)
		if err != nil {
			results = append(results, Result{Table: t.Name, Err: util.Wrap(util.CodeOperationFailed, err, "render DDL for %s", t.Name)})
			continue
		}
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			results = append(results, Result{Table: t.Name, Err: util.Wrap(util.CodeOperationFailed, err, "create table %s", t.Name)})
			continue
		}
		for _, idx := range t.Indexes {
			idxDDL := adapter.RenderCreateIndex(targetSchema, t, idx)
			if _, err := conn.ExecContext(ctx, idxDDL); err != nil {
				logger.WarnContext(ctx, "create index failed", "table", t.Name, "index", idx.Name, "err", err)
			}
		}
		results = append(results, Result{Table: t.Name, Created: true})
	}

	for _, t := range tables {
		if t.Kind == schema.KindTable {
			continue
		}
		logger.InfoContext(ctx, "materializing view", "view", t.Name, "materialized", t.Kind == schema.KindMaterializedView)
		ddl := adapter.RenderCreateView(targetSchema, t, t.ViewScript, t.Schema)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			results = append(results, Result{Table: t.Name, Err: util.Wrap(util.CodeOperationFailed, err, "create view %s", t.Name)})
			continue
		}
		results = append(results, Result{Table: t.Name, Created: true})
	}

	return results
}
