// Package engine defines the capability set every supported RDBMS adapter
// implements, and the registry adapters attach themselves to at init time,
// the same dispatch-by-kind shape the teacher toolbox uses for its
// sources.Register map, but built around a fixed set of connection-level
// capabilities instead of a per-tool query surface.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

// Kind identifies one of the four supported engines.
type Kind string

const (
	Oracle   Kind = "oracle"
	Postgres Kind = "postgresql"
	MSSQL    Kind = "sqlserver"
	MySQL    Kind = "mysql"
)

// Config carries the connection parameters for one engine endpoint,
// source or target. Not every field applies to every engine; adapters
// check the subset they need and ignore the rest.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// Oracle-specific.
	ServiceName string
	TNSAlias    string

	// SQL Server-specific.
	InstanceName string
	DriverName   string // not read: the adapter always opens the "sqlserver" driver

	Params map[string]string
}

// Rows abstracts over *sql.Rows and pgx.Rows so callers above the adapter
// boundary never import a driver package directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Conn abstracts over *sql.DB/*sql.Conn and a pgx connection.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (int64, error)
	Close() error
}

// RestoreFunc undoes a session or table restriction toggle. It must be
// idempotent: the orchestrator calls it during both normal completion and
// failure cleanup.
type RestoreFunc func(ctx context.Context, conn Conn) error

// noopRestore is returned by adapters for engines that have nothing to
// restore for a given toggle.
func noopRestore(context.Context, Conn) error { return nil }

// RawColumn and RawConstraint/RawIndex are what an adapter's catalog
// queries hand back; the reflector turns these into schema.Table values
// after resolving generic types.
type RawColumn struct {
	Name       string
	SourceType string
	Nullable   bool
	Default    string
	Identity   bool
	OrdinalPos int
}

type RawConstraint struct {
	Name              string
	Kind              schema.ConstraintKind
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
	CheckExpr         string
}

type RawIndex struct {
	Name    string
	Columns []string
	Unique  bool
}

type RawTable struct {
	Name        string
	Kind        schema.TableKind
	Columns     []RawColumn
	Constraints []RawConstraint
	Indexes     []RawIndex
	ViewScript  string
}

// Adapter is the capability set an engine package exposes. Every method
// is independent and stateless with respect to the others; the
// orchestrator composes them rather than the adapter owning a workflow.
type Adapter interface {
	Kind() Kind

	// BuildConnectionURL renders cfg into the driver-specific DSN/URL.
	BuildConnectionURL(cfg Config) (string, error)

	// Open establishes a connection or pool and returns it wrapped as a
	// Conn. The returned Conn must be closed by the caller.
	Open(ctx context.Context, cfg Config) (Conn, error)

	// ResolveSchemaName resolves a case-insensitively supplied schema name
	// to its canonical catalog spelling.
	ResolveSchemaName(ctx context.Context, conn Conn, name string) (string, error)

	// ListTables enumerates tables and views in schemaName, already
	// populated with columns, constraints, and indexes.
	ListTables(ctx context.Context, conn Conn, schemaName string) ([]RawTable, error)

	// DisableSessionRestrictions turns off session-wide checks that would
	// slow or block bulk loading (e.g. autocommit, redo/WAL logging) and
	// returns a RestoreFunc that puts them back.
	DisableSessionRestrictions(ctx context.Context, conn Conn) (RestoreFunc, error)

	// DisableTableRestrictions turns off a single table's referential
	// integrity enforcement for the duration of the load.
	DisableTableRestrictions(ctx context.Context, conn Conn, schemaName, table string) (RestoreFunc, error)

	// BuildPaginatedSelect renders a deterministic-order, offset-paginated
	// SELECT against schemaName.table for the given columns.
	BuildPaginatedSelect(schemaName, table string, columns []string, orderBy []string, offset, limit int) string

	// BuildBulkInsert renders a multi-row INSERT statement template with
	// rowCount value groups of len(columns) placeholders each.
	BuildBulkInsert(schemaName, table string, columns []string, rowCount int) string

	// BuildLOBUpdate renders an UPDATE statement that sets column to a
	// single bound parameter for the row identified by pkColumns, used to
	// write one already-assembled LOB value (or chunk, for engines that
	// support a piecewise append) back to the target.
	BuildLOBUpdate(schemaName, table string, pkColumns []string, column string) string

	// FetchLOBChunk reads up to len(buf) bytes of column starting at
	// offset, for the row identified by pkColumns/pkValues. It reports
	// n bytes read and whether the column had any value at all (false
	// means the source value was NULL).
	FetchLOBChunk(ctx context.Context, conn Conn, schemaName, table string, pkColumns []string, pkValues []any, column string, offset int64, buf []byte) (n int, hasValue bool, err error)

	// ReadViewScript returns the raw SELECT body backing a view or
	// materialized view, for identifier rewriting during materialization.
	ReadViewScript(ctx context.Context, conn Conn, schemaName, view string, materialized bool) (string, error)

	// MapNativeType reduces a raw catalog type string to the generic
	// intermediate representation.
	MapNativeType(sourceType string) (typemap.ColumnType, error)

	// RenderColumnType renders a generic type back into this engine's DDL
	// type syntax, used when this engine is the target.
	RenderColumnType(t typemap.ColumnType) (string, error)

	// RenderCreateTable renders the full CREATE TABLE statement for t
	// against targetSchema.
	RenderCreateTable(targetSchema string, t schema.Table, overrides typemap.Overrides) (string, error)

	// RenderCreateIndex renders a CREATE INDEX statement for idx on t.
	RenderCreateIndex(targetSchema string, t schema.Table, idx schema.Index) string

	// RenderCreateView renders a CREATE [MATERIALIZED] VIEW statement,
	// with identifiers in script rewritten from sourceSchema to
	// targetSchema.
	RenderCreateView(targetSchema string, t schema.Table, script, sourceSchema string) string
}

// ErrUnsupportedEngine is returned by adapter methods that are shaped but
// intentionally unimplemented for an engine, mirroring the original
// migrator's MySQL dispatch branches that existed in the per-engine
// if/elif chain but were left empty.
var ErrUnsupportedEngine = fmt.Errorf("engine: operation not supported for this engine")

var (
	mu       sync.RWMutex
	adapters = map[Kind]Adapter{}
)

// Register attaches an adapter under its Kind. Adapter packages call this
// from an init function, the same registration shape the teacher toolbox
// uses for its source and tool kinds.
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	adapters[a.Kind()] = a
}

// Get looks up a previously registered adapter.
func Get(k Kind) (Adapter, error) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := adapters[k]
	if !ok {
		return nil, fmt.Errorf("engine: no adapter registered for kind %q", k)
	}
	return a, nil
}

// tracer is the package-wide tracer used to span connection setup; the
// orchestrator and control surface may install their own TracerProvider
// via otel.SetTracerProvider before the first Open call.
var tracer = otel.Tracer("github.com/sqlbridge/migrator/internal/engine")

// InitConnectionSpan starts a span around an engine connection attempt,
// tagging it with the engine kind and target host so traces can be
// correlated with the structured logs emitted around the same call.
func InitConnectionSpan(ctx context.Context, k Kind, host string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("engine.Open/%s", k))
	span.SetAttributes(
		attribute.String("db.system", string(k)),
		attribute.String("server.address", host),
	)
	return ctx, span
}

// EndConnectionSpan records err on span, if any, and ends it.
func EndConnectionSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NoopRestore exposes noopRestore to adapter packages that have nothing
// to undo for a given toggle.
func NoopRestore(ctx context.Context, conn Conn) error { return noopRestore(ctx, conn) }
