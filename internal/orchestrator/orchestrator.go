// Package orchestrator drives one migration request through its state
// machine: IDLE, VALIDATING, REFLECTING, MATERIALIZING, MOVING_PLAIN,
// MOVING_LOB, DONE, with a FAILED terminal state reachable from any
// in-flight phase.
package orchestrator

import (
	"context"
	"sync"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/datamover"
	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/materializer"
	"github.com/sqlbridge/migrator/internal/reflector"
	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/util"
)

// State is one step of the migration state machine.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateReflecting
	StateMaterializing
	StateMovingPlain
	StateMovingLOB
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateValidating:
		return "VALIDATING"
	case StateReflecting:
		return "REFLECTING"
	case StateMaterializing:
		return "MATERIALIZING"
	case StateMovingPlain:
		return "MOVING_PLAIN"
	case StateMovingLOB:
		return "MOVING_LOB"
	case StateDone:
		return "DONE"
	default:
		return "FAILED"
	}
}

// Request is everything one migration run needs beyond what is already
// in the connection registry.
type Request struct {
	SourceKind   engine.Kind
	TargetKind   engine.Kind
	SourceSchema string
	TargetSchema string
	Options      reflector.Options
	Materialize  materializer.Options
	VerifyOnly   bool // when true, stop after REFLECTING and report what would happen
}

// Result accumulates every phase's output for the control surface to
// render back to the caller.
type Result struct {
	FinalState   State
	Errors       util.ErrorList
	Tables       []schema.Table
	Materialized []materializer.Result
	DataResults  []datamover.TableResult
}

// Orchestrator runs migration requests against the process-wide
// connection registry.
type Orchestrator struct {
	Registry *config.Registry
	Logger   log.Logger
}

func New(registry *config.Registry, logger log.Logger) *Orchestrator {
	return &Orchestrator{Registry: registry, Logger: logger}
}

// Run drives req through the state machine and returns the accumulated
// result. A non-nil error is only returned for failures the caller
// cannot attribute to a specific table; per-table failures live in
// Result.Materialized / Result.DataResults / Result.Errors instead.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	state := StateValidating
	o.Logger.InfoContext(ctx, "migration starting", "state", state.String(), "source", req.SourceKind, "target", req.TargetKind)

	if err := reflector.ValidateFilterSets(req.Options); err != nil {
		return Result{FinalState: StateFailed}, err
	}

	sourceParams, err := o.Registry.Engine(req.SourceKind)
	if err != nil {
		return Result{FinalState: StateFailed}, err
	}
	targetParams, err := o.Registry.Engine(req.TargetKind)
	if err != nil {
		return Result{FinalState: StateFailed}, err
	}
	sourceAdapter, err := engine.Get(req.SourceKind)
	if err != nil {
		return Result{FinalState: StateFailed}, err
	}
	targetAdapter, err := engine.Get(req.TargetKind)
	if err != nil {
		return Result{FinalState: StateFailed}, err
	}

	state = StateReflecting
	o.Logger.InfoContext(ctx, "reflecting source schema", "state", state.String())

	sourceConn, err := sourceAdapter.Open(ctx, sourceParams.ToEngineConfig())
	if err != nil {
		return Result{FinalState: StateFailed}, util.Wrap(util.CodeOperationFailed, err, "open source connection")
	}
	defer sourceConn.Close()

	resolvedSchema, err := sourceAdapter.ResolveSchemaName(ctx, sourceConn, req.SourceSchema)
	if err != nil {
		return Result{FinalState: StateFailed}, util.Wrap(util.CodeNotFound, err, "resolve source schema %q", req.SourceSchema)
	}
	rawTables, err := sourceAdapter.ListTables(ctx, sourceConn, resolvedSchema)
	if err != nil {
		return Result{FinalState: StateFailed}, util.Wrap(util.CodeOperationFailed, err, "list source tables")
	}
	if err := reflector.ValidateExcludeColumns(reflector.PrimaryKeysByTable(rawTables), req.Options.ExcludeColumns); err != nil {
		return Result{FinalState: StateFailed}, err
	}

	tables, err := reflector.FilterAndOrder(sourceAdapter, resolvedSchema, rawTables, req.Options)
	if err != nil {
		return Result{FinalState: StateFailed}, err
	}
	result := Result{Tables: tables}

	if req.VerifyOnly {
		result.FinalState = StateDone
		return result, nil
	}

	state = StateMaterializing
	o.Logger.InfoContext(ctx, "materializing target schema", "state", state.String())

	targetConn, err := targetAdapter.Open(ctx, targetParams.ToEngineConfig())
	if err != nil {
		return Result{FinalState: StateFailed, Tables: tables}, util.Wrap(util.CodeOperationFailed, err, "open target connection")
	}
	defer targetConn.Close()

	if err := materializer.EnsureTargetSchema(ctx, targetAdapter, targetConn, req.TargetSchema, targetParams.User, tables); err != nil {
		return Result{FinalState: StateFailed, Tables: tables}, err
	}
	result.Materialized = materializer.Materialize(ctx, o.Logger, targetAdapter, targetConn, req.TargetSchema, tables, req.Materialize)
	for _, r := range result.Materialized {
		if r.Err != nil {
			result.Errors.Add(r.Err)
		}
	}

	restoreSession, err := targetAdapter.DisableSessionRestrictions(ctx, targetConn)
	if err != nil {
		return Result{FinalState: StateFailed, Tables: tables, Materialized: result.Materialized}, err
	}
	defer restoreSession(ctx, targetConn)

	knobs := o.Registry.Knobs()
	mover := &datamover.Mover{
		SourceAdapter: sourceAdapter, TargetAdapter: targetAdapter,
		SourceConn: sourceConn, TargetConn: targetConn,
		BatchSize: knobs.BatchSize, ChunkSize: knobs.ChunkSize, Logger: o.Logger,
	}

	onlyTables := tablesOnly(tables)

	state = StateMovingPlain
	o.Logger.InfoContext(ctx, "moving plain data", "state", state.String())
	plainResults := o.movePlainConcurrently(ctx, mover, sourceAdapter, sourceConn, onlyTables, knobs.MaxProcesses)
	result.DataResults = append(result.DataResults, plainResults...)
	for _, r := range plainResults {
		if r.Err != nil {
			result.Errors.Add(r.Err)
		}
	}

	state = StateMovingLOB
	o.Logger.InfoContext(ctx, "moving LOB data", "state", state.String())
	lobResults := o.moveLOBConcurrently(ctx, mover, sourceAdapter, sourceConn, onlyTables, knobs)
	result.DataResults = mergeLOBResults(result.DataResults, lobResults)
	for _, r := range lobResults {
		if r.Err != nil {
			result.Errors.Add(r.Err)
		}
	}

	state = StateDone
	if result.Errors.HasErrors() {
		state = StateFailed
	}
	result.FinalState = state
	o.Logger.InfoContext(ctx, "migration finished", "state", state.String(), "errors", len(result.Errors))
	return result, nil
}

func tablesOnly(tables []schema.Table) []schema.Table {
	var out []schema.Table
	for _, t := range tables {
		if t.Kind == schema.KindTable {
			out = append(out, t)
		}
	}
	return out
}

// movePlainConcurrently runs MovePlain across a bounded worker pool sized
// by maxProcesses. Each table's load is wrapped in the target adapter's
// DisableTableRestrictions toggle, and tables are moved without regard to
// dependency order.
func (o *Orchestrator) movePlainConcurrently(ctx context.Context, mover *datamover.Mover, sourceAdapter engine.Adapter, sourceConn engine.Conn, tables []schema.Table, maxProcesses int) []datamover.TableResult {
	if maxProcesses < 1 {
		maxProcesses = 1
	}
	sem := make(chan struct{}, maxProcesses)
	results := make([]datamover.TableResult, len(tables))
	var wg sync.WaitGroup

	for i, t := range tables {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t schema.Table) {
			defer wg.Done()
			defer func() { <-sem }()

			restore, err := mover.TargetAdapter.DisableTableRestrictions(ctx, mover.TargetConn, t.Schema, t.Name)
			if err != nil {
				results[i] = datamover.TableResult{Table: t.Name, Err: util.Wrap(util.CodeOperationFailed, err, "disable restrictions on %s", t.Name)}
				return
			}
			defer restore(ctx, mover.TargetConn)

			results[i] = mover.MovePlain(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) moveLOBConcurrently(ctx context.Context, mover *datamover.Mover, sourceAdapter engine.Adapter, sourceConn engine.Conn, tables []schema.Table, knobs config.MigrationKnobs) []datamover.TableResult {
	var withLOB []schema.Table
	for _, t := range tables {
		if len(t.PrimaryKeyColumns()) == 0 {
			continue
		}
		for _, c := range t.Columns {
			if c.IsLOB() {
				withLOB = append(withLOB, t)
				break
			}
		}
	}
	if len(withLOB) == 0 {
		return nil
	}

	maxProcesses := knobs.MaxProcesses
	if maxProcesses < 1 {
		maxProcesses = 1
	}
	sem := make(chan struct{}, maxProcesses)
	results := make([]datamover.TableResult, len(withLOB))
	var wg sync.WaitGroup

	for i, t := range withLOB {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t schema.Table) {
			defer wg.Done()
			defer func() { <-sem }()

			pkValues, err := datamover.FetchPrimaryKeyValues(ctx, sourceAdapter, sourceConn, t, knobs.BatchSize)
			if err != nil {
				results[i] = datamover.TableResult{Table: t.Name, Err: util.Wrap(util.CodeOperationFailed, err, "fetch primary keys for %s", t.Name)}
				return
			}
			results[i] = mover.MoveLOB(ctx, t, pkValues)
		}(i, t)
	}
	wg.Wait()
	return results
}

// mergeLOBResults folds LOB counters into the matching plain-pass record
// so the control surface reports one record per table instead of two.
func mergeLOBResults(plain []datamover.TableResult, lob []datamover.TableResult) []datamover.TableResult {
	byName := make(map[string]int, len(plain))
	for i, r := range plain {
		byName[r.Table] = i
	}
	for _, l := range lob {
		if i, ok := byName[l.Table]; ok {
			plain[i].LOBColumns = l.LOBColumns
			plain[i].LOBStatus = l.LOBStatus
			plain[i].LOBRowsMoved = l.LOBRowsMoved
			plain[i].LOBBytesMoved = l.LOBBytesMoved
			if l.Err != nil {
				plain[i].Err = l.Err
			}
		} else {
			plain = append(plain, l)
		}
	}
	return plain
}
