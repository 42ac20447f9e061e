package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/materializer"
	"github.com/sqlbridge/migrator/internal/orchestrator"
	"github.com/sqlbridge/migrator/internal/reflector"
	"github.com/sqlbridge/migrator/internal/util"
)

// errorEnvelope is the wire shape every failed request returns:
// {"errors": ["<code>: <message>", ...]}.
type errorEnvelope struct {
	Errors []string `json:"errors"`
}

func writeError(w http.ResponseWriter, status int, err *util.MigrationError) {
	writeJSON(w, status, errorEnvelope{Errors: []string{err.Error()}})
}

func writeErrorList(w http.ResponseWriter, status int, errs util.ErrorList) {
	writeJSON(w, status, errorEnvelope{Errors: errs.Strings()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func parseEngineKind(r *http.Request) (engine.Kind, *util.MigrationError) {
	name := chi.URLParam(r, "engine")
	switch name {
	case "oracle":
		return engine.Oracle, nil
	case "postgresql", "postgres":
		return engine.Postgres, nil
	case "sqlserver", "mssql":
		return engine.MSSQL, nil
	case "mysql":
		return engine.MySQL, nil
	default:
		return "", util.New(util.CodeInvalidValue, "unknown engine %q", name)
	}
}

// handlePutEngine stores connection parameters for one engine: PUT
// /rdbms/{engine}.
func (s *Server) handlePutEngine(w http.ResponseWriter, r *http.Request) {
	kind, kerr := parseEngineKind(r)
	if kerr != nil {
		writeError(w, http.StatusBadRequest, kerr)
		return
	}
	var params config.EngineParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, util.Wrap(util.CodeInvalidValue, err, "decode request body"))
		return
	}
	if err := s.Registry.SetEngine(kind, params); err != nil {
		writeMigrationErr(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetEngine reports whether connection parameters exist for one
// engine, without echoing back credentials: GET /rdbms/{engine}.
func (s *Server) handleGetEngine(w http.ResponseWriter, r *http.Request) {
	kind, kerr := parseEngineKind(r)
	if kerr != nil {
		writeError(w, http.StatusBadRequest, kerr)
		return
	}
	params, err := s.Registry.Engine(kind)
	if err != nil {
		writeMigrationErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Engine   string `json:"engine"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Database string `json:"database"`
		User     string `json:"user"`
	}{string(kind), params.Host, params.Port, params.Database, params.User})
}

// handlePutMigrationConfig sets the batch/chunk/concurrency knobs: PUT
// /migration/config.
func (s *Server) handlePutMigrationConfig(w http.ResponseWriter, r *http.Request) {
	var knobs config.MigrationKnobs
	if err := json.NewDecoder(r.Body).Decode(&knobs); err != nil {
		writeError(w, http.StatusBadRequest, util.Wrap(util.CodeInvalidValue, err, "decode request body"))
		return
	}
	if err := s.Registry.SetKnobs(knobs); err != nil {
		writeMigrationErr(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// migrationRequestBody is the shared wire shape for verify and migrate.
type migrationRequestBody struct {
	Source struct {
		Engine string `json:"engine"`
		Schema string `json:"schema"`
	} `json:"source"`
	Target struct {
		Engine string `json:"engine"`
		Schema string `json:"schema"`
	} `json:"target"`
	IncludeTables             []string            `json:"includeTables"`
	ExcludeTables             []string            `json:"excludeTables"`
	ExcludeColumns            map[string][]string `json:"excludeColumns"`
	IncludeViews              bool                `json:"includeViews"`
	IncludeMaterializedViews  bool                `json:"includeMaterializedViews"`
	StripIndexes              bool                `json:"stripIndexes"`
	SkipFKConstraintTables    []string            `json:"skipFkConstraintTables"`
	SkipCheckConstraintTables []string            `json:"skipCheckConstraintTables"`
}

func parseKind(name string) (engine.Kind, *util.MigrationError) {
	switch name {
	case "oracle":
		return engine.Oracle, nil
	case "postgresql", "postgres":
		return engine.Postgres, nil
	case "sqlserver", "mssql":
		return engine.MSSQL, nil
	case "mysql":
		return engine.MySQL, nil
	default:
		return "", util.New(util.CodeInvalidValue, "unknown engine %q", name)
	}
}

func (b migrationRequestBody) toRequest(verifyOnly bool) (orchestrator.Request, *util.MigrationError) {
	sourceKind, err := parseKind(b.Source.Engine)
	if err != nil {
		return orchestrator.Request{}, err
	}
	targetKind, err := parseKind(b.Target.Engine)
	if err != nil {
		return orchestrator.Request{}, err
	}
	if b.Source.Schema == "" || b.Target.Schema == "" {
		return orchestrator.Request{}, util.New(util.CodeRequiredAttribute, "source.schema and target.schema are required")
	}
	opts := reflector.Options{
		IncludeTables: b.IncludeTables, ExcludeTables: b.ExcludeTables,
		ExcludeColumns: b.ExcludeColumns, IncludeViews: b.IncludeViews,
		IncludeMaterializedViews: b.IncludeMaterializedViews, StripIndexes: b.StripIndexes,
		SkipFKConstraintTables: b.SkipFKConstraintTables, SkipCheckConstraintTables: b.SkipCheckConstraintTables,
	}
	if err := reflector.ValidateFilterSets(opts); err != nil {
		return orchestrator.Request{}, err
	}
	return orchestrator.Request{
		SourceKind: sourceKind, TargetKind: targetKind,
		SourceSchema: b.Source.Schema, TargetSchema: b.Target.Schema,
		Options:     opts,
		Materialize: materializer.Options{},
		VerifyOnly:  verifyOnly,
	}, nil
}

// handlePostVerify runs reflection only and reports what a migration
// would do, without opening a target connection: POST /migration/verify.
func (s *Server) handlePostVerify(w http.ResponseWriter, r *http.Request) {
	s.runMigration(w, r, true)
}

// handlePostMigrate runs the full migration: POST /migration/migrate.
func (s *Server) handlePostMigrate(w http.ResponseWriter, r *http.Request) {
	s.runMigration(w, r, false)
}

func (s *Server) runMigration(w http.ResponseWriter, r *http.Request, verifyOnly bool) {
	var body migrationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, util.Wrap(util.CodeInvalidValue, err, "decode request body"))
		return
	}
	req, merr := body.toRequest(verifyOnly)
	if merr != nil {
		writeError(w, http.StatusBadRequest, merr)
		return
	}

	result, err := s.Orchestrator.Run(r.Context(), req)
	if err != nil {
		writeMigrationErr(w, http.StatusUnprocessableEntity, err)
		return
	}

	status := http.StatusOK
	if result.Errors.HasErrors() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

func writeMigrationErr(w http.ResponseWriter, status int, err error) {
	if merr, ok := err.(*util.MigrationError); ok {
		writeError(w, status, merr)
		return
	}
	writeError(w, status, util.Wrap(util.CodeUnexpected, err, "unexpected error"))
}
