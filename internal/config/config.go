// Package config holds the process-wide registry of engine connection
// parameters and migration knobs, the same registry shape the teacher
// toolbox uses for its sources.SourceConfig map, but holding connection
// parameters rather than live, already-opened sources: the orchestrator
// opens a live engine.Adapter connection per phase rather than the
// registry owning one for the life of the process.
package config

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/util"
)

// EngineParams is the validated, wire-decoded shape of one PUT
// /rdbms/{engine} request body.
type EngineParams struct {
	Host         string            `yaml:"host" validate:"required"`
	Port         int               `yaml:"port"`
	Database     string            `yaml:"database" validate:"required"`
	User         string            `yaml:"user" validate:"required"`
	Password     string            `yaml:"password" validate:"required"`
	ServiceName  string            `yaml:"serviceName"`
	TNSAlias     string            `yaml:"tnsAlias"`
	InstanceName string            `yaml:"instanceName"`
	Params       map[string]string `yaml:"params"`
}

// ToEngineConfig converts the wire shape into the connection config the
// engine package's adapters consume.
func (p EngineParams) ToEngineConfig() engine.Config {
	return engine.Config{
		Host: p.Host, Port: p.Port, Database: p.Database,
		User: p.User, Password: p.Password,
		ServiceName: p.ServiceName, TNSAlias: p.TNSAlias,
		InstanceName: p.InstanceName, Params: p.Params,
	}
}

// MigrationKnobs are the tunables that govern batch sizing and
// concurrency, all with the defaults the original migrator shipped with.
type MigrationKnobs struct {
	BatchSize    int `yaml:"batchSize" validate:"min=1"`
	ChunkSize    int `yaml:"chunkSize" validate:"min=1"`
	MaxProcesses int `yaml:"maxProcesses" validate:"min=1"`
}

// DefaultKnobs returns the knob values the original migrator defaulted
// to absent any override: a million rows per batch, a one-megabyte LOB
// chunk, and serial execution.
func DefaultKnobs() MigrationKnobs {
	return MigrationKnobs{BatchSize: 1_000_000, ChunkSize: 1_048_576, MaxProcesses: 1}
}

var validate = validator.New()

// Registry is the mutex-guarded, process-wide store of per-engine
// connection parameters and migration knobs, populated by the control
// surface's PUT handlers and read back by the orchestrator when it opens
// a migration.
type Registry struct {
	mu      sync.RWMutex
	engines map[engine.Kind]EngineParams
	knobs   MigrationKnobs
}

// NewRegistry returns an empty registry seeded with default knobs.
func NewRegistry() *Registry {
	return &Registry{engines: map[engine.Kind]EngineParams{}, knobs: DefaultKnobs()}
}

// SetEngine validates and stores the connection parameters for k.
func (r *Registry) SetEngine(k engine.Kind, p EngineParams) error {
	if err := validate.Struct(p); err != nil {
		return util.New(util.CodeRequiredAttribute, "invalid parameters for engine %s: %v", k, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[k] = p
	return nil
}

// Engine returns the stored parameters for k, or an error if none were
// ever set.
func (r *Registry) Engine(k engine.Kind) (EngineParams, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.engines[k]
	if !ok {
		return EngineParams{}, util.New(util.CodeNotFound, "no connection configured for engine %s", k)
	}
	return p, nil
}

// HasEngine reports whether connection parameters were set for k.
func (r *Registry) HasEngine(k engine.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.engines[k]
	return ok
}

// SetKnobs validates and replaces the migration knobs.
func (r *Registry) SetKnobs(k MigrationKnobs) error {
	if err := validate.Struct(k); err != nil {
		return util.New(util.CodeRequiredAttribute, "invalid migration config: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knobs = k
	return nil
}

// Knobs returns the current migration knobs.
func (r *Registry) Knobs() MigrationKnobs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knobs
}
