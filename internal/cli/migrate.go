package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/engine"
	"github.com/sqlbridge/migrator/internal/materializer"
	"github.com/sqlbridge/migrator/internal/orchestrator"
	"github.com/sqlbridge/migrator/internal/reflector"
	"github.com/sqlbridge/migrator/internal/util"

	_ "github.com/sqlbridge/migrator/internal/engine/mssql"
	_ "github.com/sqlbridge/migrator/internal/engine/mysql"
	_ "github.com/sqlbridge/migrator/internal/engine/oracle"
	_ "github.com/sqlbridge/migrator/internal/engine/postgres"
)

// migrationFlags holds the command-line shape of one migration request;
// --source-config/--target-config take a YAML or JSON connection file path each, the
// same "point the CLI at a config file" shape as the teacher toolbox's
// --tools-file flag.
type migrationFlags struct {
	sourceEngine string
	sourceFile   string
	sourceSchema string
	targetEngine string
	targetFile   string
	targetSchema string

	includeTables             []string
	excludeTables             []string
	includeViews              bool
	stripIndexes              bool
	skipFKConstraintTables    []string
	skipCheckConstraintTables []string
	batchSize                 int
	chunkSize                 int
	maxProcesses              int
}

func (f *migrationFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.sourceEngine, "source-engine", "", "source engine: oracle, postgresql, sqlserver, mysql")
	flags.StringVar(&f.sourceFile, "source-config", "", "path to a YAML or JSON file with source connection parameters")
	flags.StringVar(&f.sourceSchema, "source-schema", "", "source schema name")
	flags.StringVar(&f.targetEngine, "target-engine", "", "target engine: oracle, postgresql, sqlserver, mysql")
	flags.StringVar(&f.targetFile, "target-config", "", "path to a YAML or JSON file with target connection parameters")
	flags.StringVar(&f.targetSchema, "target-schema", "", "target schema name")
	flags.StringSliceVar(&f.includeTables, "include-table", nil, "restrict migration to this table, repeatable")
	flags.StringSliceVar(&f.excludeTables, "exclude-table", nil, "exclude this table, repeatable")
	flags.BoolVar(&f.includeViews, "include-views", false, "also migrate plain views")
	flags.BoolVar(&f.stripIndexes, "strip-indexes", false, "skip secondary index creation on the target")
	flags.StringSliceVar(&f.skipFKConstraintTables, "skip-fk-table", nil, "drop all foreign-key constraints of this table, repeatable")
	flags.StringSliceVar(&f.skipCheckConstraintTables, "skip-check-table", nil, "drop all check constraints of this table, repeatable")
	flags.IntVar(&f.batchSize, "batch-size", 1_000_000, "rows per plain-data batch")
	flags.IntVar(&f.chunkSize, "chunk-size", 1_048_576, "bytes per LOB chunk")
	flags.IntVar(&f.maxProcesses, "max-processes", 1, "concurrent table workers")
}

func parseEngineKindArg(s string) (engine.Kind, error) {
	switch s {
	case "oracle":
		return engine.Oracle, nil
	case "postgresql", "postgres":
		return engine.Postgres, nil
	case "sqlserver", "mssql":
		return engine.MSSQL, nil
	case "mysql":
		return engine.MySQL, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

// loadEngineParams reads connection parameters from a JSON or YAML file,
// chosen by extension; YAML is the format operators hand-edit, JSON is
// what the control surface persists, and the CLI accepts either.
func loadEngineParams(path string) (config.EngineParams, error) {
	var p config.EngineParams
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, err
		}
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

func runOneShot(cmd *cobra.Command, root *Command, f *migrationFlags, verifyOnly bool) error {
	sourceKind, err := parseEngineKindArg(f.sourceEngine)
	if err != nil {
		return err
	}
	targetKind, err := parseEngineKindArg(f.targetEngine)
	if err != nil {
		return err
	}
	sourceParams, err := loadEngineParams(f.sourceFile)
	if err != nil {
		return fmt.Errorf("read source config: %w", err)
	}
	targetParams, err := loadEngineParams(f.targetFile)
	if err != nil {
		return fmt.Errorf("read target config: %w", err)
	}
	if err := root.registry.SetEngine(sourceKind, sourceParams); err != nil {
		return err
	}
	if err := root.registry.SetEngine(targetKind, targetParams); err != nil {
		return err
	}
	if err := root.registry.SetKnobs(config.MigrationKnobs{
		BatchSize: f.batchSize, ChunkSize: f.chunkSize, MaxProcesses: f.maxProcesses,
	}); err != nil {
		return err
	}

	opts := reflector.Options{
		IncludeTables: f.includeTables, ExcludeTables: f.excludeTables,
		IncludeViews: f.includeViews, StripIndexes: f.stripIndexes,
		SkipFKConstraintTables: f.skipFKConstraintTables, SkipCheckConstraintTables: f.skipCheckConstraintTables,
	}
	if err := reflector.ValidateFilterSets(opts); err != nil {
		return err
	}

	orch := orchestrator.New(root.registry, root.logger)
	result, err := orch.Run(cmd.Context(), orchestrator.Request{
		SourceKind: sourceKind, TargetKind: targetKind,
		SourceSchema: f.sourceSchema, TargetSchema: f.targetSchema,
		Options:     opts,
		Materialize: materializer.Options{},
		VerifyOnly:  verifyOnly,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	if result.Errors.HasErrors() {
		return util.New(util.CodePlain, "migration completed with %d error(s)", len(result.Errors))
	}
	return nil
}
