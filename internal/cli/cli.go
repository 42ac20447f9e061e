// Package cli wires the process's cobra command tree: serve, migrate,
// and verify, grounded on the teacher toolbox's invoke command, which
// takes the same persistent --log-format and --log-level flags against
// an injected RootCommand context.
package cli

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlbridge/migrator/internal/config"
	"github.com/sqlbridge/migrator/internal/log"
	"github.com/sqlbridge/migrator/internal/server"
	"github.com/sqlbridge/migrator/internal/tracing"
)

// Command is the root command for the migrator binary.
type Command struct {
	*cobra.Command

	logFormat string
	logLevel  string
	addr      string

	registry *config.Registry
	logger   log.Logger
}

// NewCommand builds the root cobra.Command tree.
func NewCommand() *Command {
	c := &Command{registry: config.NewRegistry()}

	c.Command = &cobra.Command{
		Use:           "migrator",
		Short:         "migrator reflects a source schema and copies it to a target database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := log.NewLogger(c.logFormat, c.logLevel, os.Stdout, os.Stderr)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}

	flags := c.Command.PersistentFlags()
	flags.StringVar(&c.logFormat, "log-format", "standard", "log format, either 'standard' or 'json'")
	flags.StringVar(&c.logLevel, "log-level", log.Info, "minimum log level to emit")
	flags.StringVar(&c.addr, "address", ":8088", "address the control surface listens on, for the serve subcommand")

	c.AddCommand(newServeCommand(c))
	c.AddCommand(newMigrateCommand(c))
	c.AddCommand(newVerifyCommand(c))

	return c
}

func newServeCommand(root *Command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			shutdown := tracing.Init()
			defer shutdown(cmd.Context())

			srv := server.New(root.registry, root.logger)
			root.logger.InfoContext(cmd.Context(), "listening", "address", root.addr)
			return http.ListenAndServe(root.addr, srv.Router())
		},
	}
}

func newMigrateCommand(root *Command) *cobra.Command {
	opts := &migrationFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run a one-shot migration from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, root, opts, false)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newVerifyCommand(root *Command) *cobra.Command {
	opts := &migrationFlags{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "reflect and report what a migration would do, without writing to the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, root, opts, true)
		},
	}
	opts.bind(cmd)
	return cmd
}

// Execute runs the command tree against os.Args, the same thin wrapper
// shape the teacher toolbox's main.go uses around its root command.
func Execute() error {
	return NewCommand().Execute()
}
