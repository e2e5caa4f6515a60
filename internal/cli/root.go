// Package cli implements opsctl, the operator tool for schema migrations and
// idempotency key maintenance.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dejobratic/opsapi/internal/config"
	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/idempotency"
	idempostgres "github.com/dejobratic/opsapi/internal/idempotency/postgres"
)

var validFormats = []string{"text", "json"}

// KeyAdmin is the subset of an idempotency store operators act on.
type KeyAdmin interface {
	Lookup(ctx context.Context, key string) (*idempotency.Record, error)
	Release(ctx context.Context, key string) (bool, error)
	Sweep(ctx context.Context, completedBefore time.Time) (int64, error)
}

// Migrator applies and inspects schema migrations.
type Migrator interface {
	Up(databaseURL, migrationsPath string) error
	Down(databaseURL, migrationsPath string, steps int) error
	Version(databaseURL, migrationsPath string) (version uint, dirty bool, ok bool, err error)
}

// Runtime holds the collaborators commands use. Tests swap them out.
type Runtime struct {
	Config    *config.Config
	Migrator  Migrator
	OpenStore func(ctx context.Context, databaseURL string) (KeyAdmin, func(), error)
	Now       func() time.Time
	Out       io.Writer
}

// RootOptions holds global flags.
type RootOptions struct {
	Format         string
	DatabaseURL    string
	MigrationsPath string
}

// NewRuntime returns the Postgres backed runtime used by the binary.
func NewRuntime(cfg *config.Config) *Runtime {
	return &Runtime{
		Config:    cfg,
		Migrator:  databaseMigrator{},
		OpenStore: openPostgresStore,
		Now:       time.Now,
		Out:       os.Stdout,
	}
}

// NewRootCommand creates the opsctl command tree.
func NewRootCommand(rt *Runtime) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "opsctl",
		Short: "Operator tooling for opsapi",
		Long: `opsctl runs schema migrations and maintains idempotency keys.

Connection settings default to the same environment variables the API
reads (DATABASE_URL, DB_HOST, MIGRATIONS_PATH, IDEM_TTL_HOURS).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", rt.Config.Database.URL, "Postgres connection URL")
	cmd.PersistentFlags().StringVar(&opts.MigrationsPath, "migrations", rt.Config.Database.MigrationsPath, "migrations directory")

	cmd.AddCommand(newMigrateCommand(rt, opts))
	cmd.AddCommand(newIdempotencyCommand(rt, opts))

	return cmd
}

// Execute runs the command tree and reports failures through the selected
// output format.
func Execute(rt *Runtime, args []string) int {
	cmd := NewRootCommand(rt)
	cmd.SetArgs(args)
	cmd.SetOut(rt.Out)

	err := cmd.Execute()
	if err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		output{format: format, w: rt.Out}.failure(err)
	}
	return ExitCode(err)
}

func (o *RootOptions) output(rt *Runtime) output {
	return output{format: o.Format, w: rt.Out}
}

type databaseMigrator struct{}

func (databaseMigrator) Up(databaseURL, migrationsPath string) error {
	return database.RunMigrations(databaseURL, migrationsPath)
}

func (databaseMigrator) Down(databaseURL, migrationsPath string, steps int) error {
	return database.RollbackMigrations(databaseURL, migrationsPath, steps)
}

func (databaseMigrator) Version(databaseURL, migrationsPath string) (uint, bool, bool, error) {
	return database.MigrationVersion(databaseURL, migrationsPath)
}

func openPostgresStore(ctx context.Context, databaseURL string) (KeyAdmin, func(), error) {
	pool, err := database.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return idempostgres.NewStore(pool), pool.Close, nil
}
