package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(rt *Runtime, opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
		Long: `Apply every pending migration. Subcommands roll back or report the
current version.

Examples:
  opsctl migrate
  opsctl migrate down --steps 1
  opsctl migrate version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.Migrator.Up(opts.DatabaseURL, opts.MigrationsPath); err != nil {
				return commandError("migrate up", err)
			}
			return opts.output(rt).success(map[string]string{"migrated": "up"}, "migrations applied")
		},
	}

	cmd.AddCommand(newMigrateDownCommand(rt, opts))
	cmd.AddCommand(newMigrateVersionCommand(rt, opts))

	return cmd
}

func newMigrateDownCommand(rt *Runtime, opts *RootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return commandError(fmt.Sprintf("--steps must be at least 1, got %d", steps), nil)
			}
			if err := rt.Migrator.Down(opts.DatabaseURL, opts.MigrationsPath, steps); err != nil {
				return commandError("migrate down", err)
			}
			return opts.output(rt).success(
				map[string]int{"rolled_back": steps},
				fmt.Sprintf("rolled back %d migration(s)", steps),
			)
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	return cmd
}

type versionResult struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

func newMigrateVersionCommand(rt *Runtime, opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, ok, err := rt.Migrator.Version(opts.DatabaseURL, opts.MigrationsPath)
			if err != nil {
				return commandError("migrate version", err)
			}

			text := "no migrations applied"
			if ok {
				text = fmt.Sprintf("version %d", version)
				if dirty {
					text += " (dirty)"
				}
			}
			return opts.output(rt).success(versionResult{Version: version, Dirty: dirty, Applied: ok}, text)
		},
	}
}
