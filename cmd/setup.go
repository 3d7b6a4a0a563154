package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/vbx/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the given path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		return fmt.Errorf("%w: --path", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add an [[accounts]] entry, or run 'vbx accounts import --name main --curl-file main.sh --append'\n")
	r.writePlain("2. Run 'vbx setup database' to create the run history database\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}

// SetupStatus lists every migration and whether it has been applied.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	states, err := shared.MigrationStatus(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	if cmd.Bool("json") {
		type migration struct {
			Version   int        `json:"version"`
			Name      string     `json:"name"`
			AppliedAt *time.Time `json:"applied_at"`
		}
		out := make([]migration, len(states))
		for i, s := range states {
			out[i] = migration{Version: s.Version, Name: s.Name, AppliedAt: s.AppliedAt}
		}
		return r.writeJSON(out, true)
	}

	r.writePlainHeader(fmt.Sprintf("Migrations: %s", r.config.Database.Path))
	for _, s := range states {
		if s.AppliedAt != nil {
			r.writePlain("✓ %04d %s (applied %s)\n", s.Version, s.Name, s.AppliedAt.Format("2006-01-02 15:04"))
		} else {
			r.writePlain("• %04d %s (pending)\n", s.Version, s.Name)
		}
	}
	return nil
}

// SetupRollback rolls back the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.logger.Warn("rolled back latest migration", "database", r.config.Database.Path)
	return nil
}
