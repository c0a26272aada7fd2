package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
)

// Migrations only need the database, so they skip full config validation.
func databaseURL(envFile string) (string, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return "", err
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return url, nil
}

func MigrateUpAction(_ context.Context, cmd *cli.Command) error {
	url, err := databaseURL(cmd.String("env"))
	if err != nil {
		return err
	}
	if err := store.RunMigrations(url, cmd.String("dir")); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "migrations applied")
	return nil
}

func MigrateDownAction(_ context.Context, cmd *cli.Command) error {
	steps := cmd.Int("steps")
	if steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	url, err := databaseURL(cmd.String("env"))
	if err != nil {
		return err
	}
	if err := store.RollbackMigrations(url, cmd.String("dir"), int(steps)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rolled back %d migration(s)\n", steps)
	return nil
}
