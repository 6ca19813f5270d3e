package main

import (
	"context"
	"fmt"
	"os"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/migrations"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or revert the storefront database schema",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(directionCmd(database.Up, "Apply pending migrations"))
	rootCmd.AddCommand(directionCmd(database.Down, "Revert applied migrations"))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func directionCmd(direction database.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(direction),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), direction)
		},
	}
}

func run(ctx context.Context, direction database.Direction) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ran, err := database.Migrate(ctx, db, migrations.Files, direction)
	if err != nil {
		return err
	}

	for _, name := range ran {
		fmt.Printf("Ran migration: %s\n", name)
	}
	fmt.Printf("Successfully ran %d migration(s) %s\n", len(ran), direction)
	return nil
}
