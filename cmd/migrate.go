package cmd

import (
	"fmt"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/config"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (database/migrations)",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE:  runMigrateDown,
}

var downSteps int

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back (0 = all)")
	migrateCmd.AddCommand(migrateDownCmd)
}

func loadValidConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateDown(cfg.DatabaseURL(), downSteps); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	fmt.Println("migrations rolled back")
	return nil
}
