package cmd

import (
	"fmt"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/application"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/database"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run migrations and seeds (migrate up, then database/seeds/*.sql)",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	logger, err := application.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	n, err := database.RunSeeds(db, logger)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seeds applied: %d\n", n)
	return nil
}
