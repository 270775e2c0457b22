package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agrimarket-backend/config"
	"agrimarket-backend/database"
	"agrimarket-backend/internal/logging"
	"agrimarket-backend/internal/models"
)

func newMigrateCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.Environment)
			if err != nil {
				return err
			}
			defer logger.Sync()
			zap.ReplaceGlobals(logger)

			db, err := database.Initialize(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			manager := database.NewMigrationManager(db)
			if !statusOnly {
				if err := manager.RunMigrations(); err != nil {
					return err
				}
				if err := database.VerifyIntegrity(db); err != nil {
					return fmt.Errorf("integrity check failed: %w", err)
				}
			}

			status, err := manager.GetMigrationStatus()
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}
			for _, s := range status {
				fmt.Fprintf(cmd.OutOrStdout(), "applied  %-32s %s\n", s.Name, s.ExecutedAt.Format("2006-01-02 15:04:05"))
			}

			pending, err := manager.Pending()
			if err != nil {
				return err
			}
			for _, name := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending  %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "only print migration status")
	return cmd
}

func newSweepCommand() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Open listings for crops whose harvest date is today (or --date)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			day := a.crops.Today()
			if date != "" {
				day, err = models.ParseDate(date)
				if err != nil {
					return err
				}
			}

			created, err := a.crops.SweepHarvestReady(ctx, day)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: opened %d transaction(s)\n", day, len(created))
			for _, tx := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "  planted crop %d -> transaction %d\n", tx.PlantedCropID, tx.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "harvest date to sweep (YYYY-MM-DD)")
	return cmd
}
