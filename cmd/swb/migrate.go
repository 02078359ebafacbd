package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Connects to the configured database and auto-migrates all tables. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to config file")
	return cmd
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s database (%d tables)\n", cfg.DB.Driver, len(db.AllModels()))
	return nil
}
