package main

import (
	"github.com/spf13/cobra"

	"researchdao/internal/config"
	"researchdao/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMigrate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return postgres.Migrate(cfg.PGDSN, cfg.Steps, logger)
}
