package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"researchdao/internal/config"
)

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	connected, err := st.engine.Initialize(ctx)
	if err != nil {
		return err
	}
	if !connected {
		return fmt.Errorf("rpc %s unavailable", cfg.RPCURL)
	}

	logger.Info("backfill start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", cfg.FactoryAddress),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("cursor", cfg.Cursor),
	)
	if err := st.engine.Backfill(ctx); err != nil {
		return err
	}
	logger.Info("backfill complete", zap.Uint64("current_block", st.engine.CurrentBlock()))
	return nil
}
