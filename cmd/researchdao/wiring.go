package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"researchdao/internal/config"
	"researchdao/internal/indexer"
	"researchdao/internal/metrics"
	"researchdao/internal/notify"
	"researchdao/internal/storage"
	"researchdao/internal/storage/postgres"
)

// stack holds the shared collaborators of serve and backfill.
type stack struct {
	store    storage.Gateway
	journal  *storage.JsonlJournal
	notifier *notify.Redis
	metrics  *metrics.Collector
	engine   *indexer.Engine
}

func (s *stack) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.notifier != nil {
		_ = s.notifier.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func buildStack(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stack, error) {
	st := &stack{metrics: metrics.NewCollector("researchdao")}

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		st.store = pg
		logger.Info("storage ready", zap.String("backend", "postgres"))
	} else {
		st.store = storage.NewMemoryStore()
		logger.Warn("pg-dsn not set, using in-memory storage")
	}

	factory, err := indexer.ParseAddress(cfg.FactoryAddress)
	if err != nil {
		st.Close()
		return nil, err
	}

	deps := indexer.Deps{
		Store:   st.store,
		Metrics: st.metrics,
		Logger:  logger.Named("indexer"),
	}
	switch cfg.Cursor {
	case config.CursorStore:
		deps.Cursor = st.store
	case config.CursorFile:
		deps.Cursor = indexer.NewFileCursor(cfg.Checkpoint)
	}
	if cfg.Journal != "" {
		st.journal = storage.NewJsonlJournal(cfg.Journal, cfg.JournalMaxMB<<20)
		deps.Journal = st.journal
	}
	if cfg.RedisAddr != "" {
		n, err := notify.NewRedis(ctx, notify.RedisConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.RedisChannelPrefix,
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		st.notifier = n
		deps.Notifier = n
	}

	st.engine, err = indexer.NewEngine(indexer.Config{
		RPCURL:       cfg.RPCURL,
		Factory:      factory,
		PollInterval: cfg.PollInterval,
		BackfillFrom: cfg.BackfillFrom,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		CursorName:   cfg.CursorName,
	}, deps)
	if err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
