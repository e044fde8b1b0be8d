package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"researchdao/internal/api"
	"researchdao/internal/auth"
	"researchdao/internal/config"
	"researchdao/internal/portfolio"
)

func runServe(cmd *cobra.Command, _ []string) error {
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

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Options{
		Store:       st.store,
		Indexer:     st.engine,
		Verifier:    auth.NewVerifier(cfg.AuthPlatform, cfg.AuthMaxAge),
		Dedup:       portfolio.DedupRule{Currency: cfg.DedupCurrency, Tolerance: cfg.DedupTolerance},
		Metrics:     st.metrics,
		Logger:      logger.Named("api"),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   rate.Limit(cfg.RateLimit),
		RateBurst:   cfg.RateBurst,
		RPCURL:      cfg.RPCURL,
	})
	defer server.Close()
	httpServer := server.HTTPServer(cfg.HTTPAddr)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if connected && cfg.AutoStart {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.StartupDelay):
			}
			st.engine.StartIndexing(cfg.PollInterval)
		}()
	} else if !connected {
		logger.Warn("indexer not started, serving without blockchain data", zap.String("rpc", cfg.RPCURL))
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			st.engine.StopIndexing()
			<-st.engine.Done()
			return err
		}
	}

	st.engine.StopIndexing()
	<-st.engine.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete", zap.Uint64("current_block", st.engine.CurrentBlock()))
	return nil
}
