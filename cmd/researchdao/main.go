package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "researchdao",
		Short:        "Research DAO platform backend",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the blockchain indexer",
		RunE:  runServe,
	}

	serveCmd.Flags().String("http-addr", ":5000", "HTTP listen address")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().Bool("auto-start", true, "start indexing after startup-delay")
	serveCmd.Flags().Duration("startup-delay", 5*time.Second, "delay before the indexer starts")
	serveCmd.Flags().String("auth-platform", "ResearchDAO", "platform name in the signed login message")
	serveCmd.Flags().Duration("auth-max-age", 5*time.Minute, "maximum age of a signed login message")
	serveCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed CORS origins (comma-separated)")
	serveCmd.Flags().Float64("rate-limit", 5, "mutating requests per second per client")
	serveCmd.Flags().Int("rate-burst", 10, "rate limiter burst")
	serveCmd.Flags().String("dedup-currency", "ETH", "database currency eligible for portfolio dedup")
	serveCmd.Flags().String("dedup-tolerance", "0.001", "amount difference below which entries are duplicates")
	serveCmd.Flags().String("redis-addr", "", "redis address for event notifications (empty disables)")
	serveCmd.Flags().String("redis-password", "", "redis password")
	serveCmd.Flags().Int("redis-db", 0, "redis database")
	serveCmd.Flags().String("redis-channel-prefix", "researchdao", "redis pub/sub channel prefix")
	addIndexerFlags(serveCmd)

	root.AddCommand(serveCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill contract events once and exit",
		RunE:  runBackfill,
	}
	addIndexerFlags(backfillCmd)

	root.AddCommand(backfillCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().Int("steps", 0, "migration steps (0 applies all, negative rolls back)")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addIndexerFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "http://127.0.0.1:8545", "Ethereum RPC URL")
	cmd.Flags().String("factory-address", "", "DAO factory contract address")
	cmd.Flags().Duration("poll-interval", 15*time.Second, "poll interval")
	cmd.Flags().Uint64("backfill-from", 0, "first block to backfill when no cursor exists")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs batch")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("cursor", "store", "cursor persistence (store, file, none)")
	cmd.Flags().String("cursor-name", "research-dao-indexer", "cursor name")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file for the file cursor")
	cmd.Flags().String("journal", "", "optional JSONL journal of stored events")
	cmd.Flags().Int64("journal-max-mb", 64, "journal size in MiB before rotation")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (empty uses the in-memory store)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
