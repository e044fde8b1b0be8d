package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RESEARCHDAO"

// Cursor modes select where the indexer persists its block cursor.
const (
	CursorStore = "store"
	CursorFile  = "file"
	CursorNone  = "none"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	PGDSN           string

	RPCURL         string
	FactoryAddress string
	PollInterval   time.Duration
	BackfillFrom   uint64
	BatchSize      uint64
	MaxRetries     int
	RetryBackoff   time.Duration
	AutoStart      bool
	StartupDelay   time.Duration
	Cursor         string
	CursorName     string
	Checkpoint     string
	Journal        string
	JournalMaxMB   int64

	AuthPlatform string
	AuthMaxAge   time.Duration

	CORSOrigins []string
	RateLimit   float64
	RateBurst   int

	DedupCurrency  string
	DedupTolerance decimal.Decimal

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string
}

// MigrateConfig holds settings for the migrate command.
type MigrateConfig struct {
	PGDSN    string
	Steps    int
	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("http-addr", ":5000")
		v.SetDefault("shutdown-timeout", 10*time.Second)
		v.SetDefault("rpc", "http://127.0.0.1:8545")
		v.SetDefault("poll-interval", 15*time.Second)
		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("auto-start", true)
		v.SetDefault("startup-delay", 5*time.Second)
		v.SetDefault("cursor", CursorStore)
		v.SetDefault("cursor-name", "research-dao-indexer")
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("journal-max-mb", int64(64))
		v.SetDefault("auth-platform", "ResearchDAO")
		v.SetDefault("auth-max-age", 5*time.Minute)
		v.SetDefault("cors-origins", []string{"*"})
		v.SetDefault("rate-limit", 5.0)
		v.SetDefault("rate-burst", 10)
		v.SetDefault("dedup-currency", "ETH")
		v.SetDefault("dedup-tolerance", "0.001")
		v.SetDefault("redis-channel-prefix", "researchdao")
	})
	if err != nil {
		return Config{}, err
	}

	tolerance, err := decimal.NewFromString(strings.TrimSpace(v.GetString("dedup-tolerance")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid dedup-tolerance: %w", err)
	}

	cfg := Config{
		HTTPAddr:        v.GetString("http-addr"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		LogLevel:        v.GetString("log-level"),
		PGDSN:           v.GetString("pg-dsn"),

		RPCURL:         strings.TrimSpace(v.GetString("rpc")),
		FactoryAddress: strings.TrimSpace(v.GetString("factory-address")),
		PollInterval:   v.GetDuration("poll-interval"),
		BackfillFrom:   v.GetUint64("backfill-from"),
		BatchSize:      v.GetUint64("batch-size"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		AutoStart:      v.GetBool("auto-start"),
		StartupDelay:   v.GetDuration("startup-delay"),
		Cursor:         strings.ToLower(v.GetString("cursor")),
		CursorName:     v.GetString("cursor-name"),
		Checkpoint:     v.GetString("checkpoint"),
		Journal:        v.GetString("journal"),
		JournalMaxMB:   v.GetInt64("journal-max-mb"),

		AuthPlatform: v.GetString("auth-platform"),
		AuthMaxAge:   v.GetDuration("auth-max-age"),

		CORSOrigins: getStringSlice(v, "cors-origins"),
		RateLimit:   v.GetFloat64("rate-limit"),
		RateBurst:   v.GetInt("rate-burst"),

		DedupCurrency:  strings.ToUpper(v.GetString("dedup-currency")),
		DedupTolerance: tolerance,

		RedisAddr:          v.GetString("redis-addr"),
		RedisPassword:      v.GetString("redis-password"),
		RedisDB:            v.GetInt("redis-db"),
		RedisChannelPrefix: v.GetString("redis-channel-prefix"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	switch c.Cursor {
	case CursorStore, CursorFile, CursorNone:
	default:
		return fmt.Errorf("invalid cursor mode %q (store, file, none)", c.Cursor)
	}
	if c.Cursor == CursorFile && c.Checkpoint == "" {
		return fmt.Errorf("checkpoint path is required for file cursor")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.DedupTolerance.IsNegative() {
		return fmt.Errorf("dedup tolerance must not be negative")
	}
	return nil
}

// LoadMigrate loads the settings of the migrate command.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return MigrateConfig{}, err
	}
	cfg := MigrateConfig{
		PGDSN:    v.GetString("pg-dsn"),
		Steps:    v.GetInt("steps"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.PGDSN == "" {
		return MigrateConfig{}, fmt.Errorf("pg-dsn is required")
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
