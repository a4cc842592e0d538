package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SIMULATOR"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen           string
	Chain            string
	RPCURL           string
	PoolsFile        string
	PollInterval     time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	QueueSize        int
	SubscriberBuffer int
	LogLevel         string
	LogFile          string
	ReplayFile       string
	RecordFile       string
	JSONLOut         string
	PGDSN            string
	Redis            RedisConfig
}

// RedisConfig configures the optional Redis export sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":3000")
	v.SetDefault("chain", "ethereum")
	v.SetDefault("pools-file", "./pools.yaml")
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("queue-size", 32)
	v.SetDefault("subscriber-buffer", 100)
	v.SetDefault("log-level", "info")
	v.SetDefault("redis-db", 0)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:           v.GetString("listen"),
		Chain:            strings.ToLower(strings.TrimSpace(v.GetString("chain"))),
		RPCURL:           v.GetString("rpc"),
		PoolsFile:        v.GetString("pools-file"),
		PollInterval:     v.GetDuration("poll-interval"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		QueueSize:        v.GetInt("queue-size"),
		SubscriberBuffer: v.GetInt("subscriber-buffer"),
		LogLevel:         v.GetString("log-level"),
		LogFile:          v.GetString("log-file"),
		ReplayFile:       v.GetString("replay-file"),
		RecordFile:       v.GetString("record-file"),
		JSONLOut:         v.GetString("jsonl-out"),
		PGDSN:            v.GetString("pg-dsn"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
		},
	}

	// Per-chain endpoint, e.g. SIMULATOR_ETHEREUM_RPC or ethereum-rpc in the file.
	if cfg.RPCURL == "" && cfg.Chain != "" {
		cfg.RPCURL = v.GetString(cfg.Chain + "-rpc")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be positive, got %d", c.QueueSize)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber-buffer must be positive, got %d", c.SubscriberBuffer)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
