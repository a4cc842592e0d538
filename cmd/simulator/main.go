package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "simulator",
		Short:        "DEX pool state cache and swap simulation API",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feed, state cache and HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":3000", "HTTP listen address")
	serveCmd.Flags().String("chain", "ethereum", "chain name (selects <chain>-rpc when rpc is empty)")
	serveCmd.Flags().String("rpc", "", "RPC URL")
	serveCmd.Flags().String("pools-file", "./pools.yaml", "pools to track (yaml)")
	serveCmd.Flags().Duration("poll-interval", 2*time.Second, "head polling interval, also paces replay")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().Int("queue-size", 32, "block updates buffered between feed and cache")
	serveCmd.Flags().Int("subscriber-buffer", 100, "pending updates kept per subscriber")
	serveCmd.Flags().String("replay-file", "", "replay block updates from JSONL instead of polling the chain")
	serveCmd.Flags().String("record-file", "", "append every block update to a replayable JSONL file")
	serveCmd.Flags().String("jsonl-out", "", "append client updates to a JSONL file")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for the export sink")
	serveCmd.Flags().String("redis-addr", "", "Redis address for the export sink")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	addLogFlags(serveCmd)

	root.AddCommand(serveCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Drive the cache from a JSONL replay file and print the final snapshot",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("replay-file", "", "input block updates JSONL")
	replayCmd.Flags().Int("queue-size", 32, "block updates buffered between feed and cache")
	addLogFlags(replayCmd)

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "also write JSON logs to a rotating file")
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if file == "" {
		return logger, nil
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
