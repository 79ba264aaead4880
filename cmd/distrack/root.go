package main

import (
	"context"
	"fmt"

	"distrack/internal/config"
	"distrack/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "distrack",
	Short:        "Discord server management bot: tickets, moderation and audit logs",
	SilenceUsage: true,
	RunE:         runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pruneCmd)
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return storage.NewMemory(), nil
	default:
		store, err := storage.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.ConnectTimeout())
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
		return store, nil
	}
}
