package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit log entries older than the retention window",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (defaults to RETENTION_DAYS)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	days := cfg.RetentionDays
	if cmd.Flags().Changed("days") {
		days = pruneDays
	}
	if days <= 0 {
		return fmt.Errorf("prune: retention must be at least one day, got %d", days)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := store.DeleteAuditLogsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	logger.Info("audit logs pruned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d audit log entries older than %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
