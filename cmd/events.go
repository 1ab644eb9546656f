/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/mq"
	"github.com/tbledger/apiserver/types"
)

// eventsCmd tails account change events from the configured broker.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log account change events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		ctx := cmd.Context()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer backend.Close()

		events := mq.NewAccountEvents(backend, cfg.MQ.Channel)
		err = events.Consume(ctx, func(ctx context.Context, event types.AccountEvent) error {
			logger.Info("account event",
				zap.String("type", string(event.Type)),
				zap.Ints("account_ids", event.AccountIDs),
				zap.Int("actor_id", event.ActorID),
				zap.Time("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
