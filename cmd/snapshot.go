/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/db"
	"github.com/tbledger/apiserver/internal/storage"
	"github.com/tbledger/apiserver/internal/store"
)

var snapshotList bool

// snapshotCmd archives the trial balance to object storage.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Store an xlsx snapshot of the trial balance in object storage",
	Long: `Store an xlsx snapshot of the trial balance in the configured bucket. Usage:

	tbledger snapshot
	tbledger snapshot --list
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		ctx := cmd.Context()

		backend, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		snapshots := storage.NewSnapshots(backend, cfg.Storage.SnapshotPrefix)

		if snapshotList {
			keys, err := snapshots.List(ctx)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}

		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		accounts, err := store.NewAccountRepository(conn).List(ctx)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		key, err := snapshots.Save(ctx, accounts, time.Now())
		if err != nil {
			return err
		}
		logger.Info("snapshot stored",
			zap.String("bucket", backend.Bucket()),
			zap.String("key", key),
			zap.Int("accounts", len(accounts)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolVar(&snapshotList, "list", false, "list stored snapshots instead of creating one")
}
