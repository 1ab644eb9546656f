/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/internal/db"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/store"
	"github.com/tbledger/apiserver/types"
)

var grantOpts struct {
	username  string
	role      string
	revoke    bool
	superuser bool
}

// grantCmd manages group membership and the superuser flag.
var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add or remove a user's role or superuser flag",
	Long: `Add or remove a user's role or superuser flag. Usage:

	tbledger grant --username alice --role all_permissions
	tbledger grant --username alice --role new_hire_permissions --revoke
	tbledger grant --username alice --superuser
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if grantOpts.role == "" && !grantOpts.superuser {
			return errors.New("one of --role or --superuser is required")
		}

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		conn, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn), cfg.Auth.BcryptCost)
		ctx := cmd.Context()

		if grantOpts.role != "" {
			role, err := types.ParseRole(grantOpts.role)
			if err != nil {
				return err
			}
			if grantOpts.revoke {
				err = users.Revoke(ctx, grantOpts.username, role)
			} else {
				err = users.Grant(ctx, grantOpts.username, role)
			}
			if err != nil {
				return fmt.Errorf("update role: %w", err)
			}
			logger.Info("role updated",
				zap.String("username", grantOpts.username),
				zap.String("role", string(role)),
				zap.Bool("revoked", grantOpts.revoke),
			)
		}

		if grantOpts.superuser {
			if err := users.SetSuperuser(ctx, grantOpts.username, !grantOpts.revoke); err != nil {
				return fmt.Errorf("update superuser: %w", err)
			}
			logger.Info("superuser updated",
				zap.String("username", grantOpts.username),
				zap.Bool("superuser", !grantOpts.revoke),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().StringVar(&grantOpts.username, "username", "", "user to update")
	grantCmd.Flags().StringVar(&grantOpts.role, "role", "", "role (group) name: all_permissions or new_hire_permissions")
	grantCmd.Flags().BoolVar(&grantOpts.revoke, "revoke", false, "remove instead of add")
	grantCmd.Flags().BoolVar(&grantOpts.superuser, "superuser", false, "set the superuser flag (cleared with --revoke)")
	_ = grantCmd.MarkFlagRequired("username")
}
