package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/video-share-api/internal/database"
	"github.com/iliyamo/video-share-api/internal/repository"
	"github.com/iliyamo/video-share-api/internal/service"
)

// promoteCmd is the only way to create an admin.
var promoteCmd = &cobra.Command{
	Use:     "promote <username>",
	Short:   "Give the admin role to an existing user.",
	Example: "video-share-api promote alice",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		accounts := service.NewAccounts(service.Deps{
			Users:     repository.NewUserRepo(db),
			Log:       log,
			DBTimeout: cfg.DBTimeout,
		})
		if err := accounts.Promote(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", args[0])
		return nil
	},
}
