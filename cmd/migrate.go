package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the admin-unit and report schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.units.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate admin units")
		}
		if err := env.reports.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate reports")
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
