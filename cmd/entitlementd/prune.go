package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

var pruneUsageCmd = &cobra.Command{
	Use:   "prune-usage",
	Short: "Delete usage records and processed webhook events past retention once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadAppConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(ctx); err != nil {
				log.Error("cleanup failed", logger.Error(err))
			}
		}()

		if err := a.connect(ctx); err != nil {
			return err
		}
		if err := a.openStores(); err != nil {
			return err
		}

		n, err := a.newPruner().PruneOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d usage records\n", n)
		return nil
	},
}
