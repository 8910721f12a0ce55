package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/entitlements/migrations"
	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadAppConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg).With(logger.Component("migrate"))

		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		return pg.Migrate(ctx, pool, pgCfg, migrations.FS, migrations.Dir, log)
	},
}
