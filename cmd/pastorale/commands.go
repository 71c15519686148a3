package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/pastorale/internal/config"
	"github.com/bigkaa/pastorale/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить (или откатить) миграции БД",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg)
			if down {
				return database.MigrateDown(cfg, logger)
			}
			return database.Migrate(cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Откатить все миграции")
	return cmd
}

func newSeedKpiTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-kpi-tables",
		Short: "Записать встроенные таблицы весов KPI в БД",
		Long: `Записывает версии из встроенного реестра tables.yaml.
Существующие версии не перезаписываются: записи KPI хранят версию,
по которой они посчитаны.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			// Параметры кэша не загружаются LoadDatabase
			cfg.KpiTableCacheSize = 1
			logger := config.SetupLogger(cfg)

			pool, err := database.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.kpiTables.Seed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "добавлено таблиц: %d\n", n)
			return nil
		},
	}
}

func newStoppedScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stopped-scan",
		Short: "Однократно просканировать остановку сопровождения",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg)

			pool, err := database.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.services.Tracking.Run(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Сканирование завершено",
				slog.Int("scanned", res.Scanned),
				slog.Int("stopped", res.Stopped),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
