// Точка входа Pastorale — бэкенд сопровождения церковных общин.
// Команды: serve (HTTP API), migrate, seed-kpi-tables, stopped-scan.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/pastorale/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Команда завершилась с ошибкой", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pastorale",
		Short:         "Pastorale — учёт посетителей, FI, присутствия и KPI Discipolat",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedKpiTablesCmd(),
		newStoppedScanCmd(),
	)
	return root
}
