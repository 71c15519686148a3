// app.go — сборка репозиториев и сервисов, общая для serve и stopped-scan.
package main

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/pastorale/internal/api/handlers"
	"github.com/bigkaa/pastorale/internal/config"
	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/notify"
	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/service"
)

// app — сервисный слой поверх пула PostgreSQL.
type app struct {
	services  handlers.Services
	kpiTables *service.KpiTables
	closers   []func()
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*app, error) {
	// Repositories
	visitorRepo := repository.NewVisitorRepository(pool)
	secteurRepo := repository.NewSecteurRepository(pool)
	familleRepo := repository.NewFamilleRepository(pool)
	membreRepo := repository.NewMembreRepository(pool)
	bergerieRepo := repository.NewBergerieRepository(pool)
	bergerieMembreRepo := repository.NewBergerieMembreRepository(pool)
	presenceRepo := repository.NewPresenceRepository(pool)
	kpiRecordRepo := repository.NewKpiRecordRepository(pool)
	kpiTableRepo := repository.NewKpiTableRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	rsvpRepo := repository.NewRSVPRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	cascade := repository.NewCascade(repository.NewTxRunner(pool))

	// Таблицы весов KPI: встроенный реестр + БД, LRU-кэш движков
	registry, err := kpi.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	kpiTables, err := service.NewKpiTables(
		kpiTableRepo, registry,
		cfg.KpiTableVersion, cfg.KpiTableCacheSize, cfg.KpiTableCacheTTL,
		logger,
	)
	if err != nil {
		return nil, err
	}

	a := &app{kpiTables: kpiTables}

	// Уведомления об остановке сопровождения (опционально)
	var notifier service.Notifier = notify.Nop{}
	if cfg.NotifyURL != "" {
		client := notify.New(cfg.NotifyURL, cfg.NotifyTimeout, logger)
		a.closers = append(a.closers, client.Close)
		notifier = client
	} else {
		logger.Info("PA_NOTIFY_URL не задан, уведомления отключены")
	}

	a.services = handlers.Services{
		Visitors:  service.NewVisitorService(visitorRepo, cascade, logger),
		Familles:  service.NewFamilleService(secteurRepo, familleRepo, membreRepo, cascade, logger),
		Bergeries: service.NewBergerieService(bergerieRepo, bergerieMembreRepo, logger),
		Presences: service.NewPresenceService(
			presenceRepo, visitorRepo, familleRepo, membreRepo,
			bergerieRepo, bergerieMembreRepo,
			logger,
		),
		Fidelisation: service.NewFidelisationService(
			visitorRepo, familleRepo, membreRepo, presenceRepo,
			cfg.LoyaltyThreshold,
			logger,
		),
		Kpi: service.NewKpiService(kpiRecordRepo, kpiTables, logger,
			service.NewVisitorSubjects(visitorRepo),
			service.NewBergerieSubjects(bergerieRepo, bergerieMembreRepo),
		),
		Events:   service.NewEventService(eventRepo, rsvpRepo, cascade, logger),
		Users:    service.NewUserService(userRepo, logger),
		Tracking: service.NewTrackingService(visitorRepo, presenceRepo, notifier, cfg.StoppedAfterWeeks, logger),
	}
	return a, nil
}
