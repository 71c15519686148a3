package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/pastorale/api"
	"github.com/bigkaa/pastorale/internal/api/handlers"
	"github.com/bigkaa/pastorale/internal/api/middleware"
	"github.com/bigkaa/pastorale/internal/config"
	"github.com/bigkaa/pastorale/internal/database"
	"github.com/bigkaa/pastorale/internal/server"
	"github.com/bigkaa/pastorale/internal/service"
)

const serviceID = "pastorale"

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Не применять миграции при старте")
	return cmd
}

func runServe(ctx context.Context, skipMigrations bool) error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Pastorale запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("PA_DEPHEALTH_GROUP") == "" {
		logger.Warn("PA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	if !skipMigrations {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Репозитории и сервисы
	a, err := newApp(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// 5.1 Встроенные таблицы KPI: записи kpi_records ссылаются на kpi_tables
	if _, err := a.kpiTables.Seed(ctx); err != nil {
		return err
	}

	// 6. Readiness checkers (PostgreSQL + JWKS IdP)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACert, cfg.JWKSClientTimeout)
	if err != nil {
		return err
	}
	apiHandler := handlers.NewAPIHandler(handlers.NewHealthHandler(pgChecker, idpChecker).WithKpiTables(a.kpiTables), a.services, logger)

	// 7. JWT middleware: токен IdP → профиль → актор
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWKSCACert,
		cfg.JWTIssuer,
		a.services.Users,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		return err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 8. Валидация запросов по OpenAPI-контракту
	var validator *middleware.OpenAPIValidator
	if cfg.OpenAPIValidation {
		validator, err = middleware.NewOpenAPIValidator(api.Spec, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("Валидация запросов по OpenAPI отключена")
	}

	// 9. Фоновые задачи
	if cfg.StoppedScanInterval > 0 {
		a.services.Tracking.Start(ctx, cfg.StoppedScanInterval)
		defer a.services.Tracking.Stop()
	}

	// 9.1 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		NotifyURL:     cfg.NotifyURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
	}

	// 10. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validator)
	return srv.Run(ctx)
}
