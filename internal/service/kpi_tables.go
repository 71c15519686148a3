// kpi_tables.go — версии таблиц KPI: LRU-кэш движков поверх
// таблицы kpi_tables и встроенного реестра.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/repository"
)

// KpiTables — источник движков KPI по версии таблицы.
// Сначала ищет в БД, затем во встроенном реестре.
type KpiTables struct {
	repo     repository.KpiTableRepository
	registry *kpi.Registry
	current  string
	cache    *expirable.LRU[string, *kpi.Engine]
	logger   *slog.Logger
}

// NewKpiTables создаёт источник таблиц. Пустой current — текущая
// версия встроенного реестра.
func NewKpiTables(
	repo repository.KpiTableRepository,
	registry *kpi.Registry,
	current string,
	cacheSize int,
	ttl time.Duration,
	logger *slog.Logger,
) (*KpiTables, error) {
	if current == "" {
		current = registry.Current
	}
	if _, err := registry.Table(current); err != nil {
		return nil, fmt.Errorf("текущая таблица KPI: %w", err)
	}
	return &KpiTables{
		repo:     repo,
		registry: registry,
		current:  current,
		cache:    expirable.NewLRU[string, *kpi.Engine](cacheSize, nil, ttl),
		logger:   logger.With(slog.String("component", "kpi_tables")),
	}, nil
}

// CurrentVersion — версия, по которой считаются новые записи.
func (t *KpiTables) CurrentVersion() string {
	return t.current
}

// Current возвращает движок текущей версии.
func (t *KpiTables) Current(ctx context.Context) (*kpi.Engine, error) {
	return t.Engine(ctx, t.current)
}

// StoredState сообщает, записана ли текущая версия в kpi_tables.
// Кэш не используется: движок мог прийти из встроенного реестра.
func (t *KpiTables) StoredState(ctx context.Context) (string, bool, error) {
	_, err := t.repo.Get(ctx, t.current)
	switch {
	case err == nil:
		return t.current, true, nil
	case errors.Is(err, repository.ErrNotFound):
		return t.current, false, nil
	default:
		return t.current, false, fmt.Errorf("состояние таблицы KPI %s: %w", t.current, err)
	}
}

// Engine возвращает движок для версии таблицы.
func (t *KpiTables) Engine(ctx context.Context, version string) (*kpi.Engine, error) {
	if e, ok := t.cache.Get(version); ok {
		kpiTableCacheHits.Inc()
		return e, nil
	}
	kpiTableCacheMisses.Inc()

	table, err := t.load(ctx, version)
	if err != nil {
		return nil, err
	}
	e, err := kpi.NewEngine(table)
	if err != nil {
		return nil, fmt.Errorf("таблица KPI %s: %w", version, err)
	}
	t.cache.Add(version, e)
	return e, nil
}

func (t *KpiTables) load(ctx context.Context, version string) (kpi.Table, error) {
	stored, err := t.repo.Get(ctx, version)
	if err == nil {
		return *stored, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		t.logger.Warn("Таблица KPI недоступна в БД, используется встроенный реестр",
			slog.String("version", version),
			slog.String("error", err.Error()),
		)
	}
	table, regErr := t.registry.Table(version)
	if regErr != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return kpi.Table{}, regErr
		}
		return kpi.Table{}, fmt.Errorf("загрузка таблицы KPI %s: %w", version, err)
	}
	if errors.Is(err, repository.ErrNotFound) {
		// Записи KPI ссылаются на kpi_tables: встроенная версия,
		// которой нет в БД, записывается при первом обращении.
		if _, seedErr := t.repo.Seed(ctx, []kpi.Table{table}); seedErr != nil {
			t.logger.Warn("Не удалось записать таблицу KPI в БД",
				slog.String("version", version),
				slog.String("error", seedErr.Error()),
			)
		}
	}
	return table, nil
}

// Persist записывает встроенную версию таблицы в БД, если её там нет.
func (t *KpiTables) Persist(ctx context.Context, version string) error {
	table, err := t.registry.Table(version)
	if err != nil {
		return err
	}
	n, err := t.repo.Seed(ctx, []kpi.Table{table})
	if err != nil {
		return fmt.Errorf("запись таблицы KPI %s: %w", version, err)
	}
	if n > 0 {
		t.logger.Info("Таблица KPI записана в БД", slog.String("version", version))
	}
	return nil
}

// List возвращает все известные версии: сохранённые в БД
// и встроенные, отсутствующие в БД.
func (t *KpiTables) List(ctx context.Context) ([]kpi.Table, error) {
	stored, err := t.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список таблиц KPI: %w", err)
	}
	seen := make(map[string]bool, len(stored))
	for _, tb := range stored {
		seen[tb.Version] = true
	}
	out := stored
	for _, tb := range t.registry.Tables {
		if !seen[tb.Version] {
			out = append(out, tb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Seed записывает встроенные таблицы в БД. Существующие версии
// не перезаписываются.
func (t *KpiTables) Seed(ctx context.Context) (int, error) {
	n, err := t.repo.Seed(ctx, t.registry.Tables)
	if err != nil {
		return 0, fmt.Errorf("seed таблиц KPI: %w", err)
	}
	t.logger.Info("Таблицы KPI записаны",
		slog.Int("added", n),
		slog.Int("total", len(t.registry.Tables)),
	)
	return n, nil
}
