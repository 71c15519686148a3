package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики сервисного слоя.
var (
	accessDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pa_access_denied_total",
		Help: "Количество отказов в доступе по ресурсу и операции.",
	}, []string{"resource", "operation"})

	kpiSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pa_kpi_saves_total",
		Help: "Сохранения KPI: inserted — новая запись, overwrite — перезапись месяца.",
	}, []string{"result"})

	presenceSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pa_presence_saves_total",
		Help: "Сохранения отметок присутствия: inserted или overwrite.",
	}, []string{"result"})

	kpiTableCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pa_kpi_table_cache_hits_total",
		Help: "Попадания в LRU-кэш таблиц KPI.",
	})
	kpiTableCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pa_kpi_table_cache_misses_total",
		Help: "Промахи LRU-кэша таблиц KPI.",
	})

	trackingStoppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pa_tracking_stopped_total",
		Help: "Посетители, сопровождение которых остановлено сканированием.",
	})

	fidelisationDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pa_fidelisation_degraded_total",
		Help: "Ответы фиделизации без отметок присутствия (деградация).",
	})
)

func saveResult(inserted bool) string {
	if inserted {
		return "inserted"
	}
	return "overwrite"
}
