// health.go — health endpoints Pastorale.
// /health/live — процесс жив.
// /health/ready — PostgreSQL и JWKS IdP доступны, текущая таблица KPI
// записана в kpi_tables (без неё сохранение KPI упирается во внешний ключ).
// /metrics — Prometheus метрики.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/pastorale/internal/config"
)

const serviceName = "pastorale"

// Статусы проверок готовности.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// kpiCheckTimeout ограничивает запрос к kpi_tables из readiness.
const kpiCheckTimeout = 2 * time.Second

// ReadinessChecker — проверка готовности внешней зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// KpiTableState сообщает, записана ли текущая версия таблицы KPI в БД.
// Реализуется service.KpiTables.
type KpiTableState interface {
	StoredState(ctx context.Context) (version string, stored bool, err error)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	idpChecker  ReadinessChecker
	kpiTables   KpiTableState
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// nil-зависимость в readiness считается fail.
func NewHealthHandler(pgChecker, idpChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		idpChecker:  idpChecker,
		promHandler: promhttp.Handler(),
	}
}

// WithKpiTables добавляет в readiness состояние таблицы KPI.
func (h *HealthHandler) WithKpiTables(s KpiTableState) *HealthHandler {
	h.kpiTables = s
	return h
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// kpiTableInfo — версия, по которой сейчас считаются новые записи KPI.
type kpiTableInfo struct {
	Version string `json:"version"`
	Stored  bool   `json:"stored"`
}

type healthReadyResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
	Service   string        `json:"service"`
	KpiTable  *kpiTableInfo `json:"kpiTable,omitempty"`
	Checks    struct {
		PostgreSQL healthCheckResult  `json:"postgresql"`
		IdP        healthCheckResult  `json:"idp"`
		KpiTables  *healthCheckResult `json:"kpi_tables,omitempty"`
	} `json:"checks"`
}

// HealthLive — 200, пока процесс отвечает.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — 200 (ok/degraded) или 503 (fail).
// Отсутствие текущей таблицы KPI в БД — degraded: первое сохранение
// KPI запишет её само, но это сигнал, что seed при старте не прошёл.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
	resp.Checks.PostgreSQL = check(h.pgChecker)
	resp.Checks.IdP = check(h.idpChecker)
	statuses := []string{resp.Checks.PostgreSQL.Status, resp.Checks.IdP.Status}

	if h.kpiTables != nil {
		ctx, cancel := context.WithTimeout(r.Context(), kpiCheckTimeout)
		info, res := h.kpiTableCheck(ctx)
		cancel()
		resp.KpiTable = info
		resp.Checks.KpiTables = &res
		statuses = append(statuses, res.Status)
	}

	resp.Status = overallStatus(statuses...)
	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) kpiTableCheck(ctx context.Context) (*kpiTableInfo, healthCheckResult) {
	version, stored, err := h.kpiTables.StoredState(ctx)
	info := &kpiTableInfo{Version: version, Stored: stored}
	switch {
	case err != nil:
		return info, healthCheckResult{Status: statusDegraded, Message: "kpi_tables недоступна: " + err.Error()}
	case !stored:
		return info, healthCheckResult{Status: statusDegraded, Message: "таблица " + version + " не записана в kpi_tables"}
	default:
		return info, healthCheckResult{Status: statusOK}
	}
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus: любой fail — fail, иначе любой degraded — degraded.
func overallStatus(statuses ...string) string {
	result := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			result = statusDegraded
		}
	}
	return result
}
