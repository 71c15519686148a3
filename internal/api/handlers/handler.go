// Пакет handlers — HTTP-обработчики Pastorale.
// handler.go — основной обработчик API: объединяет доменные обработчики
// и делегирует запросы в сервисный слой. Актор берётся из контекста,
// куда его кладёт JWT middleware.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/api/middleware"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/service"
	"github.com/bigkaa/pastorale/internal/validation"
)

// Services — сервисы, которые обслуживает API.
type Services struct {
	Visitors     *service.VisitorService
	Familles     *service.FamilleService
	Bergeries    *service.BergerieService
	Presences    *service.PresenceService
	Fidelisation *service.FidelisationService
	Kpi          *service.KpiService
	Events       *service.EventService
	Users        *service.UserService
	Tracking     *service.TrackingService
}

// APIHandler — основной обработчик API Pastorale.
type APIHandler struct {
	health       *HealthHandler
	visitors     *service.VisitorService
	familles     *service.FamilleService
	bergeries    *service.BergerieService
	presences    *service.PresenceService
	fidelisation *service.FidelisationService
	kpi          *service.KpiService
	events       *service.EventService
	users        *service.UserService
	tracking     *service.TrackingService
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:       health,
		visitors:     svc.Visitors,
		familles:     svc.Familles,
		bergeries:    svc.Bergeries,
		presences:    svc.Presences,
		fidelisation: svc.Fidelisation,
		kpi:          svc.Kpi,
		events:       svc.Events,
		users:        svc.Users,
		tracking:     svc.Tracking,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// actor возвращает актора запроса или пишет 401.
func actor(w http.ResponseWriter, r *http.Request) (*rbac.Actor, bool) {
	a := middleware.ActorFromContext(r.Context())
	if a == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil, false
	}
	return a, true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса; при ошибке пишет 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Причина отказа передаётся клиенту: тело ответа никогда не пустое.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		var fields validation.FieldErrors
		if errors.As(err, &fields) {
			apierrors.ValidationFields(w, err.Error(), fields.Map())
			return
		}
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+op)
	}
}

// listQuery — общие параметры списков.
type listQuery struct {
	City     *string  `json:"city,omitempty"`
	Months   []string `json:"month,omitempty"`
	SectorID *string  `json:"sectorId,omitempty"`
	FiID     *string  `json:"fiId,omitempty"`
	Limit    *int     `json:"limit,omitempty"`
	Offset   *int     `json:"offset,omitempty"`
}

// Синонимы параметров области, принятые у клиентов Pastorale.
var (
	cityParams  = []string{"city", "ville"}
	monthParams = []string{"month", "mois", "assigned_month"}
)

// bindListQuery разбирает параметры области (city/ville, month/mois/assigned_month,
// sectorId, fiId) и пагинацию. Разные значения синонимов города — ошибка:
// сузить область двумя городами сразу нельзя.
func bindListQuery(q url.Values) (listQuery, error) {
	var p listQuery
	for _, name := range cityParams {
		var city *string
		if err := runtime.BindQueryParameter("form", true, false, name, q, &city); err != nil {
			return p, err
		}
		if city == nil {
			continue
		}
		if p.City != nil && *p.City != *city {
			return p, fmt.Errorf("параметры %s противоречат друг другу: %q и %q",
				strings.Join(cityParams, "/"), *p.City, *city)
		}
		p.City = city
	}
	for _, name := range monthParams {
		var months []string
		if err := runtime.BindQueryParameter("form", true, false, name, q, &months); err != nil {
			return p, err
		}
		for _, m := range months {
			if !slices.Contains(p.Months, m) {
				p.Months = append(p.Months, m)
			}
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "sectorId", q, &p.SectorID); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "fiId", q, &p.FiID); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &p.Limit); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &p.Offset); err != nil {
		return p, err
	}
	return p, nil
}

// scopeParams — сужение области из параметров запроса.
func (p listQuery) scopeParams() scope.Params {
	return scope.Params{
		City:     deref(p.City),
		Months:   p.Months,
		SectorID: deref(p.SectorID),
		FiID:     deref(p.FiID),
	}
}

// page нормализует параметры пагинации.
func (p listQuery) page() service.Page {
	return service.Page{Limit: deref(p.Limit), Offset: deref(p.Offset)}.Normalize()
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
