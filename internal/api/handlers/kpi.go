// kpi.go — обработчики KPI Discipolat. Вид субъекта ({kind}) — visitor
// или bergerie_membre; неизвестный вид отклоняется сервисом.
package handlers

import (
	"net/http"

	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
)

// ListKpiTables возвращает версии таблиц весов и текущую версию.
func (h *APIHandler) ListKpiTables(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	current, tables, err := h.kpi.Tables(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list kpi tables")
		return
	}
	if tables == nil {
		tables = []kpi.Table{}
	}
	writeJSON(w, http.StatusOK, KpiTablesResponse{Current: current, Tables: tables})
}

// ListKpiStatuses возвращает статусы всех видимых субъектов вида.
func (h *APIHandler) ListKpiStatuses(w http.ResponseWriter, r *http.Request, kind model.SubjectKind) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.kpi.ListStatuses(r.Context(), a, kind)
	if err != nil {
		h.writeServiceError(w, err, "list kpi statuses")
		return
	}
	out := make([]KpiSubjectStatusResponse, 0, len(items))
	for _, s := range items {
		out = append(out, KpiSubjectStatusResponse{
			SubjectID: s.SubjectID,
			Name:      s.Name,
			Status:    mapKpiStatus(s.Status),
		})
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// GetKpiHistory возвращает историю субъекта и вычисленный статус.
func (h *APIHandler) GetKpiHistory(w http.ResponseWriter, r *http.Request, kind model.SubjectKind, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	hist, err := h.kpi.History(r.Context(), a, kind, id)
	if err != nil {
		h.writeServiceError(w, err, "get kpi history")
		return
	}
	writeJSON(w, http.StatusOK, mapKpiHistory(hist))
}

// SetKpiManualStatus задаёт ручной статус; status: null снимает его.
func (h *APIHandler) SetKpiManualStatus(w http.ResponseWriter, r *http.Request, kind model.SubjectKind, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body ManualStatusRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	hist, err := h.kpi.SetManualStatus(r.Context(), a, kind, id, body.Status, body.Comment)
	if err != nil {
		h.writeServiceError(w, err, "set kpi manual status")
		return
	}
	writeJSON(w, http.StatusOK, mapKpiHistory(hist))
}

// GetKpiMonth возвращает запись за месяц или запись по умолчанию.
func (h *APIHandler) GetKpiMonth(w http.ResponseWriter, r *http.Request, kind model.SubjectKind, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	view, err := h.kpi.Get(r.Context(), a, kind, id, monthParam(r))
	if err != nil {
		h.writeServiceError(w, err, "get kpi month")
		return
	}
	writeJSON(w, http.StatusOK, mapKpiRecord(view.Record, view.Current))
}

// SaveKpiMonth сохраняет индикаторы за месяц по текущей таблице весов.
func (h *APIHandler) SaveKpiMonth(w http.ResponseWriter, r *http.Request, kind model.SubjectKind, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body kpi.Indicators
	if !decodeJSON(w, r, &body) {
		return
	}
	view, err := h.kpi.Save(r.Context(), a, kind, id, monthParam(r), body)
	if err != nil {
		h.writeServiceError(w, err, "save kpi month")
		return
	}
	writeJSON(w, http.StatusOK, mapKpiRecord(view.Record, view.Current))
}
