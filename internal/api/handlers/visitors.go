// visitors.go — обработчики посетителей: список, карточка, создание,
// изменение, удаление с каскадом, выгрузка XLSX и остановка сопровождения.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// visitorListParams разбирает общие параметры и флаг stopped.
func visitorListParams(r *http.Request) (service.VisitorListParams, error) {
	q := r.URL.Query()
	lq, err := bindListQuery(q)
	if err != nil {
		return service.VisitorListParams{}, err
	}
	var stopped *bool
	if err := runtime.BindQueryParameter("form", true, false, "stopped", q, &stopped); err != nil {
		return service.VisitorListParams{}, err
	}
	return service.VisitorListParams{
		Params:  lq.scopeParams(),
		Stopped: stopped,
		Page:    lq.page(),
	}, nil
}

// ListVisitors возвращает видимых посетителей (GET /api/v1/visitors).
func (h *APIHandler) ListVisitors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	params, err := visitorListParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	page, err := h.visitors.List(r.Context(), a, params)
	if err != nil {
		h.writeServiceError(w, err, "list visitors")
		return
	}
	writeJSON(w, http.StatusOK, mapVisitorPage(page))
}

// ListStoppedVisitors возвращает посетителей с остановленным сопровождением.
func (h *APIHandler) ListStoppedVisitors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	page, err := h.visitors.ListStopped(r.Context(), a, service.VisitorListParams{
		Params: lq.scopeParams(),
		Page:   lq.page(),
	})
	if err != nil {
		h.writeServiceError(w, err, "list stopped visitors")
		return
	}
	writeJSON(w, http.StatusOK, mapVisitorPage(page))
}

// GetVisitor возвращает спроецированную карточку посетителя.
func (h *APIHandler) GetVisitor(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := h.visitors.Get(r.Context(), a, id)
	if err != nil {
		h.writeServiceError(w, err, "get visitor")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateVisitor создаёт посетителя (POST /api/v1/visitors).
func (h *APIHandler) CreateVisitor(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body VisitorCreate
	if !decodeJSON(w, r, &body) {
		return
	}
	rec, err := h.visitors.Create(r.Context(), a, body.input())
	if err != nil {
		h.writeServiceError(w, err, "create visitor")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateVisitor частично изменяет посетителя.
func (h *APIHandler) UpdateVisitor(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body VisitorUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	rec, err := h.visitors.Update(r.Context(), a, id, body.patch())
	if err != nil {
		h.writeServiceError(w, err, "update visitor")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteVisitor удаляет посетителя вместе с зависимыми записями.
func (h *APIHandler) DeleteVisitor(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.visitors.Delete(r.Context(), a, id)
	if err != nil {
		h.writeServiceError(w, err, "delete visitor")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportVisitors отдаёт видимых посетителей в XLSX.
// Колонки совпадают с проекцией роли актора.
func (h *APIHandler) ExportVisitors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	params, err := visitorListParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	data, err := h.visitors.Export(r.Context(), a, params)
	if err != nil {
		h.writeServiceError(w, err, "export visitors")
		return
	}
	filename := fmt.Sprintf("visitors-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ScanStoppedVisitors запускает сканирование остановки сопровождения вручную.
func (h *APIHandler) ScanStoppedVisitors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.tracking.Scan(r.Context(), a)
	if err != nil {
		h.writeServiceError(w, err, "scan stopped visitors")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
