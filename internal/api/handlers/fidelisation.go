// fidelisation.go — обработчики сводок фиделизации.
package handlers

import (
	"net/http"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

// VisitorFidelisation — недельная посещаемость видимых посетителей.
func (h *APIHandler) VisitorFidelisation(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lq, err := bindListQuery(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	from, to, err := bindPeriod(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	summary, err := h.fidelisation.Visitors(r.Context(), a, service.FidelisationQuery{
		Params: lq.scopeParams(),
		From:   from,
		To:     to,
	})
	if err != nil {
		h.writeServiceError(w, err, "visitor fidelisation")
		return
	}
	writeJSON(w, http.StatusOK, mapSummary(summary))
}

// FIFidelisation — сводка по FI; date включает режим point_in_time.
func (h *APIHandler) FIFidelisation(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lq, err := bindListQuery(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var date *openapi_types.Date
	if err := runtime.BindQueryParameter("form", true, false, "date", q, &date); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	summary, err := h.fidelisation.FI(r.Context(), a, service.FIQuery{
		Params: lq.scopeParams(),
		Date:   dateTime(date),
	})
	if err != nil {
		h.writeServiceError(w, err, "fi fidelisation")
		return
	}
	writeJSON(w, http.StatusOK, mapFISummary(summary))
}
