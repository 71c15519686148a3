// bergeries.go — обработчики bergeries и их участников.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

// ListBergeries возвращает видимые bergeries.
func (h *APIHandler) ListBergeries(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	items, err := h.bergeries.List(r.Context(), a, lq.scopeParams())
	if err != nil {
		h.writeServiceError(w, err, "list bergeries")
		return
	}
	out := make([]BergerieResponse, 0, len(items))
	for _, b := range items {
		out = append(out, mapBergerie(b))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// CreateBergerie создаёт bergerie; без ownerId владельцем становится актор.
func (h *APIHandler) CreateBergerie(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.BergerieInput
	if !decodeJSON(w, r, &body) {
		return
	}
	b, err := h.bergeries.Create(r.Context(), a, body)
	if err != nil {
		h.writeServiceError(w, err, "create bergerie")
		return
	}
	writeJSON(w, http.StatusCreated, mapBergerie(b))
}

// ListBergerieMembres возвращает участников bergerie.
func (h *APIHandler) ListBergerieMembres(w http.ResponseWriter, r *http.Request, bergerieID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.bergeries.ListMembres(r.Context(), a, bergerieID)
	if err != nil {
		h.writeServiceError(w, err, "list bergerie membres")
		return
	}
	out := make([]BergerieMembreResponse, 0, len(items))
	for _, m := range items {
		out = append(out, mapBergerieMembre(m))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// AddBergerieMembre добавляет участника в bergerie.
func (h *APIHandler) AddBergerieMembre(w http.ResponseWriter, r *http.Request, bergerieID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.BergerieMembreInput
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := h.bergeries.AddMembre(r.Context(), a, bergerieID, body)
	if err != nil {
		h.writeServiceError(w, err, "add bergerie membre")
		return
	}
	writeJSON(w, http.StatusCreated, mapBergerieMembre(m))
}
