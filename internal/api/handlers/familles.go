// familles.go — обработчики секторов, Familles d'Impact и их участников.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

// ListSecteurs возвращает видимые секторы.
func (h *APIHandler) ListSecteurs(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	items, err := h.familles.ListSecteurs(r.Context(), a, service.ListParams{
		Params: lq.scopeParams(),
		Page:   lq.page(),
	})
	if err != nil {
		h.writeServiceError(w, err, "list secteurs")
		return
	}
	out := make([]SecteurResponse, 0, len(items))
	for _, s := range items {
		out = append(out, mapSecteur(s))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// CreateSecteur создаёт сектор.
func (h *APIHandler) CreateSecteur(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.SecteurInput
	if !decodeJSON(w, r, &body) {
		return
	}
	s, err := h.familles.CreateSecteur(r.Context(), a, body)
	if err != nil {
		h.writeServiceError(w, err, "create secteur")
		return
	}
	writeJSON(w, http.StatusCreated, mapSecteur(s))
}

// ListFamilles возвращает видимые FI. Поддерживает sectorId и fiId.
func (h *APIHandler) ListFamilles(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	items, err := h.familles.ListFamilles(r.Context(), a, service.ListParams{Params: lq.scopeParams(), Page: lq.page()})
	if err != nil {
		h.writeServiceError(w, err, "list familles")
		return
	}
	out := make([]FamilleResponse, 0, len(items))
	for _, f := range items {
		out = append(out, mapFamille(f))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// GetFamille возвращает FI.
func (h *APIHandler) GetFamille(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	f, err := h.familles.GetFamille(r.Context(), a, id)
	if err != nil {
		h.writeServiceError(w, err, "get famille")
		return
	}
	writeJSON(w, http.StatusOK, mapFamille(f))
}

// CreateFamille создаёт FI в секторе.
func (h *APIHandler) CreateFamille(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.FamilleInput
	if !decodeJSON(w, r, &body) {
		return
	}
	f, err := h.familles.CreateFamille(r.Context(), a, body)
	if err != nil {
		h.writeServiceError(w, err, "create famille")
		return
	}
	writeJSON(w, http.StatusCreated, mapFamille(f))
}

// UpdateFamille частично изменяет FI.
func (h *APIHandler) UpdateFamille(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body FamilleUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	f, err := h.familles.UpdateFamille(r.Context(), a, id, service.FamillePatch{
		Name:      body.Name,
		SecteurID: body.SecteurID,
		PiloteID:  body.PiloteID,
		PiloteIDs: body.PiloteIDs,
	})
	if err != nil {
		h.writeServiceError(w, err, "update famille")
		return
	}
	writeJSON(w, http.StatusOK, mapFamille(f))
}

// ListMembres возвращает участников FI.
func (h *APIHandler) ListMembres(w http.ResponseWriter, r *http.Request, familleID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.familles.ListMembres(r.Context(), a, familleID)
	if err != nil {
		h.writeServiceError(w, err, "list membres")
		return
	}
	out := make([]MembreResponse, 0, len(items))
	for _, m := range items {
		out = append(out, mapMembre(m))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// AddMembre добавляет участника в FI.
func (h *APIHandler) AddMembre(w http.ResponseWriter, r *http.Request, familleID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.MembreInput
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := h.familles.AddMembre(r.Context(), a, familleID, body)
	if err != nil {
		h.writeServiceError(w, err, "add membre")
		return
	}
	writeJSON(w, http.StatusCreated, mapMembre(m))
}

// RemoveMembre удаляет участника FI вместе с его отметками.
func (h *APIHandler) RemoveMembre(w http.ResponseWriter, r *http.Request, membreID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.familles.RemoveMembre(r.Context(), a, membreID)
	if err != nil {
		h.writeServiceError(w, err, "remove membre")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
