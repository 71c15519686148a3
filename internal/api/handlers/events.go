// events.go — обработчики мероприятий и ответов на приглашения.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

// ListEvents возвращает видимые мероприятия.
func (h *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	items, err := h.events.List(r.Context(), a, service.ListParams{
		Params: lq.scopeParams(),
		Page:   lq.page(),
	})
	if err != nil {
		h.writeServiceError(w, err, "list events")
		return
	}
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, mapEvent(e))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// CreateEvent создаёт мероприятие.
func (h *APIHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.EventInput
	if !decodeJSON(w, r, &body) {
		return
	}
	e, err := h.events.Create(r.Context(), a, body)
	if err != nil {
		h.writeServiceError(w, err, "create event")
		return
	}
	writeJSON(w, http.StatusCreated, mapEvent(e))
}

// DeleteEvent удаляет мероприятие вместе с ответами.
func (h *APIHandler) DeleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.events.Delete(r.Context(), a, id)
	if err != nil {
		h.writeServiceError(w, err, "delete event")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListRSVPs возвращает ответы на приглашение.
func (h *APIHandler) ListRSVPs(w http.ResponseWriter, r *http.Request, eventID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	items, err := h.events.ListRSVPs(r.Context(), a, eventID)
	if err != nil {
		h.writeServiceError(w, err, "list rsvps")
		return
	}
	out := make([]RSVPResponse, 0, len(items))
	for _, rsvp := range items {
		out = append(out, mapRSVP(rsvp))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// RecordRSVP сохраняет ответ на приглашение.
func (h *APIHandler) RecordRSVP(w http.ResponseWriter, r *http.Request, eventID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.RSVPInput
	if !decodeJSON(w, r, &body) {
		return
	}
	rsvp, err := h.events.RecordRSVP(r.Context(), a, eventID, body)
	if err != nil {
		h.writeServiceError(w, err, "record rsvp")
		return
	}
	writeJSON(w, http.StatusCreated, mapRSVP(rsvp))
}
