// presences.go — обработчики отметок присутствия.
package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/service"
)

// RecordPresence сохраняет отметку: 201 при вставке, 200 при перезаписи.
func (h *APIHandler) RecordPresence(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body PresenceCreate
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := h.presences.Record(r.Context(), a, service.PresenceInput{
		SubjectKind: model.SubjectKind(body.SubjectKind),
		SubjectID:   body.SubjectID,
		Date:        body.Date.Time,
		Type:        body.Type,
		Present:     body.Present,
	})
	if err != nil {
		h.writeServiceError(w, err, "record presence")
		return
	}
	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, mapPresence(res.Presence))
}

// ListPresences возвращает отметки одного вида субъектов.
func (h *APIHandler) ListPresences(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var kind string
	if err := runtime.BindQueryParameter("form", true, true, "kind", q, &kind); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	var subjectIDs []string
	if err := runtime.BindQueryParameter("form", true, false, "subjectId", q, &subjectIDs); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
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

	query := service.PresenceQuery{
		Kind:       model.SubjectKind(kind),
		Params:     lq.scopeParams(),
		SubjectIDs: subjectIDs,
		From:       from,
		To:         to,
	}

	items, err := h.presences.List(r.Context(), a, query)
	if err != nil {
		h.writeServiceError(w, err, "list presences")
		return
	}
	out := make([]PresenceResponse, 0, len(items))
	for _, p := range items {
		out = append(out, mapPresence(p))
	}
	writeJSON(w, http.StatusOK, listOf(out))
}

// bindPeriod разбирает необязательные даты from и to.
func bindPeriod(q url.Values) (*time.Time, *time.Time, error) {
	var from, to *openapi_types.Date
	if err := runtime.BindQueryParameter("form", true, false, "from", q, &from); err != nil {
		return nil, nil, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "to", q, &to); err != nil {
		return nil, nil, err
	}
	return dateTime(from), dateTime(to), nil
}

func dateTime(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
