// users.go — обработчики профилей пользователей и контекста актора.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/pastorale/internal/api/errors"
	"github.com/bigkaa/pastorale/internal/service"
)

// GetMe возвращает контекст текущего актора и его поля проекции.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapActor(a))
}

// ListUsers возвращает профили (только super_admin).
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	lq, err := bindListQuery(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	page := lq.page()
	items, err := h.users.List(r.Context(), a, page)
	if err != nil {
		h.writeServiceError(w, err, "list users")
		return
	}
	out := UserListResponse{
		Items:  make([]UserResponse, 0, len(items)),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, u := range items {
		out.Items = append(out.Items, mapUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateUser создаёт профиль для учётной записи IdP.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body service.UserInput
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := h.users.Create(r.Context(), a, body)
	if err != nil {
		h.writeServiceError(w, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, mapUser(u))
}

// ResetPassword задаёт новый пароль пользователя.
func (h *APIHandler) ResetPassword(w http.ResponseWriter, r *http.Request, userID string) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var body PasswordReset
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.users.ResetPassword(r.Context(), a, userID, body.Password); err != nil {
		h.writeServiceError(w, err, "reset password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
