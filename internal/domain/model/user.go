// Пакет model — доменные модели Pastorale.
package model

import (
	"time"

	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

// User — локальный профиль пользователя.
// Аутентификацию выполняет IdP; профиль хранит роль и закрепления.
// Хранится в таблице users.
type User struct {
	// ID — идентификатор пользователя в IdP (sub)
	ID string
	// Username — имя пользователя
	Username string
	// Role — роль (без учёта департамента)
	Role rbac.Role
	// City — город (пустой для super_admin и pastor)
	City string
	// AssignedMonths — закреплённые промо (YYYY-MM)
	AssignedMonths []string
	// AssignedSectorID — закреплённый сектор
	AssignedSectorID *string
	// AssignedFiIDs — закреплённые FI
	AssignedFiIDs []string
	// PasswordHash — bcrypt-хэш локального пароля (nil, если не задан)
	PasswordHash *string
	// PasswordResetAt — время последнего сброса пароля
	PasswordResetAt *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Profile возвращает профиль для построения rbac.Actor.
func (u *User) Profile() rbac.Profile {
	p := rbac.Profile{
		UserID:         u.ID,
		Username:       u.Username,
		Role:           u.Role,
		City:           u.City,
		AssignedMonths: u.AssignedMonths,
		AssignedFiIDs:  u.AssignedFiIDs,
	}
	if u.AssignedSectorID != nil {
		p.AssignedSectorID = *u.AssignedSectorID
	}
	return p
}

// AssignedFiID — первая закреплённая FI (устаревшее одиночное поле).
func (u *User) AssignedFiID() *string {
	return firstOrNil(u.AssignedFiIDs)
}

// MergeLegacyIDs объединяет устаревшее одиночное поле и список
// в один список без дубликатов: одиночное значение идёт первым.
func MergeLegacyIDs(single *string, multi []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if single != nil {
		add(*single)
	}
	for _, id := range multi {
		add(id)
	}
	return out
}

func firstOrNil(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	v := items[0]
	return &v
}
