// Пакет rbac — контекст актора: кто выполняет запрос и в каких границах.
// Роль — закрытое перечисление; департамент, выбранный при входе,
// может изменить эффективную роль, но никогда не повышает её до
// super_admin или pastor.
package rbac

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Role — роль пользователя.
type Role string

// Роли системы.
const (
	RoleSuperAdmin               Role = "super_admin"
	RolePastor                   Role = "pastor"
	RoleCitySupervisorPromotions Role = "city_supervisor_promotions"
	RoleCitySupervisorFI         Role = "city_supervisor_fi"
	RoleSectorLead               Role = "sector_lead"
	RoleFiLead                   Role = "fi_lead"
	RoleMonthReferent            Role = "month_referent"
	RoleFrontDesk                Role = "front_desk"
	RolePromotions               Role = "promotions"
	RoleDiscipleshipShepherd     Role = "discipleship_shepherd"
)

// AllRoles — все роли в порядке убывания привилегий.
var AllRoles = []Role{
	RoleSuperAdmin,
	RolePastor,
	RoleCitySupervisorPromotions,
	RoleCitySupervisorFI,
	RoleSectorLead,
	RoleFiLead,
	RolePromotions,
	RoleMonthReferent,
	RoleDiscipleshipShepherd,
	RoleFrontDesk,
}

// Департаменты, выбираемые при входе.
const (
	DepartmentPromotions = "promotions"
	DepartmentAccueil    = "accueil"
)

// ErrInvalidActor — профиль пользователя нарушает ограничения роли.
var ErrInvalidActor = errors.New("некорректный контекст актора")

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// departmentRoles — переходы роли при выборе департамента.
// Ключ — департамент, значение — исходная роль → эффективная роль.
var departmentRoles = map[string]map[Role]Role{
	DepartmentPromotions: {
		RoleMonthReferent: RolePromotions,
	},
	DepartmentAccueil: {
		RoleMonthReferent:            RoleFrontDesk,
		RolePromotions:               RoleFrontDesk,
		RoleCitySupervisorPromotions: RoleFrontDesk,
	},
}

// Actor — нормализованный контекст «кто спрашивает».
type Actor struct {
	// UserID — идентификатор пользователя (sub из JWT)
	UserID string
	// Username — имя пользователя
	Username string
	// Role — эффективная роль (после учёта департамента)
	Role Role
	// City — город; пустой для super_admin и pastor
	City string
	// AssignedMonths — закреплённые промо (YYYY-MM)
	AssignedMonths []string
	// AssignedSectorID — закреплённый сектор (sector_lead)
	AssignedSectorID string
	// AssignedFiIDs — закреплённые FI (fi_lead, может быть несколько)
	AssignedFiIDs []string
	// Department — департамент, выбранный при входе
	Department string
}

// Profile — сохранённый профиль пользователя, из которого строится Actor.
type Profile struct {
	UserID           string
	Username         string
	Role             Role
	City             string
	AssignedMonths   []string
	AssignedSectorID string
	AssignedFiIDs    []string
}

// NewActor строит Actor из профиля и департамента и проверяет ограничения роли:
// город обязателен для всех ролей, кроме super_admin и pastor;
// month_referent и promotions требуют хотя бы один месяц;
// fi_lead требует хотя бы одну FI; sector_lead требует сектор.
func NewActor(p Profile, department string) (*Actor, error) {
	if !IsValidRole(string(p.Role)) {
		return nil, fmt.Errorf("%w: неизвестная роль %q", ErrInvalidActor, p.Role)
	}
	for _, m := range p.AssignedMonths {
		if !monthPattern.MatchString(m) {
			return nil, fmt.Errorf("%w: некорректный месяц %q", ErrInvalidActor, m)
		}
	}

	role := EffectiveRole(p.Role, department)
	a := &Actor{
		UserID:           p.UserID,
		Username:         p.Username,
		Role:             role,
		City:             strings.TrimSpace(p.City),
		AssignedMonths:   dedupe(p.AssignedMonths),
		AssignedSectorID: p.AssignedSectorID,
		AssignedFiIDs:    dedupe(p.AssignedFiIDs),
		Department:       department,
	}

	if a.IsMultiCity() {
		return a, nil
	}
	if a.City == "" {
		return nil, fmt.Errorf("%w: роль %s требует город", ErrInvalidActor, role)
	}

	// Ограничения проверяются по исходной роли: департамент promotions
	// снимает ограничение по месяцам, но профиль всё равно должен быть полным.
	switch p.Role {
	case RoleMonthReferent, RolePromotions:
		if len(a.AssignedMonths) == 0 {
			return nil, fmt.Errorf("%w: роль %s требует закреплённые месяцы", ErrInvalidActor, p.Role)
		}
	case RoleFiLead:
		if len(a.AssignedFiIDs) == 0 {
			return nil, fmt.Errorf("%w: роль fi_lead требует закреплённые FI", ErrInvalidActor)
		}
	case RoleSectorLead:
		if a.AssignedSectorID == "" {
			return nil, fmt.Errorf("%w: роль sector_lead требует сектор", ErrInvalidActor)
		}
	}
	return a, nil
}

// EffectiveRole вычисляет роль с учётом департамента.
// Неизвестный департамент игнорируется. Департамент не может
// дать super_admin или pastor.
func EffectiveRole(role Role, department string) Role {
	transitions, ok := departmentRoles[strings.ToLower(strings.TrimSpace(department))]
	if !ok {
		return role
	}
	next, ok := transitions[role]
	if !ok || next == RoleSuperAdmin || next == RolePastor {
		return role
	}
	return next
}

// IsMultiCity — роль не привязана к городу.
func (a *Actor) IsMultiCity() bool {
	return a.Role == RoleSuperAdmin || a.Role == RolePastor
}

// AssignedFiID — первая закреплённая FI или пустая строка.
// Для потребителей, ожидающих одиночное поле assigned_fi_id.
func (a *Actor) AssignedFiID() string {
	if len(a.AssignedFiIDs) == 0 {
		return ""
	}
	return a.AssignedFiIDs[0]
}

// HasMonth — месяц входит в закреплённые.
func (a *Actor) HasMonth(month string) bool {
	return contains(a.AssignedMonths, month)
}

// HasFi — FI входит в закреплённые.
func (a *Actor) HasFi(fiID string) bool {
	return contains(a.AssignedFiIDs, fiID)
}

// ParseRole разбирает строку в Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidRole(string(r)) {
		return "", fmt.Errorf("неизвестная роль: %q", s)
	}
	return r, nil
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// ValidMonth проверяет формат YYYY-MM.
func ValidMonth(month string) bool {
	return monthPattern.MatchString(month)
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

// dedupe убирает пустые значения и дубликаты, сохраняя порядок.
func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
