// Пакет access — решения о разрешении операций записи.
// Чтение фильтруется предикатами scope; здесь решается, может ли актор
// изменить конкретную запись. Отказ всегда несёт причину.
package access

import (
	"fmt"
	"slices"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/projection"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// Operation — вид операции.
type Operation string

// Операции.
const (
	OpCreate          Operation = "create"
	OpUpdate          Operation = "update"
	OpDelete          Operation = "delete"
	OpResetPassword   Operation = "reset_password"
	OpSetKpi          Operation = "set_kpi"
	OpSetManualStatus Operation = "set_manual_status"
	OpRecordPresence  Operation = "record_presence"
	OpReadStopped     Operation = "read_stopped"
	OpRSVP            Operation = "rsvp"
)

// ResourceUser — пользователи (вне предикатов видимости).
const ResourceUser scope.Resource = "user"

// Decision — результат проверки.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow — разрешено.
func Allow() Decision { return Decision{Allowed: true} }

// Deny — запрещено с причиной.
func Deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Target — запись, над которой выполняется операция.
// Заполняются поля, относящиеся к ресурсу.
type Target struct {
	// Visitor — сохранённый посетитель (или новый при create)
	Visitor *model.Visitor
	// Patched — посетитель после применения патча (update)
	Patched *model.Visitor
	// PatchFields — JSON-имена изменяемых полей (update)
	PatchFields []string
	// Famille — FI (для famille, membre, presence участника)
	Famille *model.Famille
	// Secteur — сектор
	Secteur *model.Secteur
	// Bergerie — bergerie (для bergerie и kpi_bergerie)
	Bergerie *model.Bergerie
	// Event — мероприятие
	Event *model.Event
}

// visitorWriters — роли, которые могут создавать и изменять посетителей
// в пределах своей области.
var visitorWriters = []rbac.Role{
	rbac.RoleCitySupervisorPromotions,
	rbac.RoleCitySupervisorFI,
	rbac.RoleMonthReferent,
	rbac.RolePromotions,
}

// AuthorizeWrite решает, может ли актор выполнить операцию.
func AuthorizeWrite(a *rbac.Actor, r scope.Resource, op Operation, t Target) Decision {
	if op == OpReadStopped {
		if a.Role == rbac.RoleSuperAdmin || a.Role == rbac.RolePastor {
			return Allow()
		}
		return Deny("список остановленных доступен только super_admin и pastor")
	}
	if a.Role == rbac.RolePastor {
		return Deny("роль pastor только для чтения")
	}
	if op == OpResetPassword || r == ResourceUser {
		if a.Role == rbac.RoleSuperAdmin {
			return Allow()
		}
		return Deny("сброс пароля доступен только super_admin")
	}

	switch r {
	case scope.ResourceVisitor:
		return visitorWrite(a, op, t)
	case scope.ResourceKpiVisitor:
		return visitorKpiWrite(a, op, t)
	case scope.ResourceSecteur:
		return secteurWrite(a, op, t)
	case scope.ResourceFamille:
		return familleWrite(a, op, t)
	case scope.ResourceMembre, scope.ResourcePresence:
		if op == OpRecordPresence && t.Visitor != nil {
			return visitorPresenceWrite(a, t)
		}
		return membreWrite(a, r, op, t)
	case scope.ResourceBergerie, scope.ResourceKpiBergerie:
		return bergerieWrite(a, r, op, t)
	case scope.ResourceEvent:
		return eventWrite(a, op, t)
	}
	return Deny("операция %s над %s не поддерживается", op, r)
}

func visitorWrite(a *rbac.Actor, op Operation, t Target) Decision {
	if t.Visitor == nil {
		return Deny("не указан посетитель")
	}
	switch op {
	case OpCreate:
		if a.Role == rbac.RoleSuperAdmin {
			return Allow()
		}
		if !slices.Contains(visitorWriters, a.Role) {
			return Deny("роль %s не может создавать посетителей", a.Role)
		}
		if !scope.MatchVisitor(scope.Build(a, scope.ResourceVisitor), *t.Visitor) {
			return Deny("посетитель вне области роли %s", a.Role)
		}
		return Allow()

	case OpUpdate:
		// super_admin изменяет посетителей любого города.
		if a.Role == rbac.RoleSuperAdmin {
			return Allow()
		}
		if a.Role != rbac.RoleFrontDesk && !slices.Contains(visitorWriters, a.Role) {
			return Deny("роль %s не может изменять посетителей", a.Role)
		}
		p := scope.Build(a, scope.ResourceVisitor)
		if !scope.MatchVisitor(p, *t.Visitor) {
			return Deny("посетитель вне области роли %s", a.Role)
		}
		if t.Patched != nil && !scope.MatchVisitor(p, *t.Patched) {
			return Deny("изменение выводит посетителя из области роли %s", a.Role)
		}
		if a.Role == rbac.RoleFrontDesk {
			for _, f := range t.PatchFields {
				if !projection.Writable(a.Role, f) {
					return Deny("роль front_desk не может изменять поле %s", f)
				}
			}
		}
		return Allow()

	case OpDelete:
		if a.Role == rbac.RoleSuperAdmin {
			return Allow()
		}
		return Deny("удаление посетителя доступно только super_admin")
	}
	return Deny("операция %s над посетителем не поддерживается", op)
}

func visitorKpiWrite(a *rbac.Actor, op Operation, t Target) Decision {
	if op != OpSetKpi && op != OpSetManualStatus {
		return Deny("операция %s над KPI не поддерживается", op)
	}
	if t.Visitor == nil {
		return Deny("не указан посетитель")
	}
	if a.Role == rbac.RoleSuperAdmin {
		return Allow()
	}
	if !slices.Contains(visitorWriters, a.Role) {
		return Deny("роль %s не может изменять KPI посетителей", a.Role)
	}
	if !scope.MatchVisitor(scope.Build(a, scope.ResourceKpiVisitor), *t.Visitor) {
		return Deny("посетитель вне области роли %s", a.Role)
	}
	return Allow()
}

func visitorPresenceWrite(a *rbac.Actor, t Target) Decision {
	if a.Role == rbac.RoleSuperAdmin {
		return Allow()
	}
	if a.Role != rbac.RoleFrontDesk && !slices.Contains(visitorWriters, a.Role) {
		return Deny("роль %s не может отмечать присутствие посетителей", a.Role)
	}
	if !scope.MatchVisitor(scope.Build(a, scope.ResourceVisitor), *t.Visitor) {
		return Deny("посетитель вне области роли %s", a.Role)
	}
	return Allow()
}

func secteurWrite(a *rbac.Actor, op Operation, t Target) Decision {
	if t.Secteur == nil {
		return Deny("не указан сектор")
	}
	if op != OpCreate && op != OpUpdate && op != OpDelete {
		return Deny("операция %s над сектором не поддерживается", op)
	}
	switch a.Role {
	case rbac.RoleSuperAdmin:
		return Allow()
	case rbac.RoleCitySupervisorFI:
		if scope.MatchSecteur(scope.Build(a, scope.ResourceSecteur), *t.Secteur) {
			return Allow()
		}
		return Deny("сектор вне города %s", a.City)
	}
	return Deny("роль %s не может изменять секторы", a.Role)
}

func familleWrite(a *rbac.Actor, op Operation, t Target) Decision {
	if t.Famille == nil {
		return Deny("не указана FI")
	}
	if op != OpCreate && op != OpUpdate && op != OpDelete {
		return Deny("операция %s над FI не поддерживается", op)
	}
	switch a.Role {
	case rbac.RoleSuperAdmin:
		return Allow()
	case rbac.RoleCitySupervisorFI, rbac.RoleSectorLead:
		if op == OpDelete && a.Role == rbac.RoleSectorLead {
			return Deny("роль sector_lead не может удалять FI")
		}
		if scope.MatchFamille(scope.Build(a, scope.ResourceFamille), *t.Famille) {
			return Allow()
		}
		return Deny("FI вне области роли %s", a.Role)
	}
	return Deny("роль %s не может изменять FI", a.Role)
}

func membreWrite(a *rbac.Actor, r scope.Resource, op Operation, t Target) Decision {
	if t.Famille == nil {
		return Deny("не указана FI участника")
	}
	switch op {
	case OpCreate, OpDelete, OpRecordPresence:
	default:
		return Deny("операция %s над %s не поддерживается", op, r)
	}
	switch a.Role {
	case rbac.RoleSuperAdmin:
		return Allow()
	case rbac.RoleCitySupervisorFI, rbac.RoleSectorLead, rbac.RoleFiLead:
		if scope.MatchMembre(scope.Build(a, r), *t.Famille) {
			return Allow()
		}
		return Deny("FI вне области роли %s", a.Role)
	}
	return Deny("роль %s не может изменять участников FI", a.Role)
}

func bergerieWrite(a *rbac.Actor, r scope.Resource, op Operation, t Target) Decision {
	if t.Bergerie == nil {
		return Deny("не указана bergerie")
	}
	switch op {
	case OpCreate, OpUpdate, OpSetKpi, OpSetManualStatus, OpRecordPresence:
	case OpDelete:
		if a.Role != rbac.RoleSuperAdmin {
			return Deny("удаление bergerie доступно только super_admin")
		}
	default:
		return Deny("операция %s над %s не поддерживается", op, r)
	}
	switch a.Role {
	case rbac.RoleSuperAdmin:
		return Allow()
	case rbac.RoleCitySupervisorFI, rbac.RoleDiscipleshipShepherd:
		if scope.MatchBergerie(scope.Build(a, r), *t.Bergerie) {
			return Allow()
		}
		return Deny("bergerie вне области роли %s", a.Role)
	}
	return Deny("роль %s не может изменять bergeries", a.Role)
}

func eventWrite(a *rbac.Actor, op Operation, t Target) Decision {
	if t.Event == nil {
		return Deny("не указано мероприятие")
	}
	switch op {
	case OpDelete:
		if a.Role == rbac.RoleSuperAdmin {
			return Allow()
		}
		return Deny("удаление мероприятия доступно только super_admin")
	case OpCreate:
		switch a.Role {
		case rbac.RoleSuperAdmin:
			return Allow()
		case rbac.RoleCitySupervisorPromotions, rbac.RoleCitySupervisorFI:
			if scope.MatchEvent(scope.Build(a, scope.ResourceEvent), *t.Event) {
				return Allow()
			}
			return Deny("мероприятие вне города %s", a.City)
		}
		return Deny("роль %s не может создавать мероприятия", a.Role)
	case OpRSVP:
		if scope.MatchEvent(scope.Build(a, scope.ResourceEvent), *t.Event) {
			return Allow()
		}
		return Deny("мероприятие вне области роли %s", a.Role)
	}
	return Deny("операция %s над мероприятием не поддерживается", op)
}
