// Пакет scope — построение предикатов видимости по контексту актора.
// Predicate — чистое значение: один и тот же предикат используется
// и для списков (рендерится в SQL в repository), и для проверки
// одиночной записи в памяти (Match*).
package scope

import (
	"fmt"
	"slices"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

// Resource — тип ресурса.
type Resource string

// Типы ресурсов.
const (
	ResourceVisitor     Resource = "visitor"
	ResourceFamille     Resource = "famille"
	ResourceSecteur     Resource = "secteur"
	ResourceMembre      Resource = "membre"
	ResourcePresence    Resource = "presence"
	ResourceBergerie    Resource = "bergerie"
	ResourceKpiVisitor  Resource = "kpi_visitor"
	ResourceKpiBergerie Resource = "kpi_bergerie"
	ResourceEvent       Resource = "event"
)

// Predicate — фильтр видимости.
// nil-срез означает «без ограничения по этому измерению».
type Predicate struct {
	// Resource — ресурс, для которого построен предикат
	Resource Resource
	// Role — роль актора (для сообщений об отказе)
	Role rbac.Role
	// Deny — роль не имеет доступа к ресурсу
	Deny bool
	// All — без ограничений
	All bool
	// Cities — допустимые города
	Cities []string
	// Months — допустимые промо (YYYY-MM)
	Months []string
	// SectorIDs — допустимые секторы
	SectorIDs []string
	// FiIDs — допустимые FI
	FiIDs []string
	// OwnerID — владелец (bergerie пастуха)
	OwnerID string
	// Empty — пересечение с параметрами пусто, ничего не совпадает
	Empty bool
}

// Params — параметры запроса, которые могут только сузить предикат.
type Params struct {
	City     string
	Months   []string
	SectorID string
	FiID     string
}

// Build строит предикат для актора и ресурса.
func Build(a *rbac.Actor, r Resource) Predicate {
	var p Predicate
	switch r {
	case ResourceVisitor, ResourceKpiVisitor:
		p = visitorPredicate(a)
	case ResourceFamille, ResourceMembre, ResourcePresence:
		p = famillePredicate(a)
	case ResourceSecteur:
		p = secteurPredicate(a)
	case ResourceBergerie, ResourceKpiBergerie:
		p = bergeriePredicate(a)
	case ResourceEvent:
		p = eventPredicate(a)
	default:
		p = deny()
	}
	p.Resource = r
	p.Role = a.Role
	return p
}

func visitorPredicate(a *rbac.Actor) Predicate {
	switch a.Role {
	case rbac.RoleSuperAdmin, rbac.RolePastor:
		return all()
	case rbac.RoleCitySupervisorPromotions, rbac.RolePromotions, rbac.RoleFrontDesk, rbac.RoleCitySupervisorFI:
		return city(a)
	case rbac.RoleMonthReferent:
		p := city(a)
		p.Months = slices.Clone(a.AssignedMonths)
		return p
	case rbac.RoleSectorLead, rbac.RoleFiLead, rbac.RoleDiscipleshipShepherd:
		return deny()
	}
	return deny()
}

func famillePredicate(a *rbac.Actor) Predicate {
	switch a.Role {
	case rbac.RoleSuperAdmin, rbac.RolePastor:
		return all()
	case rbac.RoleCitySupervisorFI, rbac.RoleCitySupervisorPromotions, rbac.RoleMonthReferent, rbac.RolePromotions:
		return city(a)
	case rbac.RoleSectorLead:
		p := city(a)
		p.SectorIDs = []string{a.AssignedSectorID}
		return p
	case rbac.RoleFiLead:
		p := city(a)
		p.FiIDs = slices.Clone(a.AssignedFiIDs)
		return p
	case rbac.RoleFrontDesk, rbac.RoleDiscipleshipShepherd:
		return deny()
	}
	return deny()
}

func secteurPredicate(a *rbac.Actor) Predicate {
	if a.Role == rbac.RoleFiLead {
		return city(a)
	}
	return famillePredicate(a)
}

func bergeriePredicate(a *rbac.Actor) Predicate {
	switch a.Role {
	case rbac.RoleSuperAdmin, rbac.RolePastor:
		return all()
	case rbac.RoleCitySupervisorFI:
		return city(a)
	case rbac.RoleDiscipleshipShepherd:
		p := city(a)
		p.OwnerID = a.UserID
		return p
	case rbac.RoleCitySupervisorPromotions, rbac.RoleSectorLead, rbac.RoleFiLead,
		rbac.RoleMonthReferent, rbac.RoleFrontDesk, rbac.RolePromotions:
		return deny()
	}
	return deny()
}

func eventPredicate(a *rbac.Actor) Predicate {
	if a.IsMultiCity() {
		return all()
	}
	return city(a)
}

func all() Predicate  { return Predicate{All: true} }
func deny() Predicate { return Predicate{Deny: true} }

func city(a *rbac.Actor) Predicate {
	return Predicate{Cities: []string{a.City}}
}

// Narrow сужает предикат параметрами запроса. Никогда не расширяет:
// параметр вне области актора даёт Empty.
func Narrow(p Predicate, params Params) Predicate {
	if p.Deny || p.Empty {
		return p
	}
	out := p
	out.Cities = narrowSet(p.Cities, single(params.City), &out.Empty)
	if usesMonths(p.Resource) {
		out.Months = narrowSet(p.Months, params.Months, &out.Empty)
	}
	if usesSector(p.Resource) {
		out.SectorIDs = narrowSet(p.SectorIDs, single(params.SectorID), &out.Empty)
	}
	if usesFi(p.Resource) {
		out.FiIDs = narrowSet(p.FiIDs, single(params.FiID), &out.Empty)
	}
	out.All = out.All && !out.Empty &&
		out.Cities == nil && out.Months == nil && out.SectorIDs == nil && out.FiIDs == nil
	return out
}

// narrowSet пересекает текущее ограничение с запрошенным.
// Пустое пересечение выставляет empty.
func narrowSet(current, requested []string, empty *bool) []string {
	if len(requested) == 0 {
		return current
	}
	if current == nil {
		return slices.Clone(requested)
	}
	var out []string
	for _, v := range requested {
		if slices.Contains(current, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		*empty = true
		return current
	}
	return out
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

func usesMonths(r Resource) bool {
	return r == ResourceVisitor || r == ResourceKpiVisitor
}

func usesSector(r Resource) bool {
	switch r {
	case ResourceFamille, ResourceSecteur, ResourceMembre, ResourcePresence:
		return true
	}
	return false
}

func usesFi(r Resource) bool {
	switch r {
	case ResourceFamille, ResourceMembre, ResourcePresence:
		return true
	}
	return false
}

// DenyReason — сообщение об отказе, пригодное для показа пользователю.
func (p Predicate) DenyReason() string {
	return fmt.Sprintf("роль %s не имеет доступа к ресурсу %s", p.Role, p.Resource)
}

// matchable — предикат может совпасть хотя бы с одной записью.
func (p Predicate) matchable() bool {
	return !p.Deny && !p.Empty
}

func in(set []string, v string) bool {
	return set == nil || slices.Contains(set, v)
}

// MatchVisitor — посетитель удовлетворяет предикату.
func MatchVisitor(p Predicate, v model.Visitor) bool {
	return p.matchable() && in(p.Cities, v.City) && in(p.Months, v.AssignedMonth)
}

// MatchFamille — FI удовлетворяет предикату.
func MatchFamille(p Predicate, f model.Famille) bool {
	return p.matchable() && in(p.Cities, f.City) && in(p.SectorIDs, f.SecteurID) && in(p.FiIDs, f.ID)
}

// MatchSecteur — сектор удовлетворяет предикату.
func MatchSecteur(p Predicate, s model.Secteur) bool {
	return p.matchable() && in(p.Cities, s.City) && in(p.SectorIDs, s.ID)
}

// MatchMembre — участник виден через свою FI.
func MatchMembre(p Predicate, fi model.Famille) bool {
	return MatchFamille(p, fi)
}

// MatchBergerie — bergerie удовлетворяет предикату.
func MatchBergerie(p Predicate, b model.Bergerie) bool {
	if !p.matchable() || !in(p.Cities, b.City) {
		return false
	}
	return p.OwnerID == "" || p.OwnerID == b.OwnerID
}

// MatchEvent — мероприятие удовлетворяет предикату.
func MatchEvent(p Predicate, e model.Event) bool {
	return p.matchable() && in(p.Cities, e.City)
}
