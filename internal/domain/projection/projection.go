// Пакет projection — формирование выходной записи посетителя по роли.
// Предикат решает, видна ли строка; проектор решает, какие колонки.
package projection

import (
	"slices"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

// Record — выходная запись, ключи — JSON-имена полей.
type Record map[string]any

// DateLayout — формат дат в выходных записях.
const DateLayout = "2006-01-02"

// frontDeskFields — урезанный набор полей для front_desk.
var frontDeskFields = []string{"id", "firstname", "lastname", "arrivalChannel", "visitDate", "city"}

// fullFields — полный набор полей посетителя.
var fullFields = []string{
	"id", "firstname", "lastname", "phone", "email", "arrivalChannel", "city",
	"visitDate", "assignedMonth", "types", "ejp", "trackingStopped",
	"manualStatus", "manualComment", "createdAt", "updatedAt",
}

// FieldsFor возвращает допустимые поля посетителя для роли.
// Определена для каждой роли; фиксированный список, не зависит от области.
func FieldsFor(role rbac.Role) []string {
	if role == rbac.RoleFrontDesk {
		return slices.Clone(frontDeskFields)
	}
	return slices.Clone(fullFields)
}

// Visitor проецирует посетителя для актора.
func Visitor(a *rbac.Actor, v model.Visitor) Record {
	full := fullRecord(v)
	fields := FieldsFor(a.Role)
	out := make(Record, len(fields))
	for _, f := range fields {
		out[f] = full[f]
	}
	return out
}

// Visitors проецирует список.
func Visitors(a *rbac.Actor, vs []model.Visitor) []Record {
	out := make([]Record, 0, len(vs))
	for _, v := range vs {
		out = append(out, Visitor(a, v))
	}
	return out
}

// Writable — поле патча разрешено роли (front_desk может менять
// только поля своей проекции).
func Writable(role rbac.Role, field string) bool {
	return slices.Contains(FieldsFor(role), field) && field != "id"
}

func fullRecord(v model.Visitor) Record {
	types := make([]string, 0, len(v.Types))
	for _, t := range v.Types {
		types = append(types, string(t))
	}
	return Record{
		"id":              v.ID,
		"firstname":       v.Firstname,
		"lastname":        v.Lastname,
		"phone":           v.Phone,
		"email":           v.Email,
		"arrivalChannel":  v.ArrivalChannel,
		"city":            v.City,
		"visitDate":       v.VisitDate.Format(DateLayout),
		"assignedMonth":   model.MonthOf(v.VisitDate),
		"types":           types,
		"ejp":             v.EJP,
		"trackingStopped": v.TrackingStopped,
		"manualStatus":    v.ManualStatus,
		"manualComment":   v.ManualComment,
		"createdAt":       v.CreatedAt,
		"updatedAt":       v.UpdatedAt,
	}
}
