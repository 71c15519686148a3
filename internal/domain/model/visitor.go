package model

import (
	"slices"
	"time"
)

// VisitorType — тип посетителя.
type VisitorType string

// Типы посетителей.
const (
	VisitorNewArrival VisitorType = "new_arrival"
	VisitorNewConvert VisitorType = "new_convert"
	VisitorPasserby   VisitorType = "passerby"
)

// IsValidVisitorType проверяет допустимость типа.
func IsValidVisitorType(t string) bool {
	switch VisitorType(t) {
	case VisitorNewArrival, VisitorNewConvert, VisitorPasserby:
		return true
	}
	return false
}

// MonthLayout — формат ключа месяца (промо).
const MonthLayout = "2006-01"

// MonthOf возвращает промо (YYYY-MM) для даты.
func MonthOf(t time.Time) string {
	return t.Format(MonthLayout)
}

// Visitor — посетитель (новый приход, новообращённый, проходящий).
// Хранится в таблице visitors.
type Visitor struct {
	// ID — UUID записи
	ID string
	// Firstname — имя
	Firstname string
	// Lastname — фамилия
	Lastname string
	// Phone — телефон
	Phone string
	// Email — адрес электронной почты
	Email string
	// ArrivalChannel — канал прихода (culte, evangelisation, invitation…)
	ArrivalChannel string
	// City — город
	City string
	// VisitDate — дата первого визита
	VisitDate time.Time
	// AssignedMonth — промо; всегда вычисляется из VisitDate
	AssignedMonth string
	// Types — типы посетителя
	Types []VisitorType
	// EJP — участник программы EJP
	EJP bool
	// TrackingStopped — сопровождение остановлено (выставляет система)
	TrackingStopped bool
	// TrackingStoppedAt — когда сопровождение было остановлено
	TrackingStoppedAt *time.Time
	// ManualStatus — ручной статус KPI (nil — не задан)
	ManualStatus *string
	// ManualComment — комментарий к ручному статусу
	ManualComment *string
	// CreatedBy — кто создал запись
	CreatedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Normalize пересчитывает производные поля.
func (v *Visitor) Normalize() {
	v.AssignedMonth = MonthOf(v.VisitDate)
}

// HasType — посетитель имеет указанный тип.
func (v *Visitor) HasType(t VisitorType) bool {
	return slices.Contains(v.Types, t)
}

// VisitorPatch — частичное обновление посетителя.
// nil-поля не изменяются. TrackingStopped и AssignedMonth
// сюда не входят: первое выставляет система, второе вычисляется.
type VisitorPatch struct {
	Firstname      *string
	Lastname       *string
	Phone          *string
	Email          *string
	ArrivalChannel *string
	City           *string
	VisitDate      *time.Time
	Types          *[]VisitorType
	EJP            *bool
}

// Fields возвращает JSON-имена изменяемых полей.
func (p VisitorPatch) Fields() []string {
	var out []string
	if p.Firstname != nil {
		out = append(out, "firstname")
	}
	if p.Lastname != nil {
		out = append(out, "lastname")
	}
	if p.Phone != nil {
		out = append(out, "phone")
	}
	if p.Email != nil {
		out = append(out, "email")
	}
	if p.ArrivalChannel != nil {
		out = append(out, "arrivalChannel")
	}
	if p.City != nil {
		out = append(out, "city")
	}
	if p.VisitDate != nil {
		out = append(out, "visitDate")
	}
	if p.Types != nil {
		out = append(out, "types")
	}
	if p.EJP != nil {
		out = append(out, "ejp")
	}
	return out
}

// Apply возвращает копию посетителя с применённым патчем.
// Исходная запись не изменяется.
func (p VisitorPatch) Apply(v Visitor) Visitor {
	out := v
	out.Types = slices.Clone(v.Types)
	if p.Firstname != nil {
		out.Firstname = *p.Firstname
	}
	if p.Lastname != nil {
		out.Lastname = *p.Lastname
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.ArrivalChannel != nil {
		out.ArrivalChannel = *p.ArrivalChannel
	}
	if p.City != nil {
		out.City = *p.City
	}
	if p.VisitDate != nil {
		out.VisitDate = *p.VisitDate
	}
	if p.Types != nil {
		out.Types = slices.Clone(*p.Types)
	}
	if p.EJP != nil {
		out.EJP = *p.EJP
	}
	out.Normalize()
	return out
}
