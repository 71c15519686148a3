// Пакет fidelisation — расчёт посещаемости (фиделизации) по неделям,
// сводки по FI и обнаружение остановленного сопровождения.
// Все функции чистые: на вход уже отфильтрованные предикатом данные.
package fidelisation

import (
	"math"
	"sort"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/presence"
)

// Значения по умолчанию.
const (
	DefaultLoyaltyThreshold = 3
	DefaultStoppedWeeks     = 4
)

// Window — наблюдаемый период. Нулевые границы вычисляются по данным.
type Window struct {
	From time.Time
	To   time.Time
}

// WeeklyRate — посещаемость за неделю.
type WeeklyRate struct {
	WeekStart     time.Time
	PresentCount  int
	EligibleCount int
	RatePercent   int
}

// Summary — сводка фиделизации посетителей.
type Summary struct {
	TotalVisitors    int
	TotalNewArrivals int
	TotalNewConverts int
	// WeeklyRates — присутствие в любой корзине
	WeeklyRates []WeeklyRate
	// Jeudi — присутствие в корзине jeudi
	Jeudi []WeeklyRate
	// Dimanche — присутствие в корзине dimanche
	Dimanche []WeeklyRate
	// Degraded — вторичные данные недоступны, ставки обнулены
	Degraded bool
}

// Rate — round(100·present/eligible); 0 при eligible == 0.
func Rate(present, eligible int) int {
	if eligible <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(present) / float64(eligible)))
}

// WeekStart — понедельник ISO-недели даты (00:00 UTC).
func WeekStart(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Totals считает итоги по типам посетителей.
func Totals(visitors []model.Visitor) Summary {
	s := Summary{TotalVisitors: len(visitors)}
	for _, v := range visitors {
		if v.HasType(model.VisitorNewArrival) {
			s.TotalNewArrivals++
		}
		if v.HasType(model.VisitorNewConvert) {
			s.TotalNewConverts++
		}
	}
	return s
}

// Compute считает сводку по посетителям и их отметкам.
// Учитываются только отметки посетителей из переданного набора.
func Compute(visitors []model.Visitor, presences []model.Presence, w Window) Summary {
	s := Totals(visitors)
	if len(visitors) == 0 {
		return s
	}

	visitDate := make(map[string]time.Time, len(visitors))
	for _, v := range visitors {
		visitDate[v.ID] = v.VisitDate
	}

	// Неделя → корзина → множество присутствовавших.
	type weekKey struct {
		week   time.Time
		bucket presence.Bucket
	}
	seen := make(map[weekKey]map[string]bool)
	anyBucket := presence.Bucket("")
	mark := func(k weekKey, id string) {
		if seen[k] == nil {
			seen[k] = make(map[string]bool)
		}
		seen[k][id] = true
	}

	from, to := w.From, w.To
	for _, p := range presences {
		if _, ok := visitDate[p.SubjectID]; !ok || p.SubjectKind != model.SubjectVisitor {
			continue
		}
		from, to = extend(from, to, p.Date, w)
		if !p.Present {
			continue
		}
		b, err := presence.ParseBucket(p.Bucket)
		if err != nil {
			continue
		}
		week := WeekStart(p.Date)
		mark(weekKey{week, b}, p.SubjectID)
		mark(weekKey{week, anyBucket}, p.SubjectID)
	}
	for _, v := range visitors {
		from, to = extend(from, to, v.VisitDate, w)
	}

	for week := WeekStart(from); !week.After(WeekStart(to)); week = week.AddDate(0, 0, 7) {
		weekEnd := week.AddDate(0, 0, 7)
		eligible := 0
		for _, v := range visitors {
			if v.VisitDate.Before(weekEnd) {
				eligible++
			}
		}
		rate := func(b presence.Bucket) WeeklyRate {
			present := len(seen[weekKey{week, b}])
			return WeeklyRate{
				WeekStart:     week,
				PresentCount:  present,
				EligibleCount: eligible,
				RatePercent:   Rate(present, eligible),
			}
		}
		s.WeeklyRates = append(s.WeeklyRates, rate(anyBucket))
		s.Jeudi = append(s.Jeudi, rate(presence.Jeudi))
		s.Dimanche = append(s.Dimanche, rate(presence.Dimanche))
	}
	return s
}

// extend расширяет незаданные границы окна датой t.
func extend(from, to, t time.Time, w Window) (time.Time, time.Time) {
	if w.From.IsZero() && (from.IsZero() || t.Before(from)) {
		from = t
	}
	if w.To.IsZero() && (to.IsZero() || t.After(to)) {
		to = t
	}
	return from, to
}

// Degrade возвращает итоги без ставок: вторичные данные не загрузились.
func Degrade(visitors []model.Visitor) Summary {
	s := Totals(visitors)
	s.Degraded = true
	return s
}

// Mode — режим сводки по FI.
type Mode string

// Режимы.
const (
	ModePointInTime Mode = "point_in_time"
	ModeLoyalty     Mode = "loyalty"
)

// Options — параметры сводки по FI.
type Options struct {
	// City — город; FI других городов отбрасываются до подсчёта
	City string
	// Date — дата для режима point_in_time; nil включает режим loyalty
	Date *time.Time
	// LoyaltyThreshold — минимум присутствий для статуса fidèle
	LoyaltyThreshold int
}

// FIStat — статистика одной FI.
type FIStat struct {
	FamilleID string
	Name      string
	Membres   int
	Present   int
	Fideles   int
	Rate      int
}

// FISummary — сводка по FI.
type FISummary struct {
	Mode          Mode
	City          string
	TotalFamilles int
	TotalMembres  int
	TotalPresent  int
	TotalFideles  int
	Rate          int
	Familles      []FIStat
	// Degraded — отметки присутствия недоступны, считаются только участники
	Degraded bool
}

// ComputeFI считает сводку по FI. Связь участник→FI→город проверяется
// до подсчёта: участник или отметка FI другого города не учитываются.
func ComputeFI(fis []model.Famille, membres []model.Membre, presences []model.Presence, opt Options) FISummary {
	threshold := opt.LoyaltyThreshold
	if threshold <= 0 {
		threshold = DefaultLoyaltyThreshold
	}
	s := FISummary{Mode: ModeLoyalty, City: opt.City}
	if opt.Date != nil {
		s.Mode = ModePointInTime
	}

	stats := make(map[string]*FIStat)
	var order []string
	for _, f := range fis {
		if opt.City != "" && f.City != opt.City {
			continue
		}
		stats[f.ID] = &FIStat{FamilleID: f.ID, Name: f.Name}
		order = append(order, f.ID)
	}

	membreFi := make(map[string]string)
	for _, m := range membres {
		st, ok := stats[m.FamilleID]
		if !ok {
			continue
		}
		membreFi[m.ID] = m.FamilleID
		st.Membres++
	}

	presentOnDate := make(map[string]bool)
	lifetime := make(map[string]int)
	for _, p := range presences {
		if p.SubjectKind != model.SubjectMembre || !p.Present {
			continue
		}
		if _, ok := membreFi[p.SubjectID]; !ok {
			continue
		}
		if opt.Date != nil {
			if sameDay(p.Date, *opt.Date) {
				presentOnDate[p.SubjectID] = true
			}
			continue
		}
		lifetime[p.SubjectID]++
	}

	for id, fiID := range membreFi {
		st := stats[fiID]
		if presentOnDate[id] {
			st.Present++
		}
		if lifetime[id] >= threshold {
			st.Fideles++
		}
	}

	sort.Strings(order)
	for _, id := range order {
		st := stats[id]
		if s.Mode == ModePointInTime {
			st.Rate = Rate(st.Present, st.Membres)
		} else {
			st.Rate = Rate(st.Fideles, st.Membres)
		}
		s.TotalMembres += st.Membres
		s.TotalPresent += st.Present
		s.TotalFideles += st.Fideles
		s.Familles = append(s.Familles, *st)
	}
	s.TotalFamilles = len(s.Familles)
	if s.Mode == ModePointInTime {
		s.Rate = Rate(s.TotalPresent, s.TotalMembres)
	} else {
		s.Rate = Rate(s.TotalFideles, s.TotalMembres)
	}
	return s
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StoppedRule — правило остановки сопровождения.
type StoppedRule struct {
	// Weeks — число полных недель без присутствия
	Weeks int
}

// DetectStopped — сопровождение посетителя остановлено: он пришёл раньше
// окна из Weeks полных недель и не отмечен присутствующим в этом окне.
// Уже остановленный посетитель остаётся остановленным.
func DetectStopped(v model.Visitor, presences []model.Presence, now time.Time, rule StoppedRule) bool {
	if v.TrackingStopped {
		return true
	}
	weeks := rule.Weeks
	if weeks <= 0 {
		weeks = DefaultStoppedWeeks
	}
	cutoff := WeekStart(now).AddDate(0, 0, -7*weeks)
	if !v.VisitDate.Before(cutoff) {
		return false
	}
	for _, p := range presences {
		if p.SubjectKind != model.SubjectVisitor || p.SubjectID != v.ID || !p.Present {
			continue
		}
		if !p.Date.Before(cutoff) {
			return false
		}
	}
	return true
}
