package repository

import (
	"fmt"
	"strings"

	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// scopeColumns — колонки, на которые отображаются измерения предиката.
// Пустое имя означает, что у таблицы нет такого измерения.
type scopeColumns struct {
	City   string
	Month  string
	Sector string
	Fi     string
	Owner  string
}

// where — построитель WHERE с позиционными аргументами pgx.
type where struct {
	conds []string
	args  []any
}

// arg добавляет аргумент и возвращает его плейсхолдер.
func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) eq(col string, v any) {
	w.add(col + " = " + w.arg(v))
}

func (w *where) in(col string, values []string) {
	w.add(col + " = ANY(" + w.arg(values) + ")")
}

// scope рендерит предикат видимости. nil-измерение не ограничивает,
// непустое ограничение без колонки закрывает выборку целиком.
func (w *where) scope(p scope.Predicate, c scopeColumns) {
	if p.Deny || p.Empty {
		w.add("FALSE")
		return
	}
	w.set(p.Cities, c.City)
	w.set(p.Months, c.Month)
	w.set(p.SectorIDs, c.Sector)
	w.set(p.FiIDs, c.Fi)
	if p.OwnerID != "" {
		if c.Owner == "" {
			w.add("FALSE")
			return
		}
		w.eq(c.Owner, p.OwnerID)
	}
}

func (w *where) set(values []string, col string) {
	if values == nil {
		return
	}
	if col == "" {
		w.add("FALSE")
		return
	}
	w.in(col, values)
}

// String возвращает «WHERE …» или пустую строку.
func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// page добавляет LIMIT/OFFSET.
func (w *where) page(limit, offset int) string {
	return fmt.Sprintf("LIMIT %s OFFSET %s", w.arg(limit), w.arg(offset))
}
