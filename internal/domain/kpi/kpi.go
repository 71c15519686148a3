// Пакет kpi — движок KPI Discipolat: взвешенный счёт по шести
// индикаторам и уровень по таблице порогов. Таблица передаётся явно,
// её версия сохраняется в каждой записи.
package kpi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/validation"
)

var (
	// ErrInvalidIndicators — индикатор вне диапазона [0,4].
	ErrInvalidIndicators = errors.New("индикаторы KPI вне диапазона [0,4]")
	// ErrInvalidMonth — ключ месяца не в формате YYYY-MM.
	ErrInvalidMonth = errors.New("некорректный месяц: ожидается YYYY-MM")
)

// Indicators — шесть индикаторов вовлечённости, каждый в [0,4].
type Indicators struct {
	PresenceDimanche         int `json:"presenceDimanche" validate:"gte=0,lte=4"`
	PresenceFi               int `json:"presenceFi" validate:"gte=0,lte=4"`
	PresenceReunionDisciples int `json:"presenceReunionDisciples" validate:"gte=0,lte=4"`
	ServiceEglise            int `json:"serviceEglise" validate:"gte=0,lte=4"`
	ConsommationPainDuJour   int `json:"consommationPainDuJour" validate:"gte=0,lte=4"`
	Bapteme                  int `json:"bapteme" validate:"gte=0,lte=4"`
}

func (i Indicators) values() [6]int {
	return [6]int{
		i.PresenceDimanche,
		i.PresenceFi,
		i.PresenceReunionDisciples,
		i.ServiceEglise,
		i.ConsommationPainDuJour,
		i.Bapteme,
	}
}

// Validate проверяет диапазон индикаторов.
func (i Indicators) Validate() error {
	if err := validation.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIndicators, err)
	}
	return nil
}

// ValidMonth проверяет ключ месяца.
func ValidMonth(month string) error {
	if !rbac.ValidMonth(month) {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return nil
}

// Result — вычисленные счёт и уровень.
type Result struct {
	Score   int    `json:"score"`
	Level   string `json:"level"`
	Version string `json:"version"`
}

// Engine — вычисление KPI по одной таблице.
type Engine struct {
	table Table
}

// NewEngine создаёт движок для таблицы.
func NewEngine(t Table) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Engine{table: t}, nil
}

// Table возвращает таблицу движка.
func (e *Engine) Table() Table {
	return e.table
}

// Score — Σ(индикатор × вес).
func (e *Engine) Score(ind Indicators) int {
	w := e.table.Weights.values()
	score := 0
	for i, v := range ind.values() {
		score += v * w[i]
	}
	return score
}

// Level — уровень для счёта: последний порог, не превышающий счёт.
func (e *Engine) Level(score int) string {
	level := e.table.Levels[0].Label
	for _, l := range e.table.Levels {
		if score >= l.Min {
			level = l.Label
		}
	}
	return level
}

// Evaluate валидирует индикаторы и вычисляет счёт и уровень.
func (e *Engine) Evaluate(ind Indicators) (Result, error) {
	if err := ind.Validate(); err != nil {
		return Result{}, err
	}
	score := e.Score(ind)
	return Result{Score: score, Level: e.Level(score), Version: e.table.Version}, nil
}

// Record — сохранённая запись KPI за месяц.
// Ключ (SubjectKind, SubjectID, Month); повторное сохранение перезаписывает.
type Record struct {
	SubjectKind  model.SubjectKind
	SubjectID    string
	Month        string
	Indicators   Indicators
	Score        int
	Level        string
	TableVersion string
	UpdatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Default — запись для месяца без сохранённых данных:
// нулевые индикаторы, счёт 0, базовый уровень.
func Default(kind model.SubjectKind, subjectID, month string, t Table) Record {
	return Record{
		SubjectKind:  kind,
		SubjectID:    subjectID,
		Month:        month,
		Level:        t.BaseLevel(),
		TableVersion: t.Version,
	}
}

// Override — ручной статус поверх вычисленного.
type Override struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// Computed — вычисленная тенденция по истории.
type Computed struct {
	AverageScore float64 `json:"averageScore"`
	Level        string  `json:"level"`
	Months       int     `json:"months"`
}

// Status — вычисленное значение и необязательный ручной статус.
// Ручной статус не заменяет вычисленное: оба возвращаются.
type Status struct {
	Computed Computed  `json:"computed"`
	Override *Override `json:"override,omitempty"`
}

// Effective — итоговый уровень: ручной статус, если задан.
func (s Status) Effective() string {
	if s.Override != nil && s.Override.Status != "" {
		return s.Override.Status
	}
	return s.Computed.Level
}

// Scales — максимальная оценка по версии таблицы. Нужна, чтобы
// усреднять записи разных версий в шкале текущей таблицы.
type Scales map[string]int

// normalized приводит оценку записи к шкале таблицы движка. Версия
// без известного максимума остаётся как есть.
func (e *Engine) normalized(r Record, scales Scales) float64 {
	score := float64(r.Score)
	if r.TableVersion == "" || r.TableVersion == e.table.Version {
		return score
	}
	from := scales[r.TableVersion]
	if from <= 0 || e.table.MaxScore <= 0 {
		return score
	}
	return score * float64(e.table.MaxScore) / float64(from)
}

// ComputeStatus считает среднюю оценку по истории в шкале текущей
// таблицы и уровень округлённой средней.
func (e *Engine) ComputeStatus(history []Record, scales Scales, manualStatus, manualComment *string) Status {
	s := Status{Computed: Computed{Level: e.table.BaseLevel()}}
	if len(history) > 0 {
		total := 0.0
		for _, r := range history {
			total += e.normalized(r, scales)
		}
		avg := total / float64(len(history))
		s.Computed = Computed{
			AverageScore: math.Round(avg*10) / 10,
			Level:        e.Level(int(math.Round(avg))),
			Months:       len(history),
		}
	}
	if manualStatus != nil {
		o := &Override{Status: *manualStatus}
		if manualComment != nil {
			o.Comment = *manualComment
		}
		s.Override = o
	}
	return s
}
