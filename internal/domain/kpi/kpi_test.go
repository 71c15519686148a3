package kpi

import (
	"errors"
	"testing"

	"github.com/bigkaa/pastorale/internal/domain/model"
)

func currentEngine(t *testing.T) *Engine {
	t.Helper()
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	table, err := reg.Table(reg.Current)
	if err != nil {
		t.Fatalf("Table(%q) error = %v", reg.Current, err)
	}
	e, err := NewEngine(table)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	if reg.Current != "v2" {
		t.Errorf("Current = %q, хотели v2", reg.Current)
	}
	v2, _ := reg.Table("v2")
	want := Weights{5, 2, 3, 6, 5, 2}
	if v2.Weights != want {
		t.Errorf("веса v2 = %+v, хотели %+v", v2.Weights, want)
	}
	if v2.MaxScore != 75 {
		t.Errorf("MaxScore = %d, хотели 75", v2.MaxScore)
	}
	if _, err := reg.Table("v1"); err != nil {
		t.Errorf("устаревшая таблица v1 должна оставаться доступной: %v", err)
	}
	if _, err := reg.Table("v9"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Table(v9) error = %v, хотели ErrUnknownTable", err)
	}
}

// (4,4,4,3,3,1) × (5,2,3,6,5,2) = 20+8+12+18+15+2 = 75 → Confirmé.
func TestEvaluate_ScoreFormula(t *testing.T) {
	e := currentEngine(t)
	got, err := e.Evaluate(Indicators{4, 4, 4, 3, 3, 1})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.Score != 75 {
		t.Errorf("Score = %d, хотели 75", got.Score)
	}
	if got.Level != "Confirmé" {
		t.Errorf("Level = %q, хотели Confirmé", got.Level)
	}
	if got.Version != "v2" {
		t.Errorf("Version = %q, хотели v2", got.Version)
	}
}

func TestLevel_Thresholds(t *testing.T) {
	e := currentEngine(t)
	tests := []struct {
		score int
		want  string
	}{
		{0, "Non classé"},
		{19, "Non classé"},
		{20, "Débutant"},
		{39, "Débutant"},
		{40, "Intermédiaire"},
		{59, "Intermédiaire"},
		{60, "Confirmé"},
		{92, "Confirmé"},
	}
	for _, tt := range tests {
		if got := e.Level(tt.score); got != tt.want {
			t.Errorf("Level(%d) = %q, хотели %q", tt.score, got, tt.want)
		}
	}
}

func TestEvaluate_InvalidIndicators(t *testing.T) {
	e := currentEngine(t)
	tests := []Indicators{
		{PresenceDimanche: 5},
		{Bapteme: -1},
		{ServiceEglise: 10},
	}
	for _, ind := range tests {
		if _, err := e.Evaluate(ind); !errors.Is(err, ErrInvalidIndicators) {
			t.Errorf("Evaluate(%+v) error = %v, хотели ErrInvalidIndicators", ind, err)
		}
	}
}

func TestValidMonth(t *testing.T) {
	if err := ValidMonth("2099-01"); err != nil {
		t.Errorf("ValidMonth(2099-01) error = %v", err)
	}
	for _, m := range []string{"2099-1", "janvier", "2099-13", ""} {
		if err := ValidMonth(m); !errors.Is(err, ErrInvalidMonth) {
			t.Errorf("ValidMonth(%q) error = %v, хотели ErrInvalidMonth", m, err)
		}
	}
}

func TestDefault(t *testing.T) {
	e := currentEngine(t)
	r := Default(model.SubjectVisitor, "v1", "2099-01", e.Table())
	if r.Score != 0 || r.Level != "Non classé" || r.TableVersion != "v2" {
		t.Errorf("Default() = %+v", r)
	}
}

func TestComputeStatus(t *testing.T) {
	e := currentEngine(t)
	history := []Record{{Score: 60}, {Score: 30}}

	s := e.ComputeStatus(history, nil, nil, nil)
	if s.Computed.AverageScore != 45 || s.Computed.Level != "Intermédiaire" || s.Computed.Months != 2 {
		t.Errorf("Computed = %+v", s.Computed)
	}
	if s.Override != nil {
		t.Error("Override должен быть nil")
	}

	status, comment := "Leader", "décision pastorale"
	s = e.ComputeStatus(history, nil, &status, &comment)
	if s.Override == nil || s.Override.Status != "Leader" || s.Override.Comment != comment {
		t.Fatalf("Override = %+v", s.Override)
	}
	// Ручной статус не затирает вычисленное значение.
	if s.Computed.Level != "Intermédiaire" {
		t.Errorf("Computed.Level = %q после override", s.Computed.Level)
	}
	if s.Effective() != "Leader" {
		t.Errorf("Effective() = %q, хотели Leader", s.Effective())
	}

	empty := e.ComputeStatus(nil, nil, nil, nil)
	if empty.Computed.Level != "Non classé" || empty.Effective() != "Non classé" {
		t.Errorf("пустая история: %+v", empty)
	}
}

func TestComputeStatus_RoundsAverage(t *testing.T) {
	e := currentEngine(t)
	// (20 + 19 + 20 + 19 + 20) / 5 = 19.6 → Débutant (порог 20).
	history := []Record{{Score: 20}, {Score: 19}, {Score: 20}, {Score: 19}, {Score: 20}}
	s := e.ComputeStatus(history, nil, nil, nil)
	if s.Computed.AverageScore != 19.6 {
		t.Errorf("AverageScore = %v, хотели 19.6", s.Computed.AverageScore)
	}
	if s.Computed.Level != "Débutant" {
		t.Errorf("Level = %q, хотели Débutant", s.Computed.Level)
	}

	// 19.4 остаётся ниже порога.
	low := []Record{{Score: 19}, {Score: 19}, {Score: 20}, {Score: 19}, {Score: 20}}
	if got := e.ComputeStatus(low, nil, nil, nil).Computed.Level; got != "Non classé" {
		t.Errorf("Level(19.4) = %q, хотели Non classé", got)
	}
}

func TestComputeStatus_NormalizesLegacyVersions(t *testing.T) {
	e := currentEngine(t)
	scales := Scales{"v1": 72, "v2": 75}
	// v1: 72/72 → 75 в шкале v2; v2: 45 остаётся. Средняя 60 → Confirmé.
	history := []Record{
		{Score: 72, TableVersion: "v1"},
		{Score: 45, TableVersion: "v2"},
	}
	s := e.ComputeStatus(history, scales, nil, nil)
	if s.Computed.AverageScore != 60 || s.Computed.Level != "Confirmé" {
		t.Errorf("Computed = %+v, хотели 60 Confirmé", s.Computed)
	}

	// Без шкалы версии оценка берётся как есть: (72 + 45) / 2 = 58.5.
	s = e.ComputeStatus(history, nil, nil, nil)
	if s.Computed.AverageScore != 58.5 || s.Computed.Level != "Intermédiaire" {
		t.Errorf("Computed без шкал = %+v, хотели 58.5 Intermédiaire", s.Computed)
	}
}

func TestParseRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"неизвестная текущая": `current: v3
tables:
  - version: v1
    levels: [{min: 0, label: a}]`,
		"порог не с нуля": `current: v1
tables:
  - version: v1
    levels: [{min: 5, label: a}]`,
		"пороги не возрастают": `current: v1
tables:
  - version: v1
    levels: [{min: 0, label: a}, {min: 0, label: b}]`,
		"дубликат версии": `current: v1
tables:
  - version: v1
    levels: [{min: 0, label: a}]
  - version: v1
    levels: [{min: 0, label: a}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRegistry([]byte(doc)); err == nil {
				t.Error("ParseRegistry() должен вернуть ошибку")
			}
		})
	}
}
