package kpi

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// ErrUnknownTable — версия таблицы не найдена.
var ErrUnknownTable = errors.New("неизвестная версия таблицы KPI")

// Weights — веса шести индикаторов.
type Weights struct {
	PresenceDimanche         int `yaml:"presence_dimanche" json:"presenceDimanche"`
	PresenceFi               int `yaml:"presence_fi" json:"presenceFi"`
	PresenceReunionDisciples int `yaml:"presence_reunion_disciples" json:"presenceReunionDisciples"`
	ServiceEglise            int `yaml:"service_eglise" json:"serviceEglise"`
	ConsommationPainDuJour   int `yaml:"consommation_pain_du_jour" json:"consommationPainDuJour"`
	Bapteme                  int `yaml:"bapteme" json:"bapteme"`
}

func (w Weights) values() [6]int {
	return [6]int{
		w.PresenceDimanche,
		w.PresenceFi,
		w.PresenceReunionDisciples,
		w.ServiceEglise,
		w.ConsommationPainDuJour,
		w.Bapteme,
	}
}

// LevelThreshold — нижняя граница уровня (включительно).
type LevelThreshold struct {
	Min   int    `yaml:"min" json:"min"`
	Label string `yaml:"label" json:"label"`
}

// Table — версионированная таблица весов и порогов.
type Table struct {
	Version  string           `yaml:"version" json:"version"`
	MaxScore int              `yaml:"max_score" json:"maxScore"`
	Weights  Weights          `yaml:"weights" json:"weights"`
	Levels   []LevelThreshold `yaml:"levels" json:"levels"`
}

// Validate проверяет таблицу: версия задана, веса неотрицательны,
// пороги начинаются с 0 и строго возрастают.
func (t Table) Validate() error {
	if t.Version == "" {
		return errors.New("таблица без версии")
	}
	for _, w := range t.Weights.values() {
		if w < 0 {
			return fmt.Errorf("таблица %s: отрицательный вес", t.Version)
		}
	}
	if len(t.Levels) == 0 || t.Levels[0].Min != 0 {
		return fmt.Errorf("таблица %s: первый порог должен быть 0", t.Version)
	}
	for i := 1; i < len(t.Levels); i++ {
		if t.Levels[i].Min <= t.Levels[i-1].Min {
			return fmt.Errorf("таблица %s: пороги должны возрастать", t.Version)
		}
	}
	return nil
}

// BaseLevel — уровень нулевого счёта («Non classé»).
func (t Table) BaseLevel() string {
	return t.Levels[0].Label
}

// Registry — набор таблиц и текущая версия.
type Registry struct {
	Current string  `yaml:"current"`
	Tables  []Table `yaml:"tables"`
}

// ParseRegistry разбирает YAML-реестр и проверяет таблицы.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("разбор реестра KPI: %w", err)
	}
	seen := make(map[string]bool, len(r.Tables))
	for _, t := range r.Tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.Version] {
			return nil, fmt.Errorf("дублирующаяся версия таблицы %s", t.Version)
		}
		seen[t.Version] = true
	}
	if _, err := r.Table(r.Current); err != nil {
		return nil, fmt.Errorf("текущая версия: %w", err)
	}
	sort.Slice(r.Tables, func(i, j int) bool { return r.Tables[i].Version < r.Tables[j].Version })
	return &r, nil
}

// DefaultRegistry — встроенный реестр tables.yaml.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(tablesYAML)
}

// Table возвращает таблицу по версии.
func (r *Registry) Table(version string) (Table, error) {
	for _, t := range r.Tables {
		if t.Version == version {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, version)
}
