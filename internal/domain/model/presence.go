package model

import "time"

// SubjectKind — вид субъекта присутствия или KPI.
type SubjectKind string

// Виды субъектов.
const (
	SubjectVisitor        SubjectKind = "visitor"
	SubjectMembre         SubjectKind = "membre"
	SubjectBergerieMembre SubjectKind = "bergerie_membre"
)

// IsValid проверяет допустимость вида субъекта.
func (k SubjectKind) IsValid() bool {
	switch k {
	case SubjectVisitor, SubjectMembre, SubjectBergerieMembre:
		return true
	}
	return false
}

// Presence — отметка присутствия.
// Корзина (jeudi/dimanche) задаётся тегом при вводе и хранится
// независимо от дня недели Date.
// Хранится в таблице presences, ключ (subject_kind, subject_id, date).
type Presence struct {
	// ID — UUID записи
	ID string
	// SubjectKind — вид субъекта
	SubjectKind SubjectKind
	// SubjectID — идентификатор субъекта
	SubjectID string
	// Date — календарная дата отметки
	Date time.Time
	// Bucket — корзина: jeudi или dimanche
	Bucket string
	// Present — присутствовал ли
	Present bool
	// RecordedBy — кто внёс отметку
	RecordedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
