package model

import "time"

// Bergerie — малая группа ученичества, ведёт пастух (discipleship_shepherd).
// Хранится в таблице bergeries.
type Bergerie struct {
	// ID — UUID записи
	ID string
	// Name — название
	Name string
	// City — город
	City string
	// OwnerID — пастух группы
	OwnerID string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// BergerieMembre — участник bergerie, второй вид субъекта KPI.
// Хранится в таблице bergerie_membres.
type BergerieMembre struct {
	// ID — UUID записи
	ID string
	// BergerieID — группа
	BergerieID string
	// VisitorID — посетитель (nil для внесённых вручную)
	VisitorID *string
	// Firstname — имя
	Firstname string
	// Lastname — фамилия
	Lastname string
	// ManualStatus — ручной статус KPI
	ManualStatus *string
	// ManualComment — комментарий к ручному статусу
	ManualComment *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
