package model

import "time"

// Secteur — сектор города, объединяет несколько FI.
// Хранится в таблице secteurs.
type Secteur struct {
	// ID — UUID записи
	ID string
	// Name — название сектора
	Name string
	// City — город
	City string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// Famille — Famille d'Impact (FI), малая группа внутри сектора.
// Хранится в таблице familles.
type Famille struct {
	// ID — UUID записи
	ID string
	// Name — название FI
	Name string
	// SecteurID — сектор
	SecteurID string
	// City — город (совпадает с городом сектора)
	City string
	// PiloteIDs — пилоты FI; одиночное поле pilote_id выводится из первого
	PiloteIDs []string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// PiloteID — первый пилот или nil.
func (f *Famille) PiloteID() *string {
	return firstOrNil(f.PiloteIDs)
}

// Membre — участник FI. Может ссылаться на посетителя
// или быть внесён вручную.
// Хранится в таблице membres.
type Membre struct {
	// ID — UUID записи
	ID string
	// FamilleID — FI участника
	FamilleID string
	// VisitorID — посетитель (nil для внесённых вручную)
	VisitorID *string
	// Firstname — имя
	Firstname string
	// Lastname — фамилия
	Lastname string
	// Phone — телефон
	Phone string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
