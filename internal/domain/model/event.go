package model

import "time"

// RSVP-статусы.
const (
	RSVPYes   = "yes"
	RSVPNo    = "no"
	RSVPMaybe = "maybe"
)

// Event — мероприятие города.
// Хранится в таблице events.
type Event struct {
	// ID — UUID записи
	ID string
	// Title — название
	Title string
	// City — город
	City string
	// StartsAt — начало мероприятия
	StartsAt time.Time
	// CreatedBy — кто создал
	CreatedBy string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// RSVP — ответ на приглашение. Удаляется вместе с мероприятием.
// Хранится в таблице event_rsvps.
type RSVP struct {
	// ID — UUID записи
	ID string
	// EventID — мероприятие
	EventID string
	// Name — имя ответившего
	Name string
	// Email — адрес электронной почты
	Email string
	// Status — yes, no, maybe
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
