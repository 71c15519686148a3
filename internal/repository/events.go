package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// EventRepository — мероприятия (таблица events).
type EventRepository interface {
	// Create создаёт мероприятие.
	Create(ctx context.Context, e *model.Event) error
	// GetByID возвращает мероприятие по UUID.
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// List возвращает мероприятия в пределах предиката.
	List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Event, error)
	// Delete удаляет строку мероприятия без ответов.
	Delete(ctx context.Context, id string) error
}

type eventRepo struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий мероприятий.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepo{db: db}
}

const eventColumns = `id, title, city, starts_at, created_by, created_at`

func (r *eventRepo) Create(ctx context.Context, e *model.Event) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO events (id, title, city, starts_at, created_by) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, e.ID, e.Title, e.City, e.StartsAt, e.CreatedBy,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания мероприятия: %w", err)
	}
	return nil
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e := &model.Event{}
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns), id).
		Scan(&e.ID, &e.Title, &e.City, &e.StartsAt, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	return e, nil
}

func (r *eventRepo) List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Event, error) {
	w := &where{}
	w.scope(p, scopeColumns{City: "city"})
	query := fmt.Sprintf(`SELECT %s FROM events %s ORDER BY starts_at DESC %s`, eventColumns, w, w.page(limit, offset))

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка мероприятий: %w", err)
	}
	defer rows.Close()

	var result []*model.Event
	for rows.Next() {
		e := &model.Event{}
		if err := rows.Scan(&e.ID, &e.Title, &e.City, &e.StartsAt, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования мероприятия: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *eventRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления мероприятия: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RSVPRepository — ответы на приглашения (таблица event_rsvps).
type RSVPRepository interface {
	// Create сохраняет ответ.
	Create(ctx context.Context, r *model.RSVP) error
	// ListByEvent возвращает ответы на мероприятие.
	ListByEvent(ctx context.Context, eventID string) ([]*model.RSVP, error)
	// DeleteByEvent удаляет все ответы мероприятия.
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
}

type rsvpRepo struct {
	db DBTX
}

// NewRSVPRepository создаёт репозиторий ответов.
func NewRSVPRepository(db DBTX) RSVPRepository {
	return &rsvpRepo{db: db}
}

func (r *rsvpRepo) Create(ctx context.Context, rsvp *model.RSVP) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO event_rsvps (id, event_id, name, email, status) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, rsvp.ID, rsvp.EventID, rsvp.Name, rsvp.Email, rsvp.Status,
	).Scan(&rsvp.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: мероприятие %s", ErrReference, rsvp.EventID)
		}
		return fmt.Errorf("ошибка сохранения ответа: %w", err)
	}
	return nil
}

func (r *rsvpRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.RSVP, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, name, email, status, created_at
		FROM event_rsvps WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ответов: %w", err)
	}
	defer rows.Close()

	var result []*model.RSVP
	for rows.Next() {
		v := &model.RSVP{}
		if err := rows.Scan(&v.ID, &v.EventID, &v.Name, &v.Email, &v.Status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ответа: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *rsvpRepo) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM event_rsvps WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления ответов: %w", err)
	}
	return tag.RowsAffected(), nil
}
