package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// BergerieRepository — группы учеников (таблица bergeries).
type BergerieRepository interface {
	// Create создаёт bergerie.
	Create(ctx context.Context, b *model.Bergerie) error
	// GetByID возвращает bergerie по UUID.
	GetByID(ctx context.Context, id string) (*model.Bergerie, error)
	// List возвращает bergeries в пределах предиката.
	List(ctx context.Context, p scope.Predicate) ([]*model.Bergerie, error)
}

type bergerieRepo struct {
	db DBTX
}

// NewBergerieRepository создаёт репозиторий bergeries.
func NewBergerieRepository(db DBTX) BergerieRepository {
	return &bergerieRepo{db: db}
}

const bergerieColumns = `id, name, city, owner_id, created_at`

var bergerieScope = scopeColumns{City: "city", Owner: "owner_id"}

func (r *bergerieRepo) Create(ctx context.Context, b *model.Bergerie) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO bergeries (id, name, city, owner_id) VALUES ($1, $2, $3, $4)
		RETURNING created_at`, b.ID, b.Name, b.City, b.OwnerID,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания bergerie: %w", err)
	}
	return nil
}

func (r *bergerieRepo) GetByID(ctx context.Context, id string) (*model.Bergerie, error) {
	b := &model.Bergerie{}
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM bergeries WHERE id = $1`, bergerieColumns), id).
		Scan(&b.ID, &b.Name, &b.City, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения bergerie: %w", err)
	}
	return b, nil
}

func (r *bergerieRepo) List(ctx context.Context, p scope.Predicate) ([]*model.Bergerie, error) {
	w := &where{}
	w.scope(p, bergerieScope)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM bergeries %s ORDER BY city, name`, bergerieColumns, w), w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка bergeries: %w", err)
	}
	defer rows.Close()

	var result []*model.Bergerie
	for rows.Next() {
		b := &model.Bergerie{}
		if err := rows.Scan(&b.ID, &b.Name, &b.City, &b.OwnerID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования bergerie: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// BergerieMembreRepository — участники bergeries (таблица bergerie_membres).
type BergerieMembreRepository interface {
	// Create добавляет участника.
	Create(ctx context.Context, m *model.BergerieMembre) error
	// GetByID возвращает участника по UUID.
	GetByID(ctx context.Context, id string) (*model.BergerieMembre, error)
	// ListScoped возвращает участников видимых bergeries.
	ListScoped(ctx context.Context, p scope.Predicate) ([]*model.BergerieMembre, error)
	// SetManualStatus задаёт или снимает (nil) ручной статус KPI.
	SetManualStatus(ctx context.Context, id string, status, comment *string) error
	// DetachVisitor снимает ссылку на удаляемого посетителя.
	DetachVisitor(ctx context.Context, visitorID string) error
}

type bergerieMembreRepo struct {
	db DBTX
}

// NewBergerieMembreRepository создаёт репозиторий участников bergeries.
func NewBergerieMembreRepository(db DBTX) BergerieMembreRepository {
	return &bergerieMembreRepo{db: db}
}

const bergerieMembreColumns = `bm.id, bm.bergerie_id, bm.visitor_id, bm.firstname, bm.lastname,
	bm.manual_status, bm.manual_comment, bm.created_at`

func (r *bergerieMembreRepo) Create(ctx context.Context, m *model.BergerieMembre) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO bergerie_membres (id, bergerie_id, visitor_id, firstname, lastname)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, m.ID, m.BergerieID, m.VisitorID, m.Firstname, m.Lastname,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: bergerie или посетитель", ErrReference)
		}
		return fmt.Errorf("ошибка добавления участника bergerie: %w", err)
	}
	return nil
}

func (r *bergerieMembreRepo) GetByID(ctx context.Context, id string) (*model.BergerieMembre, error) {
	m, err := scanBergerieMembre(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM bergerie_membres bm WHERE bm.id = $1`, bergerieMembreColumns), id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения участника bergerie: %w", err)
	}
	return m, nil
}

func (r *bergerieMembreRepo) ListScoped(ctx context.Context, p scope.Predicate) ([]*model.BergerieMembre, error) {
	w := &where{}
	w.scope(p, scopeColumns{City: "b.city", Owner: "b.owner_id"})
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM bergerie_membres bm JOIN bergeries b ON b.id = bm.bergerie_id
		%s ORDER BY bm.bergerie_id, bm.lastname`, bergerieMembreColumns, w), w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участников bergeries: %w", err)
	}
	defer rows.Close()

	var result []*model.BergerieMembre
	for rows.Next() {
		m, err := scanBergerieMembre(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника bergerie: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *bergerieMembreRepo) SetManualStatus(ctx context.Context, id string, status, comment *string) error {
	if status == nil {
		comment = nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE bergerie_membres SET manual_status = $2, manual_comment = $3 WHERE id = $1`,
		id, status, comment)
	if err != nil {
		return fmt.Errorf("ошибка сохранения ручного статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bergerieMembreRepo) DetachVisitor(ctx context.Context, visitorID string) error {
	if _, err := r.db.Exec(ctx, `UPDATE bergerie_membres SET visitor_id = NULL WHERE visitor_id = $1`, visitorID); err != nil {
		return fmt.Errorf("ошибка отвязки посетителя от bergerie: %w", err)
	}
	return nil
}

func scanBergerieMembre(row rowScanner) (*model.BergerieMembre, error) {
	m := &model.BergerieMembre{}
	if err := row.Scan(
		&m.ID, &m.BergerieID, &m.VisitorID, &m.Firstname, &m.Lastname,
		&m.ManualStatus, &m.ManualComment, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}
