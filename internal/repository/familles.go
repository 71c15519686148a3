package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// SecteurRepository — секторы (таблица secteurs).
type SecteurRepository interface {
	// Create создаёт сектор.
	Create(ctx context.Context, s *model.Secteur) error
	// GetByID возвращает сектор по UUID.
	GetByID(ctx context.Context, id string) (*model.Secteur, error)
	// List возвращает секторы в пределах предиката.
	List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Secteur, error)
}

type secteurRepo struct {
	db DBTX
}

// NewSecteurRepository создаёт репозиторий секторов.
func NewSecteurRepository(db DBTX) SecteurRepository {
	return &secteurRepo{db: db}
}

const secteurColumns = `id, name, city, created_at`

var secteurScope = scopeColumns{City: "city", Sector: "id"}

func (r *secteurRepo) Create(ctx context.Context, s *model.Secteur) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO secteurs (id, name, city) VALUES ($1, $2, $3)
		RETURNING created_at`, s.ID, s.Name, s.City,
	).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сектор %s в городе %s", ErrConflict, s.Name, s.City)
		}
		return fmt.Errorf("ошибка создания сектора: %w", err)
	}
	return nil
}

func (r *secteurRepo) GetByID(ctx context.Context, id string) (*model.Secteur, error) {
	s := &model.Secteur{}
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM secteurs WHERE id = $1`, secteurColumns), id).
		Scan(&s.ID, &s.Name, &s.City, &s.CreatedAt)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сектора: %w", err)
	}
	return s, nil
}

func (r *secteurRepo) List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Secteur, error) {
	w := &where{}
	w.scope(p, secteurScope)
	query := fmt.Sprintf(`SELECT %s FROM secteurs %s ORDER BY city, name %s`,
		secteurColumns, w, w.page(limit, offset))

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка секторов: %w", err)
	}
	defer rows.Close()

	var result []*model.Secteur
	for rows.Next() {
		s := &model.Secteur{}
		if err := rows.Scan(&s.ID, &s.Name, &s.City, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сектора: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// FamilleRepository — familles d'impact (таблица familles).
type FamilleRepository interface {
	// Create создаёт FI.
	Create(ctx context.Context, f *model.Famille) error
	// GetByID возвращает FI по UUID.
	GetByID(ctx context.Context, id string) (*model.Famille, error)
	// List возвращает страницу FI в пределах предиката.
	List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Famille, error)
	// ListAll возвращает все FI в пределах предиката.
	ListAll(ctx context.Context, p scope.Predicate) ([]*model.Famille, error)
	// Update сохраняет название, сектор и пилотов FI.
	Update(ctx context.Context, f *model.Famille) error
}

type familleRepo struct {
	db DBTX
}

// NewFamilleRepository создаёт репозиторий FI.
func NewFamilleRepository(db DBTX) FamilleRepository {
	return &familleRepo{db: db}
}

const familleColumns = `id, name, secteur_id, city, pilote_ids, created_at, updated_at`

var familleScope = scopeColumns{City: "city", Sector: "secteur_id", Fi: "id"}

func (r *familleRepo) Create(ctx context.Context, f *model.Famille) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO familles (id, name, secteur_id, city, pilote_ids)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		f.ID, f.Name, f.SecteurID, f.City, nonNil(f.PiloteIDs),
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: сектор %s", ErrReference, f.SecteurID)
		}
		return fmt.Errorf("ошибка создания FI: %w", err)
	}
	return nil
}

func (r *familleRepo) GetByID(ctx context.Context, id string) (*model.Famille, error) {
	f, err := scanFamille(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM familles WHERE id = $1`, familleColumns), id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения FI: %w", err)
	}
	return f, nil
}

func (r *familleRepo) List(ctx context.Context, p scope.Predicate, limit, offset int) ([]*model.Famille, error) {
	w := &where{}
	w.scope(p, familleScope)
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM familles %s ORDER BY city, name %s`,
		familleColumns, w, w.page(limit, offset)), w.args)
}

func (r *familleRepo) ListAll(ctx context.Context, p scope.Predicate) ([]*model.Famille, error) {
	w := &where{}
	w.scope(p, familleScope)
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM familles %s ORDER BY city, name`, familleColumns, w), w.args)
}

func (r *familleRepo) query(ctx context.Context, query string, args []any) ([]*model.Famille, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка FI: %w", err)
	}
	defer rows.Close()

	var result []*model.Famille
	for rows.Next() {
		f, err := scanFamille(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования FI: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *familleRepo) Update(ctx context.Context, f *model.Famille) error {
	err := r.db.QueryRow(ctx, `
		UPDATE familles SET name = $2, secteur_id = $3, pilote_ids = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		f.ID, f.Name, f.SecteurID, nonNil(f.PiloteIDs),
	).Scan(&f.UpdatedAt)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: сектор %s", ErrReference, f.SecteurID)
		}
		return fmt.Errorf("ошибка обновления FI: %w", err)
	}
	return nil
}

func scanFamille(row rowScanner) (*model.Famille, error) {
	f := &model.Famille{}
	if err := row.Scan(&f.ID, &f.Name, &f.SecteurID, &f.City, &f.PiloteIDs, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

// MembreRepository — участники FI (таблица membres).
type MembreRepository interface {
	// Create добавляет участника в FI.
	Create(ctx context.Context, m *model.Membre) error
	// GetByID возвращает участника по UUID.
	GetByID(ctx context.Context, id string) (*model.Membre, error)
	// ListByFamille возвращает участников одной FI.
	ListByFamille(ctx context.Context, familleID string) ([]*model.Membre, error)
	// ListScoped возвращает участников всех FI в пределах предиката.
	ListScoped(ctx context.Context, p scope.Predicate) ([]*model.Membre, error)
	// Delete удаляет участника.
	Delete(ctx context.Context, id string) error
	// DeleteByVisitor удаляет членства посетителя и возвращает их UUID.
	DeleteByVisitor(ctx context.Context, visitorID string) ([]string, error)
}

type membreRepo struct {
	db DBTX
}

// NewMembreRepository создаёт репозиторий участников FI.
func NewMembreRepository(db DBTX) MembreRepository {
	return &membreRepo{db: db}
}

const membreColumns = `m.id, m.famille_id, m.visitor_id, m.firstname, m.lastname, m.phone, m.created_at`

// Участник виден через свою FI.
var membreScope = scopeColumns{City: "f.city", Sector: "f.secteur_id", Fi: "f.id"}

func (r *membreRepo) Create(ctx context.Context, m *model.Membre) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO membres (id, famille_id, visitor_id, firstname, lastname, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.FamilleID, m.VisitorID, m.Firstname, m.Lastname, m.Phone,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: FI или посетитель", ErrReference)
		}
		return fmt.Errorf("ошибка добавления участника FI: %w", err)
	}
	return nil
}

func (r *membreRepo) GetByID(ctx context.Context, id string) (*model.Membre, error) {
	m, err := scanMembre(r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM membres m WHERE m.id = $1`, membreColumns), id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения участника FI: %w", err)
	}
	return m, nil
}

func (r *membreRepo) ListByFamille(ctx context.Context, familleID string) ([]*model.Membre, error) {
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM membres m WHERE m.famille_id = $1 ORDER BY m.lastname, m.firstname`,
		membreColumns), []any{familleID})
}

func (r *membreRepo) ListScoped(ctx context.Context, p scope.Predicate) ([]*model.Membre, error) {
	w := &where{}
	w.scope(p, membreScope)
	return r.query(ctx, fmt.Sprintf(`
		SELECT %s FROM membres m JOIN familles f ON f.id = m.famille_id
		%s ORDER BY m.famille_id, m.lastname`, membreColumns, w), w.args)
}

func (r *membreRepo) query(ctx context.Context, query string, args []any) ([]*model.Membre, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участников FI: %w", err)
	}
	defer rows.Close()

	var result []*model.Membre
	for rows.Next() {
		m, err := scanMembre(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника FI: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *membreRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM membres WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления участника FI: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *membreRepo) DeleteByVisitor(ctx context.Context, visitorID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM membres WHERE visitor_id = $1 RETURNING id`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления членств посетителя: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanMembre(row rowScanner) (*model.Membre, error) {
	m := &model.Membre{}
	if err := row.Scan(&m.ID, &m.FamilleID, &m.VisitorID, &m.Firstname, &m.Lastname, &m.Phone, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}
