package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// VisitorFilter — условия выборки посетителей.
type VisitorFilter struct {
	// Scope — предикат видимости актора (уже суженный параметрами)
	Scope scope.Predicate
	// Stopped — фильтр по остановленному сопровождению (nil — все)
	Stopped *bool
}

// VisitorRepository — посетители (таблица visitors).
type VisitorRepository interface {
	// Create создаёт посетителя.
	Create(ctx context.Context, v *model.Visitor) error
	// GetByID возвращает посетителя по UUID.
	GetByID(ctx context.Context, id string) (*model.Visitor, error)
	// List возвращает страницу посетителей в пределах предиката.
	List(ctx context.Context, f VisitorFilter, limit, offset int) ([]*model.Visitor, error)
	// ListAll возвращает всех посетителей в пределах предиката.
	ListAll(ctx context.Context, f VisitorFilter) ([]*model.Visitor, error)
	// Count возвращает количество посетителей в пределах предиката.
	Count(ctx context.Context, f VisitorFilter) (int, error)
	// Update сохраняет изменяемые поля посетителя.
	Update(ctx context.Context, v *model.Visitor) error
	// Delete удаляет строку посетителя без связанных записей.
	Delete(ctx context.Context, id string) error
	// MarkStopped переводит посетителя в состояние «сопровождение остановлено».
	// Возвращает false, если посетитель уже был остановлен.
	MarkStopped(ctx context.Context, id string, at time.Time) (bool, error)
	// SetManualStatus задаёт или снимает (nil) ручной статус KPI.
	SetManualStatus(ctx context.Context, id string, status, comment *string) error
}

type visitorRepo struct {
	db DBTX
}

// NewVisitorRepository создаёт репозиторий посетителей.
func NewVisitorRepository(db DBTX) VisitorRepository {
	return &visitorRepo{db: db}
}

const visitorColumns = `id, firstname, lastname, phone, email, arrival_channel, city,
	visit_date, assigned_month, types, ejp, tracking_stopped, tracking_stopped_at,
	manual_status, manual_comment, created_by, created_at, updated_at`

var visitorScope = scopeColumns{City: "city", Month: "assigned_month"}

func (r *visitorRepo) Create(ctx context.Context, v *model.Visitor) error {
	v.Normalize()
	query := `
		INSERT INTO visitors (id, firstname, lastname, phone, email, arrival_channel, city,
			visit_date, assigned_month, types, ejp, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		v.ID, v.Firstname, v.Lastname, v.Phone, v.Email, v.ArrivalChannel, v.City,
		v.VisitDate, v.AssignedMonth, typesToStrings(v.Types), v.EJP, v.CreatedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: посетитель %s", ErrConflict, v.ID)
		}
		return fmt.Errorf("ошибка создания посетителя: %w", err)
	}
	return nil
}

func (r *visitorRepo) GetByID(ctx context.Context, id string) (*model.Visitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM visitors WHERE id = $1`, visitorColumns)

	v, err := scanVisitor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения посетителя: %w", err)
	}
	return v, nil
}

func (f VisitorFilter) where() *where {
	w := &where{}
	w.scope(f.Scope, visitorScope)
	if f.Stopped != nil {
		w.eq("tracking_stopped", *f.Stopped)
	}
	return w
}

func (r *visitorRepo) List(ctx context.Context, f VisitorFilter, limit, offset int) ([]*model.Visitor, error) {
	w := f.where()
	query := fmt.Sprintf(`SELECT %s FROM visitors %s ORDER BY visit_date DESC, lastname, id %s`,
		visitorColumns, w, w.page(limit, offset))
	return r.query(ctx, query, w.args)
}

func (r *visitorRepo) ListAll(ctx context.Context, f VisitorFilter) ([]*model.Visitor, error) {
	w := f.where()
	query := fmt.Sprintf(`SELECT %s FROM visitors %s ORDER BY visit_date, id`, visitorColumns, w)
	return r.query(ctx, query, w.args)
}

func (r *visitorRepo) query(ctx context.Context, query string, args []any) ([]*model.Visitor, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка посетителей: %w", err)
	}
	defer rows.Close()

	var result []*model.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования посетителя: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *visitorRepo) Count(ctx context.Context, f VisitorFilter) (int, error) {
	w := f.where()
	var count int
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM visitors %s`, w), w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта посетителей: %w", err)
	}
	return count, nil
}

func (r *visitorRepo) Update(ctx context.Context, v *model.Visitor) error {
	v.Normalize()
	query := `
		UPDATE visitors
		SET firstname = $2, lastname = $3, phone = $4, email = $5, arrival_channel = $6,
			city = $7, visit_date = $8, assigned_month = $9, types = $10, ejp = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		v.ID, v.Firstname, v.Lastname, v.Phone, v.Email, v.ArrivalChannel,
		v.City, v.VisitDate, v.AssignedMonth, typesToStrings(v.Types), v.EJP,
	).Scan(&v.UpdatedAt)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления посетителя: %w", err)
	}
	return nil
}

func (r *visitorRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM visitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления посетителя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *visitorRepo) MarkStopped(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE visitors
		SET tracking_stopped = true, tracking_stopped_at = $2, updated_at = now()
		WHERE id = $1 AND NOT tracking_stopped`, id, at)
	if err != nil {
		return false, fmt.Errorf("ошибка остановки сопровождения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *visitorRepo) SetManualStatus(ctx context.Context, id string, status, comment *string) error {
	if status == nil {
		comment = nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE visitors SET manual_status = $2, manual_comment = $3, updated_at = now()
		WHERE id = $1`, id, status, comment)
	if err != nil {
		return fmt.Errorf("ошибка сохранения ручного статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVisitor(row rowScanner) (*model.Visitor, error) {
	v := &model.Visitor{}
	var types []string
	if err := row.Scan(
		&v.ID, &v.Firstname, &v.Lastname, &v.Phone, &v.Email, &v.ArrivalChannel, &v.City,
		&v.VisitDate, &v.AssignedMonth, &types, &v.EJP, &v.TrackingStopped, &v.TrackingStoppedAt,
		&v.ManualStatus, &v.ManualComment, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.Types = make([]model.VisitorType, 0, len(types))
	for _, t := range types {
		v.Types = append(v.Types, model.VisitorType(t))
	}
	return v, nil
}

func typesToStrings(types []model.VisitorType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}
