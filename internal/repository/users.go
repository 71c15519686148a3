package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

// UserRepository — профили пользователей (таблица users).
type UserRepository interface {
	// Create создаёт профиль.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает профиль по идентификатору IdP.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// List возвращает профили с пагинацией.
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
	// UpdatePassword сохраняет новый bcrypt-хэш.
	UpdatePassword(ctx context.Context, id, hash string, at time.Time) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий профилей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, role, city, assigned_months, assigned_sector_id,
	assigned_fi_ids, password_hash, password_reset_at, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, username, role, city, assigned_months, assigned_sector_id, assigned_fi_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Username, string(u.Role), nullString(u.City),
		nonNil(u.AssignedMonths), u.AssignedSectorID, nonNil(u.AssignedFiIDs),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь %s уже существует", ErrConflict, u.Username)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	var w where
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY username %s`, userColumns, w.page(limit, offset))

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) UpdatePassword(ctx context.Context, id, hash string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, password_reset_at = $3, updated_at = now()
		WHERE id = $1`, id, hash, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var role string
	var city *string
	if err := row.Scan(
		&u.ID, &u.Username, &role, &city, &u.AssignedMonths, &u.AssignedSectorID,
		&u.AssignedFiIDs, &u.PasswordHash, &u.PasswordResetAt, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = rbac.Role(role)
	if city != nil {
		u.City = *city
	}
	return u, nil
}
