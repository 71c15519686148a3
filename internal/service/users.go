// users.go — локальные профили пользователей: роль, город, закрепления.
// Аутентификацию выполняет IdP; здесь хранится только то, из чего
// строится контекст актора.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/validation"
)

// MinPasswordLength — минимальная длина нового пароля.
const MinPasswordLength = 8

// UserInput — данные нового профиля. AssignedFiID — устаревшее
// одиночное поле, объединяется с AssignedFiIDs.
type UserInput struct {
	ID               string   `json:"id" validate:"required,notblank"`
	Username         string   `json:"username" validate:"required,notblank"`
	Role             string   `json:"role" validate:"required,role"`
	City             string   `json:"city"`
	AssignedMonths   []string `json:"assignedMonths"`
	AssignedSectorID *string  `json:"assignedSectorId"`
	AssignedFiID     *string  `json:"assignedFiId"`
	AssignedFiIDs    []string `json:"assignedFiIds"`
}

// UserService — сервис профилей пользователей.
type UserService struct {
	gateway
	users  repository.UserRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewUserService создаёт сервис профилей.
func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	l := logger.With(slog.String("component", "user_service"))
	return &UserService{
		gateway: gateway{logger: l},
		users:   users,
		now:     time.Now,
		logger:  l,
	}
}

// Profile возвращает профиль для построения контекста актора.
func (s *UserService) Profile(ctx context.Context, userID string) (rbac.Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return rbac.Profile{}, mapRepoErr(err)
	}
	return u.Profile(), nil
}

func (s *UserService) requireAdmin(a *rbac.Actor, op string) error {
	if a.Role == rbac.RoleSuperAdmin {
		return nil
	}
	reason := "управление пользователями доступно только super_admin"
	s.denied(a, access.ResourceUser, op, reason)
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Create создаёт профиль. Профиль проверяется теми же правилами,
// что и контекст актора: невалидный профиль не сохраняется.
func (s *UserService) Create(ctx context.Context, a *rbac.Actor, in UserInput) (*model.User, error) {
	if err := s.requireAdmin(a, string(access.OpCreate)); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}

	u := &model.User{
		ID:               strings.TrimSpace(in.ID),
		Username:         strings.TrimSpace(in.Username),
		Role:             role,
		City:             strings.TrimSpace(in.City),
		AssignedMonths:   in.AssignedMonths,
		AssignedSectorID: in.AssignedSectorID,
		AssignedFiIDs:    model.MergeLegacyIDs(in.AssignedFiID, in.AssignedFiIDs),
	}
	if _, err := rbac.NewActor(u.Profile(), ""); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Профиль пользователя создан",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
		slog.String("city", u.City),
		slog.String("created_by", a.UserID),
	)
	return u, nil
}

// List возвращает профили с пагинацией.
func (s *UserService) List(ctx context.Context, a *rbac.Actor, page Page) ([]*model.User, error) {
	if err := s.requireAdmin(a, "list"); err != nil {
		return nil, err
	}
	page = page.Normalize()
	items, err := s.users.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	return items, nil
}

// ResetPassword задаёт новый пароль пользователя. Доступно только
// super_admin; для остальных ролей отказ не зависит от цели.
func (s *UserService) ResetPassword(ctx context.Context, a *rbac.Actor, userID, password string) error {
	if err := s.authorize(a, access.ResourceUser, access.OpResetPassword, access.Target{}); err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password: минимум %d символов", ErrValidation, MinPasswordLength)
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return mapRepoErr(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return fmt.Errorf("%w: password: слишком длинный", ErrValidation)
		}
		return fmt.Errorf("хэширование пароля: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash), s.now().UTC()); err != nil {
		return mapRepoErr(err)
	}

	s.logger.Info("Пароль пользователя сброшен",
		slog.String("user_id", userID),
		slog.String("reset_by", a.UserID),
	)
	return nil
}
