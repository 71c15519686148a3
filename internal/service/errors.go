// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/validation"
)

var (
	// ErrNotFound — ресурс не найден или вне области актора.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: ресурс уже существует")
	// ErrForbidden — операция запрещена для роли актора.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrInvalidState — недопустимое значение предметной области
	// (индикатор KPI вне [0,4], некорректный ключ месяца).
	ErrInvalidState = errors.New("недопустимое значение")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = validation.ErrValidation
)

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err) //nolint:errorlint // намеренный двойной wrap
	case errors.Is(err, repository.ErrReference):
		return fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}
	return err
}
