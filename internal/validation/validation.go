// Пакет validation — общий валидатор структур на go-playground/validator.
// Имена полей в ошибках берутся из json-тегов.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/pastorale/internal/domain/rbac"
)

// ErrValidation — данные не прошли валидацию.
var ErrValidation = errors.New("ошибка валидации")

// Пользовательские теги.
const (
	tagMonth    = "month"
	tagNotBlank = "notblank"
	tagRole     = "role"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(tagMonth, func(fl validator.FieldLevel) bool {
		return rbac.ValidMonth(fl.Field().String())
	})
	_ = v.RegisterValidation(tagNotBlank, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation(tagRole, func(fl validator.FieldLevel) bool {
		return rbac.IsValidRole(fl.Field().String())
	})
	return v
}

// FieldError — нарушение правила одного поля (имя из json-тега).
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors — ошибки полей одной структуры в порядке объявления.
// Оборачивает ErrValidation.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, e := range fe {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (fe FieldErrors) Unwrap() error { return ErrValidation }

// Map возвращает поле → сообщение для ответа API.
func (fe FieldErrors) Map() map[string]string {
	out := make(map[string]string, len(fe))
	for _, e := range fe {
		out[e.Field] = e.Message
	}
	return out
}

// Struct валидирует структуру. Ошибка — FieldErrors (оборачивает
// ErrValidation) с перечислением полей.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

// Var валидирует одиночное значение по тегу.
func Var(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s: %s", ErrValidation, field, describe(verrs[0]))
		}
		return fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "min", "gte":
		return "значение меньше " + fe.Param()
	case "max", "lte":
		return "значение больше " + fe.Param()
	case "oneof":
		return "допустимые значения: " + fe.Param()
	case "email":
		return "некорректный email"
	case tagMonth:
		return "ожидается формат YYYY-MM"
	case tagNotBlank:
		return "не может быть пустым"
	case tagRole:
		return "неизвестная роль"
	}
	return "не прошло проверку " + fe.Tag()
}
