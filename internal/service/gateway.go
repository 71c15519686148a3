// gateway.go — общие проверки видимости и прав для всех сервисов.
package service

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// Параметры пагинации.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page — нормализованные limit/offset.
type Page struct {
	Limit  int
	Offset int
}

// Normalize применяет значения по умолчанию и ограничения.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// gateway — проверки, общие для сервисов.
type gateway struct {
	logger *slog.Logger
}

// readScope строит предикат чтения и сужает его параметрами запроса.
// Роль без доступа к ресурсу получает ErrForbidden, а не пустой список.
func (g gateway) readScope(a *rbac.Actor, r scope.Resource, params scope.Params) (scope.Predicate, error) {
	p := scope.Build(a, r)
	if p.Deny {
		g.denied(a, r, "read", p.DenyReason())
		return p, fmt.Errorf("%w: %s", ErrForbidden, p.DenyReason())
	}
	return scope.Narrow(p, params), nil
}

// authorize проверяет операцию записи.
func (g gateway) authorize(a *rbac.Actor, r scope.Resource, op access.Operation, t access.Target) error {
	d := access.AuthorizeWrite(a, r, op, t)
	if d.Allowed {
		return nil
	}
	g.denied(a, r, string(op), d.Reason)
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

// denied логирует и считает отказ.
func (g gateway) denied(a *rbac.Actor, r scope.Resource, op, reason string) {
	accessDeniedTotal.WithLabelValues(string(r), op).Inc()
	g.logger.Warn("Операция запрещена",
		slog.String("user_id", a.UserID),
		slog.String("role", string(a.Role)),
		slog.String("resource", string(r)),
		slog.String("operation", op),
		slog.String("reason", reason),
	)
}
