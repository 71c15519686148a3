// fidelisation.go — сводки посещаемости по видимым актору данным.
// Отказ загрузки отметок не роняет ответ: итоги возвращаются
// с нулевыми ставками и признаком Degraded.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/fidelisation"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
)

// FidelisationQuery — параметры сводки по посетителям.
type FidelisationQuery struct {
	scope.Params
	From *time.Time
	To   *time.Time
}

// FIQuery — параметры сводки по FI. Date включает режим point_in_time.
type FIQuery struct {
	scope.Params
	Date *time.Time
}

// FidelisationService — сервис фиделизации.
type FidelisationService struct {
	gateway
	visitors  repository.VisitorRepository
	familles  repository.FamilleRepository
	membres   repository.MembreRepository
	presences repository.PresenceRepository
	loyalty   int
	logger    *slog.Logger
}

// NewFidelisationService создаёт сервис. loyalty — минимум присутствий
// для статуса fidèle (PA_LOYALTY_THRESHOLD).
func NewFidelisationService(
	visitors repository.VisitorRepository,
	familles repository.FamilleRepository,
	membres repository.MembreRepository,
	presences repository.PresenceRepository,
	loyalty int,
	logger *slog.Logger,
) *FidelisationService {
	l := logger.With(slog.String("component", "fidelisation_service"))
	return &FidelisationService{
		gateway:   gateway{logger: l},
		visitors:  visitors,
		familles:  familles,
		membres:   membres,
		presences: presences,
		loyalty:   loyalty,
		logger:    l,
	}
}

// Visitors — недельная посещаемость посетителей в области актора.
func (s *FidelisationService) Visitors(ctx context.Context, a *rbac.Actor, q FidelisationQuery) (*fidelisation.Summary, error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: to раньше from", ErrValidation)
	}
	p, err := s.readScope(a, scope.ResourceVisitor, q.Params)
	if err != nil {
		return nil, err
	}
	items, err := s.visitors.ListAll(ctx, repository.VisitorFilter{Scope: p})
	if err != nil {
		return nil, fmt.Errorf("посетители для фиделизации: %w", err)
	}
	visitors := deref(items)

	presences, err := s.presences.List(ctx, repository.PresenceFilter{
		Kind:  model.SubjectVisitor,
		Scope: p,
		From:  q.From,
		To:    q.To,
	})
	if err != nil {
		s.degraded(a, "visitors", err)
		sum := fidelisation.Degrade(visitors)
		return &sum, nil
	}

	var w fidelisation.Window
	if q.From != nil {
		w.From = *q.From
	}
	if q.To != nil {
		w.To = *q.To
	}
	sum := fidelisation.Compute(visitors, deref(presences), w)
	return &sum, nil
}

// FI — сводка по familles d'impact: на дату или по лояльности.
func (s *FidelisationService) FI(ctx context.Context, a *rbac.Actor, q FIQuery) (*fidelisation.FISummary, error) {
	p, err := s.readScope(a, scope.ResourcePresence, q.Params)
	if err != nil {
		return nil, err
	}
	fis, err := s.familles.ListAll(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("FI для фиделизации: %w", err)
	}
	membres, err := s.membres.ListScoped(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("участники FI для фиделизации: %w", err)
	}

	city := q.City
	if city == "" && !a.IsMultiCity() {
		city = a.City
	}
	opt := fidelisation.Options{City: city, LoyaltyThreshold: s.loyalty}
	filter := repository.PresenceFilter{Kind: model.SubjectMembre, Scope: p}
	if q.Date != nil {
		y, m, d := q.Date.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		opt.Date = &day
		filter.From, filter.To = &day, &day
	}

	presences, err := s.presences.List(ctx, filter)
	if err != nil {
		s.degraded(a, "fi", err)
		sum := fidelisation.ComputeFI(deref(fis), deref(membres), nil, opt)
		sum.Degraded = true
		return &sum, nil
	}
	sum := fidelisation.ComputeFI(deref(fis), deref(membres), deref(presences), opt)
	return &sum, nil
}

func (s *FidelisationService) degraded(a *rbac.Actor, summary string, err error) {
	fidelisationDegradedTotal.Inc()
	s.logger.Warn("Отметки присутствия недоступны, сводка без ставок",
		slog.String("summary", summary),
		slog.String("user_id", a.UserID),
		slog.String("error", err.Error()),
	)
}
