// bergeries.go — группы учеников (bergeries) и их участники.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/validation"
)

// BergerieInput — данные новой bergerie. Пустой OwnerID — актор.
type BergerieInput struct {
	Name    string `json:"name" validate:"required,notblank"`
	City    string `json:"city"`
	OwnerID string `json:"ownerId"`
}

// BergerieMembreInput — данные нового участника bergerie.
type BergerieMembreInput struct {
	VisitorID *string `json:"visitorId"`
	Firstname string  `json:"firstname" validate:"required,notblank"`
	Lastname  string  `json:"lastname" validate:"required,notblank"`
}

// BergerieService — сервис bergeries.
type BergerieService struct {
	gateway
	bergeries repository.BergerieRepository
	membres   repository.BergerieMembreRepository
	logger    *slog.Logger
}

// NewBergerieService создаёт сервис bergeries.
func NewBergerieService(
	bergeries repository.BergerieRepository,
	membres repository.BergerieMembreRepository,
	logger *slog.Logger,
) *BergerieService {
	l := logger.With(slog.String("component", "bergerie_service"))
	return &BergerieService{
		gateway:   gateway{logger: l},
		bergeries: bergeries,
		membres:   membres,
		logger:    l,
	}
}

// List возвращает видимые bergeries: пастух видит только свои.
func (s *BergerieService) List(ctx context.Context, a *rbac.Actor, params scope.Params) ([]*model.Bergerie, error) {
	p, err := s.readScope(a, scope.ResourceBergerie, params)
	if err != nil {
		return nil, err
	}
	items, err := s.bergeries.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("список bergeries: %w", err)
	}
	return items, nil
}

// Create создаёт bergerie.
func (s *BergerieService) Create(ctx context.Context, a *rbac.Actor, in BergerieInput) (*model.Bergerie, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	b := &model.Bergerie{
		ID:      uuid.New().String(),
		Name:    strings.TrimSpace(in.Name),
		City:    strings.TrimSpace(in.City),
		OwnerID: strings.TrimSpace(in.OwnerID),
	}
	if b.City == "" {
		b.City = a.City
	}
	if b.OwnerID == "" {
		b.OwnerID = a.UserID
	}
	if b.City == "" {
		return nil, fmt.Errorf("%w: city: обязательное поле", ErrValidation)
	}

	if err := s.authorize(a, scope.ResourceBergerie, access.OpCreate, access.Target{Bergerie: b}); err != nil {
		return nil, err
	}
	if err := s.bergeries.Create(ctx, b); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("Bergerie создана",
		slog.String("bergerie_id", b.ID),
		slog.String("owner_id", b.OwnerID),
		slog.String("created_by", a.UserID),
	)
	return b, nil
}

func (s *BergerieService) load(ctx context.Context, a *rbac.Actor, id string) (*model.Bergerie, scope.Predicate, error) {
	p, err := s.readScope(a, scope.ResourceBergerie, scope.Params{})
	if err != nil {
		return nil, p, err
	}
	b, err := s.bergeries.GetByID(ctx, id)
	if err != nil {
		return nil, p, mapRepoErr(err)
	}
	if !scope.MatchBergerie(p, *b) {
		return nil, p, ErrNotFound
	}
	return b, p, nil
}

// ListMembres возвращает участников bergerie.
func (s *BergerieService) ListMembres(ctx context.Context, a *rbac.Actor, bergerieID string) ([]*model.BergerieMembre, error) {
	_, p, err := s.load(ctx, a, bergerieID)
	if err != nil {
		return nil, err
	}
	items, err := s.membres.ListScoped(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("список участников bergerie: %w", err)
	}
	out := make([]*model.BergerieMembre, 0, len(items))
	for _, m := range items {
		if m.BergerieID == bergerieID {
			out = append(out, m)
		}
	}
	return out, nil
}

// AddMembre добавляет участника в bergerie.
func (s *BergerieService) AddMembre(ctx context.Context, a *rbac.Actor, bergerieID string, in BergerieMembreInput) (*model.BergerieMembre, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	b, _, err := s.load(ctx, a, bergerieID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, scope.ResourceBergerie, access.OpUpdate, access.Target{Bergerie: b}); err != nil {
		return nil, err
	}

	m := &model.BergerieMembre{
		ID:         uuid.New().String(),
		BergerieID: b.ID,
		VisitorID:  in.VisitorID,
		Firstname:  strings.TrimSpace(in.Firstname),
		Lastname:   strings.TrimSpace(in.Lastname),
	}
	if err := s.membres.Create(ctx, m); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("Участник добавлен в bergerie",
		slog.String("membre_id", m.ID),
		slog.String("bergerie_id", b.ID),
		slog.String("created_by", a.UserID),
	)
	return m, nil
}
