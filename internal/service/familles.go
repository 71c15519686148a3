// familles.go — секторы, familles d'impact и их участники.
package service

import (
	"context"
	"errors"
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

// MembreDeleter — удаление участника FI вместе с отметками.
type MembreDeleter interface {
	DeleteMembre(ctx context.Context, id string) (repository.CascadeResult, error)
}

// ListParams — параметры списков с сужением и пагинацией.
type ListParams struct {
	scope.Params
	Page
}

// SecteurInput — данные нового сектора.
type SecteurInput struct {
	Name string `json:"name" validate:"required,notblank"`
	City string `json:"city"`
}

// FamilleInput — данные новой FI. PiloteID — устаревшее одиночное поле,
// объединяется с PiloteIDs.
type FamilleInput struct {
	Name      string   `json:"name" validate:"required,notblank"`
	SecteurID string   `json:"secteurId" validate:"required"`
	PiloteID  *string  `json:"piloteId"`
	PiloteIDs []string `json:"piloteIds"`
}

// FamillePatch — частичное обновление FI.
type FamillePatch struct {
	Name      *string
	SecteurID *string
	PiloteID  *string
	PiloteIDs *[]string
}

// MembreInput — данные нового участника FI.
type MembreInput struct {
	VisitorID *string `json:"visitorId"`
	Firstname string  `json:"firstname" validate:"required,notblank"`
	Lastname  string  `json:"lastname" validate:"required,notblank"`
	Phone     string  `json:"phone"`
}

// FamilleService — сервис секторов и FI.
type FamilleService struct {
	gateway
	secteurs repository.SecteurRepository
	familles repository.FamilleRepository
	membres  repository.MembreRepository
	cascade  MembreDeleter
	logger   *slog.Logger
}

// NewFamilleService создаёт сервис FI.
func NewFamilleService(
	secteurs repository.SecteurRepository,
	familles repository.FamilleRepository,
	membres repository.MembreRepository,
	cascade MembreDeleter,
	logger *slog.Logger,
) *FamilleService {
	l := logger.With(slog.String("component", "famille_service"))
	return &FamilleService{
		gateway:  gateway{logger: l},
		secteurs: secteurs,
		familles: familles,
		membres:  membres,
		cascade:  cascade,
		logger:   l,
	}
}

// ListSecteurs возвращает видимые секторы.
func (s *FamilleService) ListSecteurs(ctx context.Context, a *rbac.Actor, params ListParams) ([]*model.Secteur, error) {
	p, err := s.readScope(a, scope.ResourceSecteur, params.Params)
	if err != nil {
		return nil, err
	}
	page := params.Page.Normalize()
	items, err := s.secteurs.List(ctx, p, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("список секторов: %w", err)
	}
	return items, nil
}

// CreateSecteur создаёт сектор. Город по умолчанию — город актора.
func (s *FamilleService) CreateSecteur(ctx context.Context, a *rbac.Actor, in SecteurInput) (*model.Secteur, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		city = a.City
	}
	if city == "" {
		return nil, fmt.Errorf("%w: city: обязательное поле", ErrValidation)
	}

	sec := &model.Secteur{ID: uuid.New().String(), Name: strings.TrimSpace(in.Name), City: city}
	if err := s.authorize(a, scope.ResourceSecteur, access.OpCreate, access.Target{Secteur: sec}); err != nil {
		return nil, err
	}
	if err := s.secteurs.Create(ctx, sec); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("Сектор создан",
		slog.String("secteur_id", sec.ID),
		slog.String("city", sec.City),
		slog.String("created_by", a.UserID),
	)
	return sec, nil
}

// ListFamilles возвращает видимые FI.
func (s *FamilleService) ListFamilles(ctx context.Context, a *rbac.Actor, params ListParams) ([]*model.Famille, error) {
	p, err := s.readScope(a, scope.ResourceFamille, params.Params)
	if err != nil {
		return nil, err
	}
	page := params.Page.Normalize()
	items, err := s.familles.List(ctx, p, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("список FI: %w", err)
	}
	return items, nil
}

// GetFamille возвращает FI; вне области актора — ErrNotFound.
func (s *FamilleService) GetFamille(ctx context.Context, a *rbac.Actor, id string) (*model.Famille, error) {
	return s.loadFamille(ctx, a, scope.ResourceFamille, id)
}

func (s *FamilleService) loadFamille(ctx context.Context, a *rbac.Actor, r scope.Resource, id string) (*model.Famille, error) {
	p, err := s.readScope(a, r, scope.Params{})
	if err != nil {
		return nil, err
	}
	f, err := s.familles.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !scope.MatchFamille(p, *f) {
		return nil, ErrNotFound
	}
	return f, nil
}

// secteurFor загружает сектор, на который ссылается FI.
func (s *FamilleService) secteurFor(ctx context.Context, id string) (*model.Secteur, error) {
	sec, err := s.secteurs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: secteurId: сектор %s не существует", ErrValidation, id)
		}
		return nil, fmt.Errorf("загрузка сектора: %w", err)
	}
	return sec, nil
}

// CreateFamille создаёт FI. Город берётся из сектора.
func (s *FamilleService) CreateFamille(ctx context.Context, a *rbac.Actor, in FamilleInput) (*model.Famille, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	sec, err := s.secteurFor(ctx, in.SecteurID)
	if err != nil {
		return nil, err
	}

	f := &model.Famille{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		SecteurID: sec.ID,
		City:      sec.City,
		PiloteIDs: model.MergeLegacyIDs(in.PiloteID, in.PiloteIDs),
	}
	if err := s.authorize(a, scope.ResourceFamille, access.OpCreate, access.Target{Famille: f}); err != nil {
		return nil, err
	}
	if err := s.familles.Create(ctx, f); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("FI создана",
		slog.String("famille_id", f.ID),
		slog.String("secteur_id", f.SecteurID),
		slog.String("city", f.City),
		slog.String("created_by", a.UserID),
	)
	return f, nil
}

// UpdateFamille применяет частичное обновление. Перенос в сектор
// другого города запрещён; права проверяются до и после изменения.
func (s *FamilleService) UpdateFamille(ctx context.Context, a *rbac.Actor, id string, patch FamillePatch) (*model.Famille, error) {
	if patch.Name == nil && patch.SecteurID == nil && patch.PiloteID == nil && patch.PiloteIDs == nil {
		return nil, fmt.Errorf("%w: пустое обновление", ErrValidation)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: name: не может быть пустым", ErrValidation)
	}

	f, err := s.loadFamille(ctx, a, scope.ResourceFamille, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, scope.ResourceFamille, access.OpUpdate, access.Target{Famille: f}); err != nil {
		return nil, err
	}

	updated := *f
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.SecteurID != nil && *patch.SecteurID != f.SecteurID {
		sec, err := s.secteurFor(ctx, *patch.SecteurID)
		if err != nil {
			return nil, err
		}
		if sec.City != f.City {
			return nil, fmt.Errorf("%w: secteurId: сектор другого города", ErrValidation)
		}
		updated.SecteurID = sec.ID
	}
	if patch.PiloteID != nil || patch.PiloteIDs != nil {
		var multi []string
		if patch.PiloteIDs != nil {
			multi = *patch.PiloteIDs
		}
		updated.PiloteIDs = model.MergeLegacyIDs(patch.PiloteID, multi)
	}

	if err := s.authorize(a, scope.ResourceFamille, access.OpUpdate, access.Target{Famille: &updated}); err != nil {
		return nil, err
	}
	if err := s.familles.Update(ctx, &updated); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("FI обновлена",
		slog.String("famille_id", id),
		slog.String("updated_by", a.UserID),
	)
	return &updated, nil
}

// ListMembres возвращает участников FI.
func (s *FamilleService) ListMembres(ctx context.Context, a *rbac.Actor, familleID string) ([]*model.Membre, error) {
	if _, err := s.loadFamille(ctx, a, scope.ResourceMembre, familleID); err != nil {
		return nil, err
	}
	items, err := s.membres.ListByFamille(ctx, familleID)
	if err != nil {
		return nil, fmt.Errorf("список участников FI: %w", err)
	}
	return items, nil
}

// AddMembre добавляет участника в FI.
func (s *FamilleService) AddMembre(ctx context.Context, a *rbac.Actor, familleID string, in MembreInput) (*model.Membre, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	f, err := s.loadFamille(ctx, a, scope.ResourceMembre, familleID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, scope.ResourceMembre, access.OpCreate, access.Target{Famille: f}); err != nil {
		return nil, err
	}

	m := &model.Membre{
		ID:        uuid.New().String(),
		FamilleID: f.ID,
		VisitorID: in.VisitorID,
		Firstname: strings.TrimSpace(in.Firstname),
		Lastname:  strings.TrimSpace(in.Lastname),
		Phone:     in.Phone,
	}
	if err := s.membres.Create(ctx, m); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("Участник добавлен в FI",
		slog.String("membre_id", m.ID),
		slog.String("famille_id", f.ID),
		slog.String("created_by", a.UserID),
	)
	return m, nil
}

// RemoveMembre удаляет участника FI вместе с его отметками присутствия.
func (s *FamilleService) RemoveMembre(ctx context.Context, a *rbac.Actor, membreID string) (repository.CascadeResult, error) {
	m, err := s.membres.GetByID(ctx, membreID)
	if err != nil {
		return repository.CascadeResult{}, mapRepoErr(err)
	}
	f, err := s.loadFamille(ctx, a, scope.ResourceMembre, m.FamilleID)
	if err != nil {
		return repository.CascadeResult{}, err
	}
	if err := s.authorize(a, scope.ResourceMembre, access.OpDelete, access.Target{Famille: f}); err != nil {
		return repository.CascadeResult{}, err
	}

	res, err := s.cascade.DeleteMembre(ctx, membreID)
	if err != nil {
		return repository.CascadeResult{}, mapRepoErr(err)
	}
	s.logger.Info("Участник удалён из FI",
		slog.String("membre_id", membreID),
		slog.String("famille_id", f.ID),
		slog.Int64("presences", res.Presences),
		slog.String("deleted_by", a.UserID),
	)
	return res, nil
}
