// visitors.go — сервис посетителей: списки по предикату, проекция
// полей по роли, изменения через проверку прав.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/projection"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/export"
	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/validation"
)

// VisitorDeleter — каскадное удаление посетителя.
type VisitorDeleter interface {
	DeleteVisitor(ctx context.Context, id string) (repository.CascadeResult, error)
}

// VisitorListParams — параметры списка посетителей.
type VisitorListParams struct {
	scope.Params
	// Stopped — только остановленные (true) или только активные (false)
	Stopped *bool
	Page
}

// VisitorPage — страница спроецированных посетителей.
type VisitorPage struct {
	// Fields — поля проекции для роли актора
	Fields  []string
	Items   []projection.Record
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}

// VisitorInput — данные нового посетителя.
type VisitorInput struct {
	Firstname      string    `json:"firstname" validate:"required,notblank"`
	Lastname       string    `json:"lastname" validate:"required,notblank"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email" validate:"omitempty,email"`
	ArrivalChannel string    `json:"arrivalChannel"`
	City           string    `json:"city"`
	VisitDate      time.Time `json:"visitDate" validate:"required"`
	Types          []string  `json:"types" validate:"dive,oneof=new_arrival new_convert passerby"`
	EJP            bool      `json:"ejp"`
}

// VisitorService — сервис посетителей.
type VisitorService struct {
	gateway
	visitors repository.VisitorRepository
	cascade  VisitorDeleter
	logger   *slog.Logger
}

// NewVisitorService создаёт сервис посетителей.
func NewVisitorService(
	visitors repository.VisitorRepository,
	cascade VisitorDeleter,
	logger *slog.Logger,
) *VisitorService {
	l := logger.With(slog.String("component", "visitor_service"))
	return &VisitorService{
		gateway:  gateway{logger: l},
		visitors: visitors,
		cascade:  cascade,
		logger:   l,
	}
}

// List возвращает страницу видимых актору посетителей.
// Список остановленных доступен только super_admin и pastor.
func (s *VisitorService) List(ctx context.Context, a *rbac.Actor, params VisitorListParams) (*VisitorPage, error) {
	if params.Stopped != nil && *params.Stopped {
		if err := s.authorize(a, scope.ResourceVisitor, access.OpReadStopped, access.Target{}); err != nil {
			return nil, err
		}
	}
	p, err := s.readScope(a, scope.ResourceVisitor, params.Params)
	if err != nil {
		return nil, err
	}

	page := params.Page.Normalize()
	filter := repository.VisitorFilter{Scope: p, Stopped: params.Stopped}
	items, err := s.visitors.List(ctx, filter, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("список посетителей: %w", err)
	}
	total, err := s.visitors.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("подсчёт посетителей: %w", err)
	}

	return &VisitorPage{
		Fields:  projection.FieldsFor(a.Role),
		Items:   projection.Visitors(a, deref(items)),
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset+len(items) < total,
	}, nil
}

// ListStopped — посетители с остановленным сопровождением.
func (s *VisitorService) ListStopped(ctx context.Context, a *rbac.Actor, params VisitorListParams) (*VisitorPage, error) {
	stopped := true
	params.Stopped = &stopped
	return s.List(ctx, a, params)
}

// Get возвращает спроецированного посетителя. Посетитель вне области
// актора неотличим от несуществующего.
func (s *VisitorService) Get(ctx context.Context, a *rbac.Actor, id string) (projection.Record, error) {
	v, err := s.load(ctx, a, id)
	if err != nil {
		return nil, err
	}
	return projection.Visitor(a, *v), nil
}

// load загружает посетителя и проверяет видимость.
func (s *VisitorService) load(ctx context.Context, a *rbac.Actor, id string) (*model.Visitor, error) {
	p, err := s.readScope(a, scope.ResourceVisitor, scope.Params{})
	if err != nil {
		return nil, err
	}
	v, err := s.visitors.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !scope.MatchVisitor(p, *v) {
		return nil, ErrNotFound
	}
	return v, nil
}

// Create создаёт посетителя. Город по умолчанию — город актора.
func (s *VisitorService) Create(ctx context.Context, a *rbac.Actor, in VisitorInput) (projection.Record, error) {
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

	v := &model.Visitor{
		ID:             uuid.New().String(),
		Firstname:      strings.TrimSpace(in.Firstname),
		Lastname:       strings.TrimSpace(in.Lastname),
		Phone:          in.Phone,
		Email:          in.Email,
		ArrivalChannel: in.ArrivalChannel,
		City:           city,
		VisitDate:      in.VisitDate,
		EJP:            in.EJP,
		CreatedBy:      a.UserID,
	}
	for _, t := range in.Types {
		v.Types = append(v.Types, model.VisitorType(t))
	}
	v.Normalize()

	if err := s.authorize(a, scope.ResourceVisitor, access.OpCreate, access.Target{Visitor: v}); err != nil {
		return nil, err
	}
	if err := s.visitors.Create(ctx, v); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Посетитель создан",
		slog.String("visitor_id", v.ID),
		slog.String("city", v.City),
		slog.String("month", v.AssignedMonth),
		slog.String("created_by", a.UserID),
	)
	return projection.Visitor(a, *v), nil
}

// Update применяет частичное обновление. Право проверяется и для
// сохранённой записи, и для результата: изменение не может вывести
// посетителя из области актора.
func (s *VisitorService) Update(ctx context.Context, a *rbac.Actor, id string, patch model.VisitorPatch) (projection.Record, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: пустое обновление", ErrValidation)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	v, err := s.load(ctx, a, id)
	if err != nil {
		return nil, err
	}
	patched := patch.Apply(*v)

	t := access.Target{Visitor: v, Patched: &patched, PatchFields: fields}
	if err := s.authorize(a, scope.ResourceVisitor, access.OpUpdate, t); err != nil {
		return nil, err
	}
	if err := s.visitors.Update(ctx, &patched); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Посетитель обновлён",
		slog.String("visitor_id", id),
		slog.String("fields", strings.Join(fields, ",")),
		slog.String("updated_by", a.UserID),
	)
	return projection.Visitor(a, patched), nil
}

func validatePatch(p model.VisitorPatch) error {
	if p.Firstname != nil && strings.TrimSpace(*p.Firstname) == "" {
		return fmt.Errorf("%w: firstname: не может быть пустым", ErrValidation)
	}
	if p.Lastname != nil && strings.TrimSpace(*p.Lastname) == "" {
		return fmt.Errorf("%w: lastname: не может быть пустым", ErrValidation)
	}
	if p.City != nil && strings.TrimSpace(*p.City) == "" {
		return fmt.Errorf("%w: city: не может быть пустым", ErrValidation)
	}
	if p.VisitDate != nil && p.VisitDate.IsZero() {
		return fmt.Errorf("%w: visitDate: обязательное поле", ErrValidation)
	}
	if p.Email != nil && *p.Email != "" {
		if err := validation.Var("email", *p.Email, "email"); err != nil {
			return err
		}
	}
	if p.Types != nil {
		for _, t := range *p.Types {
			if !model.IsValidVisitorType(string(t)) {
				return fmt.Errorf("%w: types: неизвестный тип %q", ErrValidation, t)
			}
		}
	}
	return nil
}

// Delete удаляет посетителя со всеми связанными записями.
func (s *VisitorService) Delete(ctx context.Context, a *rbac.Actor, id string) (repository.CascadeResult, error) {
	v, err := s.load(ctx, a, id)
	if err != nil {
		return repository.CascadeResult{}, err
	}
	if err := s.authorize(a, scope.ResourceVisitor, access.OpDelete, access.Target{Visitor: v}); err != nil {
		return repository.CascadeResult{}, err
	}

	res, err := s.cascade.DeleteVisitor(ctx, id)
	if err != nil {
		return repository.CascadeResult{}, mapRepoErr(err)
	}
	s.logger.Info("Посетитель удалён",
		slog.String("visitor_id", id),
		slog.Int("memberships", res.Memberships),
		slog.Int64("presences", res.Presences),
		slog.Int64("kpi_records", res.KpiRecords),
		slog.String("deleted_by", a.UserID),
	)
	return res, nil
}

// Export формирует XLSX видимых посетителей с колонками проекции роли.
func (s *VisitorService) Export(ctx context.Context, a *rbac.Actor, params VisitorListParams) ([]byte, error) {
	if params.Stopped != nil && *params.Stopped {
		if err := s.authorize(a, scope.ResourceVisitor, access.OpReadStopped, access.Target{}); err != nil {
			return nil, err
		}
	}
	p, err := s.readScope(a, scope.ResourceVisitor, params.Params)
	if err != nil {
		return nil, err
	}
	items, err := s.visitors.ListAll(ctx, repository.VisitorFilter{Scope: p, Stopped: params.Stopped})
	if err != nil {
		return nil, fmt.Errorf("выгрузка посетителей: %w", err)
	}
	return export.VisitorsXLSX(projection.FieldsFor(a.Role), projection.Visitors(a, deref(items)))
}

// deref копирует записи из среза указателей.
func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	return out
}
