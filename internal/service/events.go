// events.go — мероприятия и ответы на приглашения.
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
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
	"github.com/bigkaa/pastorale/internal/validation"
)

// EventDeleter — каскадное удаление мероприятия.
type EventDeleter interface {
	DeleteEvent(ctx context.Context, id string) (repository.CascadeResult, error)
}

// EventInput — данные нового мероприятия.
type EventInput struct {
	Title    string    `json:"title" validate:"required,notblank"`
	City     string    `json:"city"`
	StartsAt time.Time `json:"startsAt" validate:"required"`
}

// RSVPInput — ответ на приглашение.
type RSVPInput struct {
	Name   string `json:"name" validate:"required,notblank"`
	Email  string `json:"email" validate:"omitempty,email"`
	Status string `json:"status" validate:"required,oneof=yes no maybe"`
}

// EventService — сервис мероприятий.
type EventService struct {
	gateway
	events  repository.EventRepository
	rsvps   repository.RSVPRepository
	cascade EventDeleter
	logger  *slog.Logger
}

// NewEventService создаёт сервис мероприятий.
func NewEventService(
	events repository.EventRepository,
	rsvps repository.RSVPRepository,
	cascade EventDeleter,
	logger *slog.Logger,
) *EventService {
	l := logger.With(slog.String("component", "event_service"))
	return &EventService{
		gateway: gateway{logger: l},
		events:  events,
		rsvps:   rsvps,
		cascade: cascade,
		logger:  l,
	}
}

// Create создаёт мероприятие. Город по умолчанию — город актора.
func (s *EventService) Create(ctx context.Context, a *rbac.Actor, in EventInput) (*model.Event, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	e := &model.Event{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(in.Title),
		City:      strings.TrimSpace(in.City),
		StartsAt:  in.StartsAt,
		CreatedBy: a.UserID,
	}
	if e.City == "" {
		e.City = a.City
	}
	if e.City == "" {
		return nil, fmt.Errorf("%w: city: обязательное поле", ErrValidation)
	}
	if err := s.authorize(a, scope.ResourceEvent, access.OpCreate, access.Target{Event: e}); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, mapRepoErr(err)
	}
	s.logger.Info("Мероприятие создано",
		slog.String("event_id", e.ID),
		slog.String("city", e.City),
		slog.String("created_by", a.UserID),
	)
	return e, nil
}

// List возвращает видимые мероприятия.
func (s *EventService) List(ctx context.Context, a *rbac.Actor, params ListParams) ([]*model.Event, error) {
	p, err := s.readScope(a, scope.ResourceEvent, params.Params)
	if err != nil {
		return nil, err
	}
	page := params.Page.Normalize()
	items, err := s.events.List(ctx, p, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("список мероприятий: %w", err)
	}
	return items, nil
}

func (s *EventService) load(ctx context.Context, a *rbac.Actor, id string) (*model.Event, error) {
	p, err := s.readScope(a, scope.ResourceEvent, scope.Params{})
	if err != nil {
		return nil, err
	}
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !scope.MatchEvent(p, *e) {
		return nil, ErrNotFound
	}
	return e, nil
}

// RecordRSVP сохраняет ответ на приглашение.
func (s *EventService) RecordRSVP(ctx context.Context, a *rbac.Actor, eventID string, in RSVPInput) (*model.RSVP, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, a, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, scope.ResourceEvent, access.OpRSVP, access.Target{Event: e}); err != nil {
		return nil, err
	}

	r := &model.RSVP{
		ID:      uuid.New().String(),
		EventID: e.ID,
		Name:    strings.TrimSpace(in.Name),
		Email:   in.Email,
		Status:  in.Status,
	}
	if err := s.rsvps.Create(ctx, r); err != nil {
		return nil, mapRepoErr(err)
	}
	return r, nil
}

// ListRSVPs возвращает ответы на мероприятие.
func (s *EventService) ListRSVPs(ctx context.Context, a *rbac.Actor, eventID string) ([]*model.RSVP, error) {
	if _, err := s.load(ctx, a, eventID); err != nil {
		return nil, err
	}
	items, err := s.rsvps.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("список ответов: %w", err)
	}
	return items, nil
}

// Delete удаляет мероприятие вместе с ответами.
func (s *EventService) Delete(ctx context.Context, a *rbac.Actor, id string) (repository.CascadeResult, error) {
	e, err := s.load(ctx, a, id)
	if err != nil {
		return repository.CascadeResult{}, err
	}
	if err := s.authorize(a, scope.ResourceEvent, access.OpDelete, access.Target{Event: e}); err != nil {
		return repository.CascadeResult{}, err
	}
	res, err := s.cascade.DeleteEvent(ctx, id)
	if err != nil {
		return repository.CascadeResult{}, mapRepoErr(err)
	}
	s.logger.Info("Мероприятие удалено",
		slog.String("event_id", id),
		slog.Int64("rsvps", res.RSVPs),
		slog.String("deleted_by", a.UserID),
	)
	return res, nil
}
