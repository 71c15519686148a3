// presences.go — отметки присутствия посетителей, участников FI
// и участников bergeries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/presence"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
)

// PresenceInput — отметка присутствия. Корзина определяется по Type.
type PresenceInput struct {
	SubjectKind model.SubjectKind
	SubjectID   string
	Date        time.Time
	Type        string
	Present     bool
}

// PresenceResult — сохранённая отметка и признак вставки.
type PresenceResult struct {
	Presence *model.Presence
	// Inserted — false, если отметка за эту дату перезаписана
	Inserted bool
}

// PresenceQuery — выборка отметок одного вида субъектов.
type PresenceQuery struct {
	Kind model.SubjectKind
	scope.Params
	SubjectIDs []string
	From       *time.Time
	To         *time.Time
}

// PresenceService — сервис отметок присутствия.
type PresenceService struct {
	gateway
	presences       repository.PresenceRepository
	visitors        repository.VisitorRepository
	familles        repository.FamilleRepository
	membres         repository.MembreRepository
	bergeries       repository.BergerieRepository
	bergerieMembres repository.BergerieMembreRepository
	logger          *slog.Logger
}

// NewPresenceService создаёт сервис присутствия.
func NewPresenceService(
	presences repository.PresenceRepository,
	visitors repository.VisitorRepository,
	familles repository.FamilleRepository,
	membres repository.MembreRepository,
	bergeries repository.BergerieRepository,
	bergerieMembres repository.BergerieMembreRepository,
	logger *slog.Logger,
) *PresenceService {
	l := logger.With(slog.String("component", "presence_service"))
	return &PresenceService{
		gateway:         gateway{logger: l},
		presences:       presences,
		visitors:        visitors,
		familles:        familles,
		membres:         membres,
		bergeries:       bergeries,
		bergerieMembres: bergerieMembres,
		logger:          l,
	}
}

// resourceFor — ресурс, предикатом которого фильтруются отметки вида.
func resourceFor(kind model.SubjectKind) (scope.Resource, error) {
	switch kind {
	case model.SubjectVisitor:
		return scope.ResourceVisitor, nil
	case model.SubjectMembre:
		return scope.ResourcePresence, nil
	case model.SubjectBergerieMembre:
		return scope.ResourceBergerie, nil
	}
	return "", fmt.Errorf("%w: неизвестный вид субъекта %q", ErrValidation, kind)
}

// Record сохраняет отметку по ключу (субъект, дата). Повторная отметка
// за ту же дату перезаписывает предыдущую.
func (s *PresenceService) Record(ctx context.Context, a *rbac.Actor, in PresenceInput) (*PresenceResult, error) {
	if in.SubjectID == "" {
		return nil, fmt.Errorf("%w: subjectId: обязательное поле", ErrValidation)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date: обязательное поле", ErrValidation)
	}
	bucket, err := presence.Classify(presence.Entry{Date: in.Date, Type: in.Type, Present: in.Present})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}
	r, err := resourceFor(in.SubjectKind)
	if err != nil {
		return nil, err
	}
	p, err := s.readScope(a, r, scope.Params{})
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, p, in.SubjectKind, in.SubjectID)
	if err != nil {
		return nil, err
	}
	// Отметки посетителей и участников FI авторизуются как presence,
	// участников bergeries как bergerie.
	w := scope.ResourcePresence
	if in.SubjectKind == model.SubjectBergerieMembre {
		w = scope.ResourceBergerie
	}
	if err := s.authorize(a, w, access.OpRecordPresence, target); err != nil {
		return nil, err
	}

	y, m, d := in.Date.Date()
	rec := &model.Presence{
		ID:          uuid.New().String(),
		SubjectKind: in.SubjectKind,
		SubjectID:   in.SubjectID,
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Bucket:      string(bucket),
		Present:     in.Present,
		RecordedBy:  a.UserID,
	}
	inserted, err := s.presences.Upsert(ctx, rec)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	result := saveResult(inserted)
	presenceSavesTotal.WithLabelValues(result).Inc()
	s.logger.Info("Отметка присутствия сохранена",
		slog.String("subject_kind", string(in.SubjectKind)),
		slog.String("subject_id", in.SubjectID),
		slog.String("date", rec.Date.Format(time.DateOnly)),
		slog.String("bucket", rec.Bucket),
		slog.String("result", result),
		slog.String("recorded_by", a.UserID),
	)
	return &PresenceResult{Presence: rec, Inserted: inserted}, nil
}

// target загружает субъект отметки; вне предиката — ErrNotFound.
func (s *PresenceService) target(ctx context.Context, p scope.Predicate, kind model.SubjectKind, id string) (access.Target, error) {
	switch kind {
	case model.SubjectVisitor:
		v, err := s.visitors.GetByID(ctx, id)
		if err != nil {
			return access.Target{}, mapRepoErr(err)
		}
		if !scope.MatchVisitor(p, *v) {
			return access.Target{}, ErrNotFound
		}
		return access.Target{Visitor: v}, nil

	case model.SubjectMembre:
		m, err := s.membres.GetByID(ctx, id)
		if err != nil {
			return access.Target{}, mapRepoErr(err)
		}
		f, err := s.familles.GetByID(ctx, m.FamilleID)
		if err != nil {
			return access.Target{}, mapRepoErr(err)
		}
		if !scope.MatchMembre(p, *f) {
			return access.Target{}, ErrNotFound
		}
		return access.Target{Famille: f}, nil

	case model.SubjectBergerieMembre:
		m, err := s.bergerieMembres.GetByID(ctx, id)
		if err != nil {
			return access.Target{}, mapRepoErr(err)
		}
		b, err := s.bergeries.GetByID(ctx, m.BergerieID)
		if err != nil {
			return access.Target{}, mapRepoErr(err)
		}
		if !scope.MatchBergerie(p, *b) {
			return access.Target{}, ErrNotFound
		}
		return access.Target{Bergerie: b}, nil
	}
	return access.Target{}, fmt.Errorf("%w: неизвестный вид субъекта %q", ErrValidation, kind)
}

// List возвращает отметки видимых актору субъектов.
func (s *PresenceService) List(ctx context.Context, a *rbac.Actor, q PresenceQuery) ([]*model.Presence, error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: to раньше from", ErrValidation)
	}
	r, err := resourceFor(q.Kind)
	if err != nil {
		return nil, err
	}
	p, err := s.readScope(a, r, q.Params)
	if err != nil {
		return nil, err
	}
	items, err := s.presences.List(ctx, repository.PresenceFilter{
		Kind:       q.Kind,
		Scope:      p,
		SubjectIDs: q.SubjectIDs,
		From:       q.From,
		To:         q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("список отметок: %w", err)
	}
	return items, nil
}
