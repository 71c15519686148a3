// tracking.go — сканирование остановленного сопровождения.
// Переход active → trackingStopped односторонний и выполняется только
// системой; каждый новый переход передаётся сервису уведомлений.
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
	"github.com/bigkaa/pastorale/internal/notify"
	"github.com/bigkaa/pastorale/internal/repository"
)

// Notifier — получатель событий остановки сопровождения.
type Notifier interface {
	VisitorStopped(ctx context.Context, e notify.StoppedEvent) error
}

// ScanResult — итог сканирования.
type ScanResult struct {
	Scanned      int       `json:"scanned"`
	Stopped      int       `json:"stopped"`
	StoppedIDs   []string  `json:"stoppedIds"`
	NotifyErrors int       `json:"notifyErrors"`
	At           time.Time `json:"at"`
}

// TrackingService — сервис остановки сопровождения.
type TrackingService struct {
	gateway
	visitors  repository.VisitorRepository
	presences repository.PresenceRepository
	notifier  Notifier
	rule      fidelisation.StoppedRule
	now       func() time.Time
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTrackingService создаёт сервис. weeks — число полных недель
// без присутствия (PA_STOPPED_AFTER_WEEKS).
func NewTrackingService(
	visitors repository.VisitorRepository,
	presences repository.PresenceRepository,
	notifier Notifier,
	weeks int,
	logger *slog.Logger,
) *TrackingService {
	l := logger.With(slog.String("component", "tracking_service"))
	return &TrackingService{
		gateway:   gateway{logger: l},
		visitors:  visitors,
		presences: presences,
		notifier:  notifier,
		rule:      fidelisation.StoppedRule{Weeks: weeks},
		now:       time.Now,
		logger:    l,
	}
}

// Scan запускает сканирование от имени актора. Только super_admin.
func (s *TrackingService) Scan(ctx context.Context, a *rbac.Actor) (*ScanResult, error) {
	if a.Role != rbac.RoleSuperAdmin {
		reason := "сканирование сопровождения доступно только super_admin"
		s.denied(a, scope.ResourceVisitor, "stopped_scan", reason)
		return nil, fmt.Errorf("%w: %s", ErrForbidden, reason)
	}
	return s.Run(ctx)
}

// Run сканирует всех активных посетителей. Ошибка уведомления
// логируется и не прерывает сканирование.
func (s *TrackingService) Run(ctx context.Context) (*ScanResult, error) {
	now := s.now().UTC()
	active := false
	all := scope.Predicate{Resource: scope.ResourceVisitor, All: true}

	visitors, err := s.visitors.ListAll(ctx, repository.VisitorFilter{Scope: all, Stopped: &active})
	if err != nil {
		return nil, fmt.Errorf("список активных посетителей: %w", err)
	}
	presences, err := s.presences.List(ctx, repository.PresenceFilter{Kind: model.SubjectVisitor, Scope: all})
	if err != nil {
		return nil, fmt.Errorf("отметки посетителей: %w", err)
	}
	bySubject := make(map[string][]model.Presence, len(visitors))
	for _, p := range presences {
		bySubject[p.SubjectID] = append(bySubject[p.SubjectID], *p)
	}

	res := &ScanResult{Scanned: len(visitors), StoppedIDs: []string{}, At: now}
	for _, v := range visitors {
		if !fidelisation.DetectStopped(*v, bySubject[v.ID], now, s.rule) {
			continue
		}
		changed, err := s.visitors.MarkStopped(ctx, v.ID, now)
		if err != nil {
			return res, fmt.Errorf("остановка сопровождения %s: %w", v.ID, err)
		}
		if !changed {
			continue
		}
		res.Stopped++
		res.StoppedIDs = append(res.StoppedIDs, v.ID)
		trackingStoppedTotal.Inc()

		err = s.notifier.VisitorStopped(ctx, notify.StoppedEvent{
			Event:         notify.EventTrackingStopped,
			VisitorID:     v.ID,
			City:          v.City,
			AssignedMonth: v.AssignedMonth,
			StoppedAt:     now,
		})
		if err != nil {
			res.NotifyErrors++
			s.logger.Warn("Ошибка уведомления об остановке сопровождения",
				slog.String("visitor_id", v.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Сканирование сопровождения завершено",
		slog.Int("scanned", res.Scanned),
		slog.Int("stopped", res.Stopped),
		slog.Int("notify_errors", res.NotifyErrors),
		slog.Int("weeks", s.rule.Weeks),
	)
	return res, nil
}

// Start запускает периодическое сканирование в фоновой горутине.
func (s *TrackingService) Start(ctx context.Context, interval time.Duration) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическое сканирование сопровождения запущено",
			slog.String("interval", interval.String()),
		)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическое сканирование сопровождения остановлено")
				return
			case <-ticker.C:
				res, err := s.Run(ctx)
				if err != nil {
					s.logger.Error("Ошибка периодического сканирования", slog.String("error", err.Error()))
					continue
				}
				s.logger.Info("Периодическое сканирование завершено",
					slog.Int("scanned", res.Scanned),
					slog.Int("stopped", res.Stopped),
					slog.Int("notify_errors", res.NotifyErrors),
				)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *TrackingService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
