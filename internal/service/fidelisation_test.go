package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/pastorale/internal/domain/fidelisation"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
)

func newFidelisationSvc(presences *mockPresenceRepo) *FidelisationService {
	fi := newFIFixture()
	return NewFidelisationService(visitorFixture(), fi.familles, fi.membres, presences, 2, testLogger())
}

func TestFidelisationService_Visitors(t *testing.T) {
	presences := &mockPresenceRepo{items: []*model.Presence{
		present(model.SubjectVisitor, "v1", "2024-01-18", "jeudi"),
		present(model.SubjectVisitor, "v2", "2024-02-08", "jeudi"),
		present(model.SubjectVisitor, "v3", "2024-01-25", "jeudi"),
	}}
	svc := newFidelisationSvc(presences)
	from, to := day("2024-01-15"), day("2024-01-21")

	sum, err := svc.Visitors(context.Background(), actor(rbac.RoleFrontDesk, "Dijon"), FidelisationQuery{From: &from, To: &to})
	if err != nil {
		t.Fatalf("Visitors() ошибка: %v", err)
	}
	if sum.Degraded {
		t.Error("Degraded = true без ошибок")
	}
	if sum.TotalVisitors != 2 || sum.TotalNewArrivals != 2 {
		t.Errorf("итоги = %+v", sum)
	}
	// v1 пришёл 2024-01-14, v2 позже окна: одна неделя, 1 из 1.
	want := []fidelisation.WeeklyRate{{WeekStart: day("2024-01-15"), PresentCount: 1, EligibleCount: 1, RatePercent: 100}}
	if diff := cmp.Diff(want, sum.WeeklyRates); diff != "" {
		t.Errorf("WeeklyRates (-want +got):\n%s", diff)
	}
	if got := presences.last.Scope.Cities; len(got) != 1 || got[0] != "Dijon" {
		t.Errorf("Cities предиката отметок = %v", got)
	}
}

func TestFidelisationService_Visitors_Degraded(t *testing.T) {
	presences := &mockPresenceRepo{
		listFn: func(context.Context, repository.PresenceFilter) ([]*model.Presence, error) {
			return nil, errors.New("statement timeout")
		},
	}
	sum, err := newFidelisationSvc(presences).Visitors(context.Background(), pastor(), FidelisationQuery{})
	if err != nil {
		t.Fatalf("Visitors() ошибка: %v", err)
	}
	if !sum.Degraded || sum.TotalVisitors != 3 || sum.WeeklyRates != nil {
		t.Errorf("сводка = %+v, ожидались итоги без ставок", sum)
	}
}

func TestFidelisationService_Visitors_Errors(t *testing.T) {
	svc := newFidelisationSvc(&mockPresenceRepo{})
	from, to := day("2024-02-01"), day("2024-01-01")
	if _, err := svc.Visitors(context.Background(), pastor(), FidelisationQuery{From: &from, To: &to}); !errors.Is(err, ErrValidation) {
		t.Errorf("to раньше from: ошибка = %v, ожидается ErrValidation", err)
	}
	if _, err := svc.Visitors(context.Background(), fiLead("f1"), FidelisationQuery{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("fi_lead: ошибка = %v, ожидается ErrForbidden", err)
	}
}

func fiPresences() *mockPresenceRepo {
	return &mockPresenceRepo{items: []*model.Presence{
		present(model.SubjectMembre, "m1", "2024-01-11", "jeudi"),
		present(model.SubjectMembre, "m1", "2024-01-14", "dimanche"),
		present(model.SubjectMembre, "m1", "2024-01-18", "jeudi"),
		present(model.SubjectMembre, "m3", "2024-01-18", "jeudi"),
		present(model.SubjectMembre, "m4", "2024-01-18", "jeudi"),
	}}
}

func TestFidelisationService_FI_PointInTime(t *testing.T) {
	presences := fiPresences()
	svc := newFidelisationSvc(presences)
	date := day("2024-01-18")

	sum, err := svc.FI(context.Background(), actor(rbac.RoleCitySupervisorFI, "Dijon"), FIQuery{Date: &date})
	if err != nil {
		t.Fatalf("FI() ошибка: %v", err)
	}
	if sum.Mode != fidelisation.ModePointInTime || sum.City != "Dijon" {
		t.Errorf("Mode = %q, City = %q", sum.Mode, sum.City)
	}
	if sum.TotalFamilles != 2 || sum.TotalMembres != 3 || sum.TotalPresent != 2 || sum.Rate != 67 {
		t.Errorf("сводка = %+v", sum)
	}
	f := presences.last
	if f.From == nil || f.To == nil || !f.From.Equal(date) || !f.To.Equal(date) {
		t.Errorf("границы выборки = %v..%v, ожидался один день", f.From, f.To)
	}
}

func TestFidelisationService_FI_Loyalty(t *testing.T) {
	svc := newFidelisationSvc(fiPresences())

	sum, err := svc.FI(context.Background(), superAdmin(), FIQuery{})
	if err != nil {
		t.Fatalf("FI() ошибка: %v", err)
	}
	if sum.Mode != fidelisation.ModeLoyalty || sum.City != "" {
		t.Errorf("Mode = %q, City = %q", sum.Mode, sum.City)
	}
	// Порог 2: fidèle только m1.
	if sum.TotalFamilles != 3 || sum.TotalMembres != 4 || sum.TotalFideles != 1 || sum.Rate != 25 {
		t.Errorf("сводка = %+v", sum)
	}

	lyon, err := svc.FI(context.Background(), superAdmin(), FIQuery{Params: scope.Params{City: "Lyon"}})
	if err != nil {
		t.Fatalf("FI(Lyon) ошибка: %v", err)
	}
	if lyon.City != "Lyon" || lyon.TotalFamilles != 1 || lyon.TotalMembres != 1 {
		t.Errorf("сводка Lyon = %+v", lyon)
	}
}

func TestFidelisationService_FI_Degraded(t *testing.T) {
	presences := &mockPresenceRepo{
		listFn: func(context.Context, repository.PresenceFilter) ([]*model.Presence, error) {
			return nil, errors.New("connection reset")
		},
	}
	sum, err := newFidelisationSvc(presences).FI(context.Background(), fiLead("f1"), FIQuery{})
	if err != nil {
		t.Fatalf("FI() ошибка: %v", err)
	}
	if !sum.Degraded || sum.TotalMembres != 2 || sum.Rate != 0 {
		t.Errorf("сводка = %+v, ожидались участники без ставок", sum)
	}
}

func TestFidelisationService_FI_Forbidden(t *testing.T) {
	svc := newFidelisationSvc(&mockPresenceRepo{})
	if _, err := svc.FI(context.Background(), actor(rbac.RoleFrontDesk, "Dijon"), FIQuery{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("front_desk: ошибка = %v, ожидается ErrForbidden", err)
	}
}
