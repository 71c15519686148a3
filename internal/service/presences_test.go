package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

type presenceFixture struct {
	svc       *PresenceService
	presences *mockPresenceRepo
}

func newPresenceFixture() *presenceFixture {
	fi := newFIFixture()
	bergeries, bmembres := bergerieFixture()
	presences := &mockPresenceRepo{}
	svc := NewPresenceService(presences, visitorFixture(), fi.familles, fi.membres, bergeries, bmembres, testLogger())
	return &presenceFixture{svc: svc, presences: presences}
}

func TestPresenceService_Record(t *testing.T) {
	// Понедельник: отметку четверга часто вносят позже.
	monday := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		actor   *rbac.Actor
		in      PresenceInput
		wantErr error
	}{
		{name: "front_desk отмечает посетителя", actor: actor(rbac.RoleFrontDesk, "Dijon"), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "jeudi"}},
		{name: "month_referent свой месяц", actor: monthReferent("Dijon", "2024-01"), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "dimanche"}},
		{name: "fi_lead свою FI", actor: fiLead("f1"), in: PresenceInput{SubjectKind: model.SubjectMembre, SubjectID: "m1", Type: "jeudi"}},
		{name: "пастух свою bergerie", actor: shepherd(), in: PresenceInput{SubjectKind: model.SubjectBergerieMembre, SubjectID: "bm1", Type: "dimanche"}},
		{name: "month_referent чужой месяц", actor: monthReferent("Dijon", "2024-02"), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "jeudi"}, wantErr: ErrNotFound},
		{name: "fi_lead чужая FI", actor: fiLead("f1"), in: PresenceInput{SubjectKind: model.SubjectMembre, SubjectID: "m3", Type: "jeudi"}, wantErr: ErrNotFound},
		{name: "пастух чужая bergerie", actor: shepherd(), in: PresenceInput{SubjectKind: model.SubjectBergerieMembre, SubjectID: "bm2", Type: "jeudi"}, wantErr: ErrNotFound},
		{name: "promotions не отмечает участников FI", actor: actor(rbac.RolePromotions, "Dijon"), in: PresenceInput{SubjectKind: model.SubjectMembre, SubjectID: "m1", Type: "jeudi"}, wantErr: ErrForbidden},
		{name: "sector_lead не видит посетителей", actor: sectorLead("s1"), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "jeudi"}, wantErr: ErrForbidden},
		{name: "pastor только читает", actor: pastor(), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "jeudi"}, wantErr: ErrForbidden},
		{name: "неизвестный тег", actor: superAdmin(), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "v1", Type: "samedi"}, wantErr: ErrValidation},
		{name: "неизвестный вид", actor: superAdmin(), in: PresenceInput{SubjectKind: "event", SubjectID: "e1", Type: "jeudi"}, wantErr: ErrValidation},
		{name: "без субъекта", actor: superAdmin(), in: PresenceInput{SubjectKind: model.SubjectVisitor, Type: "jeudi"}, wantErr: ErrValidation},
		{name: "неизвестный посетитель", actor: superAdmin(), in: PresenceInput{SubjectKind: model.SubjectVisitor, SubjectID: "absent", Type: "jeudi"}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPresenceFixture()
			in := tt.in
			in.Date = monday
			in.Present = true
			res, err := fx.svc.Record(context.Background(), tt.actor, in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Record() ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				if len(fx.presences.items) != 0 {
					t.Error("отметка сохранена несмотря на ошибку")
				}
				return
			}
			if err != nil {
				t.Fatalf("Record() ошибка: %v", err)
			}
			if !res.Inserted {
				t.Error("Inserted = false для новой отметки")
			}
			if res.Presence.Bucket != in.Type {
				t.Errorf("Bucket = %q, ожидается %q", res.Presence.Bucket, in.Type)
			}
			if !res.Presence.Date.Equal(day("2024-01-15")) {
				t.Errorf("Date = %v, ожидается полночь UTC", res.Presence.Date)
			}
			if res.Presence.RecordedBy != tt.actor.UserID {
				t.Errorf("RecordedBy = %q", res.Presence.RecordedBy)
			}
		})
	}
}

func TestPresenceService_Record_Overwrite(t *testing.T) {
	fx := newPresenceFixture()
	ctx := context.Background()
	a := actor(rbac.RoleFrontDesk, "Dijon")

	first, err := fx.svc.Record(ctx, a, PresenceInput{
		SubjectKind: model.SubjectVisitor, SubjectID: "v1",
		Date: time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC), Type: "jeudi", Present: false,
	})
	if err != nil || !first.Inserted {
		t.Fatalf("Record() = %+v, %v", first, err)
	}

	// Та же дата в другое время суток: перезапись.
	second, err := fx.svc.Record(ctx, a, PresenceInput{
		SubjectKind: model.SubjectVisitor, SubjectID: "v1",
		Date: time.Date(2024, 1, 18, 21, 0, 0, 0, time.UTC), Type: " Jeudi ", Present: true,
	})
	if err != nil {
		t.Fatalf("Record() повторно ошибка: %v", err)
	}
	if second.Inserted {
		t.Error("Inserted = true при повторной отметке той же даты")
	}
	if len(fx.presences.items) != 1 || !fx.presences.items[0].Present {
		t.Errorf("отметки = %+v, ожидалась одна перезаписанная", fx.presences.items)
	}
	if second.Presence.Bucket != "jeudi" {
		t.Errorf("Bucket = %q, ожидается jeudi", second.Presence.Bucket)
	}
}

func TestPresenceService_List(t *testing.T) {
	fx := newPresenceFixture()
	ctx := context.Background()
	from, to := day("2024-01-01"), day("2024-01-31")

	if _, err := fx.svc.List(ctx, fiLead("f1"), PresenceQuery{Kind: model.SubjectMembre, From: &from, To: &to}); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	f := fx.presences.last
	if f == nil {
		t.Fatal("репозиторий не вызван")
	}
	if diff := cmp.Diff([]string{"f1"}, f.Scope.FiIDs); diff != "" {
		t.Errorf("FiIDs предиката (-want +got):\n%s", diff)
	}
	if f.Scope.Resource != scope.ResourcePresence {
		t.Errorf("Resource = %q, ожидается presence", f.Scope.Resource)
	}

	if _, err := fx.svc.List(ctx, superAdmin(), PresenceQuery{Kind: model.SubjectVisitor, From: &to, To: &from}); !errors.Is(err, ErrValidation) {
		t.Errorf("to раньше from: ошибка = %v, ожидается ErrValidation", err)
	}
	if _, err := fx.svc.List(ctx, actor(rbac.RoleFrontDesk, "Dijon"), PresenceQuery{Kind: model.SubjectMembre}); !errors.Is(err, ErrForbidden) {
		t.Errorf("front_desk: ошибка = %v, ожидается ErrForbidden", err)
	}
	if _, err := fx.svc.List(ctx, shepherd(), PresenceQuery{Kind: model.SubjectBergerieMembre}); err != nil {
		t.Errorf("пастух: ошибка = %v", err)
	}
	if fx.presences.last.Scope.OwnerID != "shep" {
		t.Errorf("OwnerID = %q, ожидается shep", fx.presences.last.Scope.OwnerID)
	}
}
