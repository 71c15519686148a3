package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
)

func newFamilleSvc(fx *fiFixture, cascade *mockCascade) *FamilleService {
	if cascade == nil {
		cascade = &mockCascade{}
	}
	return NewFamilleService(fx.secteurs, fx.familles, fx.membres, cascade, testLogger())
}

func sectorLead(sector string) *rbac.Actor {
	a := actor(rbac.RoleSectorLead, "Dijon")
	a.AssignedSectorID = sector
	return a
}

func fiLead(fis ...string) *rbac.Actor {
	a := actor(rbac.RoleFiLead, "Dijon")
	a.AssignedFiIDs = fis
	return a
}

func familleIDs(items []*model.Famille) []string {
	out := make([]string, 0, len(items))
	for _, f := range items {
		out = append(out, f.ID)
	}
	return out
}

func TestFamilleService_ListFamilles_Scope(t *testing.T) {
	tests := []struct {
		name    string
		actor   *rbac.Actor
		params  scope.Params
		want    []string
		wantErr error
	}{
		{name: "super_admin", actor: superAdmin(), want: []string{"f1", "f2", "f3"}},
		{name: "city_supervisor_fi свой город", actor: actor(rbac.RoleCitySupervisorFI, "Dijon"), want: []string{"f1", "f2"}},
		{name: "sector_lead свой сектор", actor: sectorLead("s1"), want: []string{"f1", "f2"}},
		{name: "fi_lead свои FI", actor: fiLead("f2"), want: []string{"f2"}},
		{name: "promotions город", actor: actor(rbac.RolePromotions, "Lyon"), want: []string{"f3"}},
		{
			name:   "параметр FI вне области",
			actor:  actor(rbac.RoleCitySupervisorFI, "Dijon"),
			params: scope.Params{FiID: "f3"},
			want:   []string{},
		},
		{
			name:   "параметр сужает до FI",
			actor:  actor(rbac.RoleCitySupervisorFI, "Dijon"),
			params: scope.Params{FiID: "f2"},
			want:   []string{"f2"},
		},
		{name: "front_desk без доступа", actor: actor(rbac.RoleFrontDesk, "Dijon"), wantErr: ErrForbidden},
		{name: "discipleship_shepherd без доступа", actor: shepherd(), wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFamilleSvc(newFIFixture(), nil)
			got, err := svc.ListFamilles(context.Background(), tt.actor, ListParams{Params: tt.params})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ListFamilles() ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListFamilles() ошибка: %v", err)
			}
			if diff := cmp.Diff(tt.want, familleIDs(got)); diff != "" {
				t.Errorf("ListFamilles() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFamilleService_GetFamille_OutOfScope(t *testing.T) {
	svc := newFamilleSvc(newFIFixture(), nil)
	if _, err := svc.GetFamille(context.Background(), fiLead("f2"), "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFamille(f1) ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.GetFamille(context.Background(), fiLead("f2"), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFamille(nope) ошибка = %v, ожидается ErrNotFound", err)
	}
	f, err := svc.GetFamille(context.Background(), fiLead("f2"), "f2")
	if err != nil || f.ID != "f2" {
		t.Errorf("GetFamille(f2) = %v, %v", f, err)
	}
}

func TestFamilleService_ListSecteurs(t *testing.T) {
	svc := newFamilleSvc(newFIFixture(), nil)
	// fi_lead видит все секторы своего города.
	got, err := svc.ListSecteurs(context.Background(), fiLead("f1"), ListParams{})
	if err != nil {
		t.Fatalf("ListSecteurs() ошибка: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s1" || got[1].ID != "s3" {
		t.Errorf("ListSecteurs() = %+v, ожидались s1 и s3", got)
	}
}

func TestFamilleService_CreateSecteur(t *testing.T) {
	tests := []struct {
		name     string
		actor    *rbac.Actor
		in       SecteurInput
		wantCity string
		wantErr  error
	}{
		{name: "город актора по умолчанию", actor: actor(rbac.RoleCitySupervisorFI, "Dijon"), in: SecteurInput{Name: "Est"}, wantCity: "Dijon"},
		{name: "super_admin с городом", actor: superAdmin(), in: SecteurInput{Name: "Est", City: "Lyon"}, wantCity: "Lyon"},
		{name: "super_admin без города", actor: superAdmin(), in: SecteurInput{Name: "Est"}, wantErr: ErrValidation},
		{name: "пустое имя", actor: superAdmin(), in: SecteurInput{Name: "  ", City: "Lyon"}, wantErr: ErrValidation},
		{name: "чужой город", actor: actor(rbac.RoleCitySupervisorFI, "Dijon"), in: SecteurInput{Name: "Est", City: "Lyon"}, wantErr: ErrForbidden},
		{name: "sector_lead", actor: sectorLead("s1"), in: SecteurInput{Name: "Est"}, wantErr: ErrForbidden},
		{name: "pastor", actor: pastor(), in: SecteurInput{Name: "Est", City: "Dijon"}, wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFIFixture()
			got, err := newFamilleSvc(fx, nil).CreateSecteur(context.Background(), tt.actor, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateSecteur() ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				if len(fx.secteurs.items) != 3 {
					t.Error("сектор создан несмотря на ошибку")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateSecteur() ошибка: %v", err)
			}
			if got.City != tt.wantCity || got.ID == "" {
				t.Errorf("CreateSecteur() = %+v, ожидался город %q", got, tt.wantCity)
			}
		})
	}
}

func TestFamilleService_CreateFamille(t *testing.T) {
	fx := newFIFixture()
	svc := newFamilleSvc(fx, nil)
	ctx := context.Background()

	f, err := svc.CreateFamille(ctx, sectorLead("s1"), FamilleInput{
		Name:      "FI 4",
		SecteurID: "s1",
		PiloteID:  strPtr("p1"),
		PiloteIDs: []string{"p2", "p1"},
	})
	if err != nil {
		t.Fatalf("CreateFamille() ошибка: %v", err)
	}
	if f.City != "Dijon" {
		t.Errorf("City = %q, ожидается город сектора", f.City)
	}
	if diff := cmp.Diff([]string{"p1", "p2"}, f.PiloteIDs); diff != "" {
		t.Errorf("PiloteIDs (-want +got):\n%s", diff)
	}

	if _, err := svc.CreateFamille(ctx, superAdmin(), FamilleInput{Name: "X", SecteurID: "absent"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестный сектор: ошибка = %v, ожидается ErrValidation", err)
	}
	if _, err := svc.CreateFamille(ctx, sectorLead("s1"), FamilleInput{Name: "X", SecteurID: "s3"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("чужой сектор: ошибка = %v, ожидается ErrForbidden", err)
	}
	if _, err := svc.CreateFamille(ctx, fiLead("f1"), FamilleInput{Name: "X", SecteurID: "s1"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("fi_lead: ошибка = %v, ожидается ErrForbidden", err)
	}
}

func TestFamilleService_UpdateFamille(t *testing.T) {
	tests := []struct {
		name        string
		actor       *rbac.Actor
		id          string
		patch       FamillePatch
		wantSecteur string
		wantErr     error
	}{
		{name: "перенос в сектор того же города", actor: actor(rbac.RoleCitySupervisorFI, "Dijon"), id: "f1", patch: FamillePatch{SecteurID: strPtr("s3")}, wantSecteur: "s3"},
		{name: "перенос в другой город", actor: superAdmin(), id: "f1", patch: FamillePatch{SecteurID: strPtr("s2")}, wantErr: ErrValidation},
		{name: "sector_lead выводит FI из своего сектора", actor: sectorLead("s1"), id: "f1", patch: FamillePatch{SecteurID: strPtr("s3")}, wantErr: ErrForbidden},
		{name: "sector_lead переименовывает", actor: sectorLead("s1"), id: "f1", patch: FamillePatch{Name: strPtr("FI Un")}, wantSecteur: "s1"},
		{name: "пустой патч", actor: superAdmin(), id: "f1", wantErr: ErrValidation},
		{name: "пустое имя", actor: superAdmin(), id: "f1", patch: FamillePatch{Name: strPtr(" ")}, wantErr: ErrValidation},
		{name: "вне области", actor: sectorLead("s1"), id: "f3", patch: FamillePatch{Name: strPtr("X")}, wantErr: ErrNotFound},
		{name: "fi_lead не изменяет FI", actor: fiLead("f1"), id: "f1", patch: FamillePatch{Name: strPtr("X")}, wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFIFixture()
			got, err := newFamilleSvc(fx, nil).UpdateFamille(context.Background(), tt.actor, tt.id, tt.patch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateFamille() ошибка = %v, ожидается %v", err, tt.wantErr)
				}
				if fx.familles.items["f1"].SecteurID != "s1" || fx.familles.items["f1"].Name != "FI 1" {
					t.Error("FI изменена несмотря на ошибку")
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateFamille() ошибка: %v", err)
			}
			if got.SecteurID != tt.wantSecteur || fx.familles.items[tt.id].SecteurID != tt.wantSecteur {
				t.Errorf("SecteurID = %q, ожидается %q", got.SecteurID, tt.wantSecteur)
			}
		})
	}
}

func TestFamilleService_UpdateFamille_Pilotes(t *testing.T) {
	fx := newFIFixture()
	got, err := newFamilleSvc(fx, nil).UpdateFamille(context.Background(), superAdmin(), "f2",
		FamillePatch{PiloteIDs: &[]string{"p3", "p3", "p4"}})
	if err != nil {
		t.Fatalf("UpdateFamille() ошибка: %v", err)
	}
	if diff := cmp.Diff([]string{"p3", "p4"}, got.PiloteIDs); diff != "" {
		t.Errorf("PiloteIDs (-want +got):\n%s", diff)
	}
}

func TestFamilleService_Membres(t *testing.T) {
	fx := newFIFixture()
	svc := newFamilleSvc(fx, nil)
	ctx := context.Background()

	m, err := svc.AddMembre(ctx, fiLead("f1"), "f1", MembreInput{Firstname: " Anne ", Lastname: "Petit"})
	if err != nil {
		t.Fatalf("AddMembre() ошибка: %v", err)
	}
	if m.Firstname != "Anne" || m.FamilleID != "f1" {
		t.Errorf("AddMembre() = %+v", m)
	}

	list, err := svc.ListMembres(ctx, fiLead("f1"), "f1")
	if err != nil {
		t.Fatalf("ListMembres() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("участников = %d, ожидалось 3", len(list))
	}

	if _, err := svc.AddMembre(ctx, fiLead("f1"), "f2", MembreInput{Firstname: "A", Lastname: "B"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("чужая FI: ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.AddMembre(ctx, fiLead("f1"), "f1", MembreInput{Firstname: "A"}); !errors.Is(err, ErrValidation) {
		t.Errorf("без фамилии: ошибка = %v, ожидается ErrValidation", err)
	}
	if _, err := svc.AddMembre(ctx, actor(rbac.RolePromotions, "Dijon"), "f1", MembreInput{Firstname: "A", Lastname: "B"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("promotions: ошибка = %v, ожидается ErrForbidden", err)
	}
}

func TestFamilleService_RemoveMembre(t *testing.T) {
	var deleted []string
	cascade := &mockCascade{
		deleteMembreFn: func(_ context.Context, id string) (repository.CascadeResult, error) {
			deleted = append(deleted, id)
			return repository.CascadeResult{Presences: 4, Memberships: 1}, nil
		},
	}
	svc := newFamilleSvc(newFIFixture(), cascade)
	ctx := context.Background()

	if _, err := svc.RemoveMembre(ctx, fiLead("f1"), "m3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("участник чужой FI: ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.RemoveMembre(ctx, fiLead("f1"), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный участник: ошибка = %v, ожидается ErrNotFound", err)
	}

	res, err := svc.RemoveMembre(ctx, fiLead("f1"), "m1")
	if err != nil {
		t.Fatalf("RemoveMembre() ошибка: %v", err)
	}
	if res.Presences != 4 {
		t.Errorf("Presences = %d, ожидается 4", res.Presences)
	}
	if diff := cmp.Diff([]string{"m1"}, deleted); diff != "" {
		t.Errorf("каскад (-want +got):\n%s", diff)
	}
}
