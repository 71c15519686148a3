package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/notify"
	"github.com/bigkaa/pastorale/internal/repository"
)

// --- Общие хелперы ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func superAdmin() *rbac.Actor {
	return &rbac.Actor{UserID: "admin", Role: rbac.RoleSuperAdmin}
}

func pastor() *rbac.Actor {
	return &rbac.Actor{UserID: "pastor", Role: rbac.RolePastor}
}

func actor(role rbac.Role, city string) *rbac.Actor {
	return &rbac.Actor{UserID: string(role) + "-" + city, Role: role, City: city}
}

func monthReferent(city string, months ...string) *rbac.Actor {
	a := actor(rbac.RoleMonthReferent, city)
	a.AssignedMonths = months
	return a
}

func visitor(id, city, date string) *model.Visitor {
	v := &model.Visitor{
		ID:        id,
		Firstname: "Prénom " + id,
		Lastname:  "Nom",
		Phone:     "+33 6 00 00 00 00",
		City:      city,
		VisitDate: day(date),
		Types:     []model.VisitorType{model.VisitorNewArrival},
	}
	v.Normalize()
	return v
}

// --- Mock VisitorRepository ---

// mockVisitorRepo — мок VisitorRepository. Без функций работает
// как in-memory хранилище, фильтрующее предикатом в памяти.
type mockVisitorRepo struct {
	items map[string]*model.Visitor

	listAllFn     func(ctx context.Context, f repository.VisitorFilter) ([]*model.Visitor, error)
	updateFn      func(ctx context.Context, v *model.Visitor) error
	markStoppedFn func(ctx context.Context, id string, at time.Time) (bool, error)
}

func newVisitorRepo(vs ...*model.Visitor) *mockVisitorRepo {
	m := &mockVisitorRepo{items: make(map[string]*model.Visitor)}
	for _, v := range vs {
		m.items[v.ID] = v
	}
	return m
}

func (m *mockVisitorRepo) match(f repository.VisitorFilter) []*model.Visitor {
	var out []*model.Visitor
	for _, id := range sortedKeys(m.items) {
		v := m.items[id]
		if !scope.MatchVisitor(f.Scope, *v) {
			continue
		}
		if f.Stopped != nil && v.TrackingStopped != *f.Stopped {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m *mockVisitorRepo) Create(_ context.Context, v *model.Visitor) error {
	m.items[v.ID] = v
	return nil
}

func (m *mockVisitorRepo) GetByID(_ context.Context, id string) (*model.Visitor, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisitorRepo) List(_ context.Context, f repository.VisitorFilter, limit, offset int) ([]*model.Visitor, error) {
	all := m.match(f)
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *mockVisitorRepo) ListAll(ctx context.Context, f repository.VisitorFilter) ([]*model.Visitor, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, f)
	}
	return m.match(f), nil
}

func (m *mockVisitorRepo) Count(_ context.Context, f repository.VisitorFilter) (int, error) {
	return len(m.match(f)), nil
}

func (m *mockVisitorRepo) Update(ctx context.Context, v *model.Visitor) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, v)
	}
	if _, ok := m.items[v.ID]; !ok {
		return repository.ErrNotFound
	}
	m.items[v.ID] = v
	return nil
}

func (m *mockVisitorRepo) Delete(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func (m *mockVisitorRepo) MarkStopped(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.markStoppedFn != nil {
		return m.markStoppedFn(ctx, id, at)
	}
	v, ok := m.items[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if v.TrackingStopped {
		return false, nil
	}
	v.TrackingStopped = true
	v.TrackingStoppedAt = &at
	return true, nil
}

func (m *mockVisitorRepo) SetManualStatus(_ context.Context, id string, status, comment *string) error {
	v, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.ManualStatus, v.ManualComment = status, comment
	return nil
}

// --- Mock deleters ---

type mockCascade struct {
	deleteVisitorFn func(ctx context.Context, id string) (repository.CascadeResult, error)
	deleteEventFn   func(ctx context.Context, id string) (repository.CascadeResult, error)
	deleteMembreFn  func(ctx context.Context, id string) (repository.CascadeResult, error)
}

func (m *mockCascade) DeleteVisitor(ctx context.Context, id string) (repository.CascadeResult, error) {
	if m.deleteVisitorFn != nil {
		return m.deleteVisitorFn(ctx, id)
	}
	return repository.CascadeResult{}, nil
}

func (m *mockCascade) DeleteEvent(ctx context.Context, id string) (repository.CascadeResult, error) {
	if m.deleteEventFn != nil {
		return m.deleteEventFn(ctx, id)
	}
	return repository.CascadeResult{}, nil
}

func (m *mockCascade) DeleteMembre(ctx context.Context, id string) (repository.CascadeResult, error) {
	if m.deleteMembreFn != nil {
		return m.deleteMembreFn(ctx, id)
	}
	return repository.CascadeResult{}, nil
}

// --- Mock KPI repositories ---

type recordKey struct {
	kind  model.SubjectKind
	id    string
	month string
}

// mockKpiRecordRepo — in-memory записи KPI. Если задан tables,
// Upsert проверяет внешний ключ table_version, как kpi_records в БД.
type mockKpiRecordRepo struct {
	items  map[recordKey]kpi.Record
	tables *mockKpiTableRepo
}

func newKpiRecordRepo() *mockKpiRecordRepo {
	return &mockKpiRecordRepo{items: make(map[recordKey]kpi.Record)}
}

func (m *mockKpiRecordRepo) Upsert(_ context.Context, r *kpi.Record) (bool, error) {
	if m.tables != nil && !m.tables.has(r.TableVersion) {
		return false, fmt.Errorf("%w: таблица KPI %s", repository.ErrReference, r.TableVersion)
	}
	k := recordKey{r.SubjectKind, r.SubjectID, r.Month}
	_, exists := m.items[k]
	m.items[k] = *r
	return !exists, nil
}

func (m *mockKpiRecordRepo) Get(_ context.Context, kind model.SubjectKind, id, month string) (*kpi.Record, error) {
	r, ok := m.items[recordKey{kind, id, month}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *mockKpiRecordRepo) History(_ context.Context, kind model.SubjectKind, id string) ([]kpi.Record, error) {
	var out []kpi.Record
	for k, r := range m.items {
		if k.kind == kind && k.id == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockKpiRecordRepo) ListBySubjects(_ context.Context, kind model.SubjectKind, ids []string) ([]kpi.Record, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []kpi.Record
	for k, r := range m.items {
		if k.kind == kind && want[k.id] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockKpiRecordRepo) DeleteBySubject(_ context.Context, kind model.SubjectKind, id string) (int64, error) {
	var n int64
	for k := range m.items {
		if k.kind == kind && k.id == id {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// mockKpiTableRepo — мок KpiTableRepository. По умолчанию БД пуста.
type mockKpiTableRepo struct {
	getFn  func(ctx context.Context, version string) (*kpi.Table, error)
	listFn func(ctx context.Context) ([]kpi.Table, error)
	seeded []kpi.Table
	gets   int
}

func (m *mockKpiTableRepo) Seed(_ context.Context, tables []kpi.Table) (int, error) {
	added := 0
	for _, t := range tables {
		if m.has(t.Version) {
			continue
		}
		m.seeded = append(m.seeded, t)
		added++
	}
	return added, nil
}

func (m *mockKpiTableRepo) has(version string) bool {
	for _, t := range m.seeded {
		if t.Version == version {
			return true
		}
	}
	return false
}

func (m *mockKpiTableRepo) Get(ctx context.Context, version string) (*kpi.Table, error) {
	m.gets++
	if m.getFn != nil {
		return m.getFn(ctx, version)
	}
	return nil, repository.ErrNotFound
}

func (m *mockKpiTableRepo) List(ctx context.Context) ([]kpi.Table, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// --- Mock FI repositories ---

type mockSecteurRepo struct {
	items map[string]*model.Secteur
}

func (m *mockSecteurRepo) Create(_ context.Context, s *model.Secteur) error {
	m.items[s.ID] = s
	return nil
}

func (m *mockSecteurRepo) GetByID(_ context.Context, id string) (*model.Secteur, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (m *mockSecteurRepo) List(_ context.Context, p scope.Predicate, _, _ int) ([]*model.Secteur, error) {
	var out []*model.Secteur
	for _, id := range sortedKeys(m.items) {
		if scope.MatchSecteur(p, *m.items[id]) {
			out = append(out, m.items[id])
		}
	}
	return out, nil
}

type mockFamilleRepo struct {
	items map[string]*model.Famille
}

func (m *mockFamilleRepo) Create(_ context.Context, f *model.Famille) error {
	m.items[f.ID] = f
	return nil
}

func (m *mockFamilleRepo) GetByID(_ context.Context, id string) (*model.Famille, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFamilleRepo) List(ctx context.Context, p scope.Predicate, _, _ int) ([]*model.Famille, error) {
	return m.ListAll(ctx, p)
}

func (m *mockFamilleRepo) ListAll(_ context.Context, p scope.Predicate) ([]*model.Famille, error) {
	var out []*model.Famille
	for _, id := range sortedKeys(m.items) {
		if scope.MatchFamille(p, *m.items[id]) {
			out = append(out, m.items[id])
		}
	}
	return out, nil
}

func (m *mockFamilleRepo) Update(_ context.Context, f *model.Famille) error {
	m.items[f.ID] = f
	return nil
}

type mockMembreRepo struct {
	items    map[string]*model.Membre
	familles *mockFamilleRepo
}

func (m *mockMembreRepo) Create(_ context.Context, mb *model.Membre) error {
	m.items[mb.ID] = mb
	return nil
}

func (m *mockMembreRepo) GetByID(_ context.Context, id string) (*model.Membre, error) {
	mb, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return mb, nil
}

func (m *mockMembreRepo) ListByFamille(_ context.Context, familleID string) ([]*model.Membre, error) {
	var out []*model.Membre
	for _, id := range sortedKeys(m.items) {
		if m.items[id].FamilleID == familleID {
			out = append(out, m.items[id])
		}
	}
	return out, nil
}

func (m *mockMembreRepo) ListScoped(_ context.Context, p scope.Predicate) ([]*model.Membre, error) {
	var out []*model.Membre
	for _, id := range sortedKeys(m.items) {
		mb := m.items[id]
		f, ok := m.familles.items[mb.FamilleID]
		if ok && scope.MatchMembre(p, *f) {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockMembreRepo) Delete(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func (m *mockMembreRepo) DeleteByVisitor(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// fiFixture — два города: Dijon (сектор s1, FI f1, f2) и Lyon (s2, f3).
type fiFixture struct {
	secteurs *mockSecteurRepo
	familles *mockFamilleRepo
	membres  *mockMembreRepo
}

func newFIFixture() *fiFixture {
	fx := &fiFixture{
		secteurs: &mockSecteurRepo{items: map[string]*model.Secteur{
			"s1": {ID: "s1", Name: "Nord", City: "Dijon"},
			"s3": {ID: "s3", Name: "Sud", City: "Dijon"},
			"s2": {ID: "s2", Name: "Centre", City: "Lyon"},
		}},
		familles: &mockFamilleRepo{items: map[string]*model.Famille{
			"f1": {ID: "f1", Name: "FI 1", SecteurID: "s1", City: "Dijon"},
			"f2": {ID: "f2", Name: "FI 2", SecteurID: "s1", City: "Dijon"},
			"f3": {ID: "f3", Name: "FI 3", SecteurID: "s2", City: "Lyon"},
		}},
	}
	fx.membres = &mockMembreRepo{familles: fx.familles, items: map[string]*model.Membre{
		"m1": {ID: "m1", FamilleID: "f1", Firstname: "A"},
		"m2": {ID: "m2", FamilleID: "f1", Firstname: "B"},
		"m3": {ID: "m3", FamilleID: "f2", Firstname: "C"},
		"m4": {ID: "m4", FamilleID: "f3", Firstname: "D"},
	}}
	return fx
}

// --- Mock PresenceRepository ---

type mockPresenceRepo struct {
	items  []*model.Presence
	listFn func(ctx context.Context, f repository.PresenceFilter) ([]*model.Presence, error)
	last   *repository.PresenceFilter
}

func (m *mockPresenceRepo) Upsert(_ context.Context, p *model.Presence) (bool, error) {
	for i, it := range m.items {
		if it.SubjectKind == p.SubjectKind && it.SubjectID == p.SubjectID && it.Date.Equal(p.Date) {
			p.ID = it.ID
			m.items[i] = p
			return false, nil
		}
	}
	m.items = append(m.items, p)
	return true, nil
}

func (m *mockPresenceRepo) List(ctx context.Context, f repository.PresenceFilter) ([]*model.Presence, error) {
	m.last = &f
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	var out []*model.Presence
	for _, p := range m.items {
		if p.SubjectKind == f.Kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPresenceRepo) DeleteBySubjects(_ context.Context, _ model.SubjectKind, _ []string) (int64, error) {
	return 0, nil
}

// --- Mock bergerie repositories ---

type mockBergerieRepo struct {
	items map[string]*model.Bergerie
}

func (m *mockBergerieRepo) Create(_ context.Context, b *model.Bergerie) error {
	m.items[b.ID] = b
	return nil
}

func (m *mockBergerieRepo) GetByID(_ context.Context, id string) (*model.Bergerie, error) {
	b, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

func (m *mockBergerieRepo) List(_ context.Context, p scope.Predicate) ([]*model.Bergerie, error) {
	var out []*model.Bergerie
	for _, id := range sortedKeys(m.items) {
		if scope.MatchBergerie(p, *m.items[id]) {
			out = append(out, m.items[id])
		}
	}
	return out, nil
}

type mockBergerieMembreRepo struct {
	items     map[string]*model.BergerieMembre
	bergeries *mockBergerieRepo
}

func (m *mockBergerieMembreRepo) Create(_ context.Context, bm *model.BergerieMembre) error {
	m.items[bm.ID] = bm
	return nil
}

func (m *mockBergerieMembreRepo) GetByID(_ context.Context, id string) (*model.BergerieMembre, error) {
	bm, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *bm
	return &cp, nil
}

func (m *mockBergerieMembreRepo) ListScoped(_ context.Context, p scope.Predicate) ([]*model.BergerieMembre, error) {
	var out []*model.BergerieMembre
	for _, id := range sortedKeys(m.items) {
		bm := m.items[id]
		b, ok := m.bergeries.items[bm.BergerieID]
		if ok && scope.MatchBergerie(p, *b) {
			out = append(out, bm)
		}
	}
	return out, nil
}

func (m *mockBergerieMembreRepo) SetManualStatus(_ context.Context, id string, status, comment *string) error {
	bm, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	bm.ManualStatus, bm.ManualComment = status, comment
	return nil
}

func (m *mockBergerieMembreRepo) DetachVisitor(_ context.Context, _ string) error {
	return nil
}

// bergerieFixture — bergerie b1 пастуха shep (Dijon), b2 другого пастуха.
func bergerieFixture() (*mockBergerieRepo, *mockBergerieMembreRepo) {
	bergeries := &mockBergerieRepo{items: map[string]*model.Bergerie{
		"b1": {ID: "b1", Name: "Agneaux", City: "Dijon", OwnerID: "shep"},
		"b2": {ID: "b2", Name: "Brebis", City: "Dijon", OwnerID: "other"},
	}}
	membres := &mockBergerieMembreRepo{bergeries: bergeries, items: map[string]*model.BergerieMembre{
		"bm1": {ID: "bm1", BergerieID: "b1", Firstname: "Luc", Lastname: "Moreau"},
		"bm2": {ID: "bm2", BergerieID: "b2", Firstname: "Eve", Lastname: "Roux"},
	}}
	return bergeries, membres
}

func shepherd() *rbac.Actor {
	return &rbac.Actor{UserID: "shep", Role: rbac.RoleDiscipleshipShepherd, City: "Dijon"}
}

// --- Mock events ---

type mockEventRepo struct {
	items map[string]*model.Event
}

func (m *mockEventRepo) Create(_ context.Context, e *model.Event) error {
	m.items[e.ID] = e
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (m *mockEventRepo) List(_ context.Context, p scope.Predicate, _, _ int) ([]*model.Event, error) {
	var out []*model.Event
	for _, id := range sortedKeys(m.items) {
		if scope.MatchEvent(p, *m.items[id]) {
			out = append(out, m.items[id])
		}
	}
	return out, nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type mockRSVPRepo struct {
	items []*model.RSVP
}

func (m *mockRSVPRepo) Create(_ context.Context, r *model.RSVP) error {
	m.items = append(m.items, r)
	return nil
}

func (m *mockRSVPRepo) ListByEvent(_ context.Context, eventID string) ([]*model.RSVP, error) {
	var out []*model.RSVP
	for _, r := range m.items {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRSVPRepo) DeleteByEvent(_ context.Context, _ string) (int64, error) {
	return int64(len(m.items)), nil
}

// --- Mock UserRepository ---

type mockUserRepo struct {
	items            map[string]*model.User
	updatePasswordFn func(ctx context.Context, id, hash string, at time.Time) error
}

func (m *mockUserRepo) Create(_ context.Context, u *model.User) error {
	if _, ok := m.items[u.ID]; ok {
		return repository.ErrConflict
	}
	m.items[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) List(_ context.Context, _, _ int) ([]*model.User, error) {
	var out []*model.User
	for _, id := range sortedKeys(m.items) {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, hash string, at time.Time) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, hash, at)
	}
	u, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = &hash
	u.PasswordResetAt = &at
	return nil
}

// --- Mock Notifier ---

type mockNotifier struct {
	events []notify.StoppedEvent
	err    error
}

func (m *mockNotifier) VisitorStopped(_ context.Context, e notify.StoppedEvent) error {
	m.events = append(m.events, e)
	return m.err
}

func sortedKeys[V any](items map[string]V) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
