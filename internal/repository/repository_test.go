package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/pastorale/internal/config"
	"github.com/bigkaa/pastorale/internal/database"
	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("pastorale_test"),
		postgres.WithUsername("pastorale"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("PA_DB_HOST", host)
	t.Setenv("PA_DB_PORT", port.Port())
	t.Setenv("PA_DB_NAME", "pastorale_test")
	t.Setenv("PA_DB_USER", "pastorale")
	t.Setenv("PA_DB_PASSWORD", "test-password")
	t.Setenv("PA_DB_SSL_MODE", "disable")

	cfg, err := config.LoadDatabase()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func newVisitor(city, visitDate string) *model.Visitor {
	return &model.Visitor{
		ID:        uuid.New().String(),
		Firstname: "Jean",
		Lastname:  "Dupont",
		City:      city,
		VisitDate: date(visitDate),
		Types:     []model.VisitorType{model.VisitorNewArrival},
		CreatedBy: "admin",
	}
}

// --- Пользователи ---

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	sector := "sec-1"
	u := &model.User{
		ID:               "kc-user-1",
		Username:         "referent",
		Role:             rbac.RoleMonthReferent,
		City:             "Dijon",
		AssignedMonths:   []string{"2099-01"},
		AssignedSectorID: &sector,
	}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, u); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, хотели ErrConflict", err)
	}

	got, err := repo.GetByID(ctx, "kc-user-1")
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Role != rbac.RoleMonthReferent || got.City != "Dijon" {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.AssignedMonths) != 1 || got.AssignedMonths[0] != "2099-01" {
		t.Errorf("AssignedMonths = %v", got.AssignedMonths)
	}
	if got.AssignedFiIDs == nil || len(got.AssignedFiIDs) != 0 {
		t.Errorf("AssignedFiIDs = %#v, хотели пустой список", got.AssignedFiIDs)
	}

	if err := repo.UpdatePassword(ctx, "kc-user-1", "$2a$hash", time.Now()); err != nil {
		t.Fatalf("UpdatePassword() ошибка: %v", err)
	}
	if err := repo.UpdatePassword(ctx, "absent", "$2a$hash", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePassword(absent) = %v, хотели ErrNotFound", err)
	}
	got, _ = repo.GetByID(ctx, "kc-user-1")
	if got.PasswordHash == nil || got.PasswordResetAt == nil {
		t.Error("пароль не сохранён")
	}

	if _, err := repo.GetByID(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(absent) = %v, хотели ErrNotFound", err)
	}
}

// --- Посетители ---

func TestVisitorRepository_ScopedList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewVisitorRepository(pool)

	for _, v := range []*model.Visitor{
		newVisitor("Dijon", "2099-01-05"),
		newVisitor("Dijon", "2099-02-05"),
		newVisitor("Lyon", "2099-01-05"),
	} {
		if err := repo.Create(ctx, v); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	tests := []struct {
		name string
		pred scope.Predicate
		want int
	}{
		{"все", scope.Predicate{All: true}, 3},
		{"город", scope.Predicate{Cities: []string{"Dijon"}}, 2},
		{"город и месяц", scope.Predicate{Cities: []string{"Dijon"}, Months: []string{"2099-01"}}, 1},
		{"отказ", scope.Predicate{Deny: true}, 0},
		{"пусто", scope.Predicate{Cities: []string{"Dijon"}, Empty: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := VisitorFilter{Scope: tt.pred}
			list, err := repo.List(ctx, f, 100, 0)
			if err != nil {
				t.Fatalf("List() ошибка: %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List() вернул %d, хотели %d", len(list), tt.want)
			}
			count, err := repo.Count(ctx, f)
			if err != nil {
				t.Fatalf("Count() ошибка: %v", err)
			}
			if count != tt.want {
				t.Errorf("Count() = %d, хотели %d", count, tt.want)
			}
		})
	}
}

func TestVisitorRepository_UpdateAndStop(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewVisitorRepository(pool)

	v := newVisitor("Dijon", "2099-01-05")
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if v.AssignedMonth != "2099-01" {
		t.Errorf("AssignedMonth = %q, хотели 2099-01", v.AssignedMonth)
	}

	// Смена даты визита пересчитывает промо.
	v.VisitDate = date("2099-03-10")
	if err := repo.Update(ctx, v); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, err := repo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.AssignedMonth != "2099-03" {
		t.Errorf("AssignedMonth = %q, хотели 2099-03", got.AssignedMonth)
	}

	changed, err := repo.MarkStopped(ctx, v.ID, time.Now())
	if err != nil || !changed {
		t.Fatalf("MarkStopped() = %v, %v", changed, err)
	}
	changed, err = repo.MarkStopped(ctx, v.ID, time.Now())
	if err != nil || changed {
		t.Errorf("повторный MarkStopped() = %v, %v; хотели false", changed, err)
	}

	stopped := true
	list, err := repo.ListAll(ctx, VisitorFilter{Scope: scope.Predicate{All: true}, Stopped: &stopped})
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	if len(list) != 1 || !list[0].TrackingStopped || list[0].TrackingStoppedAt == nil {
		t.Errorf("ListAll(stopped) = %+v", list)
	}

	status, comment := "Leader", "décision"
	if err := repo.SetManualStatus(ctx, v.ID, &status, &comment); err != nil {
		t.Fatalf("SetManualStatus() ошибка: %v", err)
	}
	if err := repo.SetManualStatus(ctx, v.ID, nil, &comment); err != nil {
		t.Fatalf("SetManualStatus(nil) ошибка: %v", err)
	}
	got, _ = repo.GetByID(ctx, v.ID)
	if got.ManualStatus != nil || got.ManualComment != nil {
		t.Errorf("ручной статус не снят: %v %v", got.ManualStatus, got.ManualComment)
	}
}

// --- FI и присутствие ---

func TestFamilleAndPresence(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	secteurs := NewSecteurRepository(pool)
	familles := NewFamilleRepository(pool)
	membres := NewMembreRepository(pool)
	presences := NewPresenceRepository(pool)

	sec := &model.Secteur{ID: uuid.New().String(), Name: "Nord", City: "Dijon"}
	if err := secteurs.Create(ctx, sec); err != nil {
		t.Fatalf("Create(secteur) ошибка: %v", err)
	}
	if err := secteurs.Create(ctx, &model.Secteur{ID: uuid.New().String(), Name: "Nord", City: "Dijon"}); !errors.Is(err, ErrConflict) {
		t.Errorf("дублирующийся сектор = %v, хотели ErrConflict", err)
	}

	fi := &model.Famille{ID: uuid.New().String(), Name: "FI 1", SecteurID: sec.ID, City: "Dijon", PiloteIDs: []string{"p1"}}
	if err := familles.Create(ctx, fi); err != nil {
		t.Fatalf("Create(FI) ошибка: %v", err)
	}
	bad := &model.Famille{ID: uuid.New().String(), Name: "FI X", SecteurID: "absent", City: "Dijon"}
	if err := familles.Create(ctx, bad); !errors.Is(err, ErrReference) {
		t.Errorf("FI с несуществующим сектором = %v, хотели ErrReference", err)
	}

	m := &model.Membre{ID: uuid.New().String(), FamilleID: fi.ID, Firstname: "Marie", Lastname: "Curie"}
	if err := membres.Create(ctx, m); err != nil {
		t.Fatalf("Create(membre) ошибка: %v", err)
	}

	visible, err := membres.ListScoped(ctx, scope.Predicate{Cities: []string{"Dijon"}, FiIDs: []string{fi.ID}})
	if err != nil || len(visible) != 1 {
		t.Fatalf("ListScoped() = %d, %v", len(visible), err)
	}
	hidden, _ := membres.ListScoped(ctx, scope.Predicate{Cities: []string{"Lyon"}})
	if len(hidden) != 0 {
		t.Errorf("участник другого города виден: %d", len(hidden))
	}

	p := &model.Presence{
		ID: uuid.New().String(), SubjectKind: model.SubjectMembre, SubjectID: m.ID,
		Date: date("2099-01-08"), Bucket: "jeudi", Present: true, RecordedBy: "u1",
	}
	inserted, err := presences.Upsert(ctx, p)
	if err != nil || !inserted {
		t.Fatalf("Upsert() = %v, %v; хотели вставку", inserted, err)
	}
	firstID := p.ID

	again := &model.Presence{
		ID: uuid.New().String(), SubjectKind: model.SubjectMembre, SubjectID: m.ID,
		Date: date("2099-01-08"), Bucket: "jeudi", Present: false, RecordedBy: "u2",
	}
	inserted, err = presences.Upsert(ctx, again)
	if err != nil || inserted {
		t.Fatalf("повторный Upsert() = %v, %v; хотели перезапись", inserted, err)
	}
	if again.ID != firstID {
		t.Errorf("ID после перезаписи = %q, хотели %q", again.ID, firstID)
	}

	list, err := presences.List(ctx, PresenceFilter{
		Kind:  model.SubjectMembre,
		Scope: scope.Predicate{Cities: []string{"Dijon"}},
	})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 || list[0].Present {
		t.Errorf("List() = %+v, хотели одну перезаписанную отметку", list)
	}
}

// --- KPI ---

func TestKpiRepositories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	reg, err := kpi.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry() ошибка: %v", err)
	}
	tables := NewKpiTableRepository(pool)
	added, err := tables.Seed(ctx, reg.Tables)
	if err != nil || added != len(reg.Tables) {
		t.Fatalf("Seed() = %d, %v", added, err)
	}
	added, err = tables.Seed(ctx, reg.Tables)
	if err != nil || added != 0 {
		t.Errorf("повторный Seed() = %d, %v; хотели 0", added, err)
	}
	v2, err := tables.Get(ctx, "v2")
	if err != nil {
		t.Fatalf("Get(v2) ошибка: %v", err)
	}
	if v2.Weights.ServiceEglise != 6 {
		t.Errorf("вес serviceEglise = %d, хотели 6", v2.Weights.ServiceEglise)
	}

	records := NewKpiRecordRepository(pool)
	rec := &kpi.Record{
		SubjectKind: model.SubjectVisitor, SubjectID: "v-1", Month: "2099-01",
		Indicators: kpi.Indicators{PresenceDimanche: 4}, Score: 20, Level: "Débutant",
		TableVersion: "v2", UpdatedBy: "u1",
	}
	inserted, err := records.Upsert(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("Upsert() = %v, %v", inserted, err)
	}
	rec.Score = 40
	inserted, err = records.Upsert(ctx, rec)
	if err != nil || inserted {
		t.Fatalf("повторный Upsert() = %v, %v; хотели перезапись", inserted, err)
	}

	got, err := records.Get(ctx, model.SubjectVisitor, "v-1", "2099-01")
	if err != nil || got.Score != 40 {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	if _, err := records.Get(ctx, model.SubjectVisitor, "v-1", "2099-02"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(нет месяца) = %v, хотели ErrNotFound", err)
	}

	rec.TableVersion = "v9"
	rec.Month = "2099-02"
	if _, err := records.Upsert(ctx, rec); !errors.Is(err, ErrReference) {
		t.Errorf("Upsert(v9) = %v, хотели ErrReference", err)
	}
}

// --- Каскадное удаление ---

func TestCascade_DeleteVisitor(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	visitors := NewVisitorRepository(pool)
	v := newVisitor("Dijon", "2099-01-05")
	if err := visitors.Create(ctx, v); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	sec := &model.Secteur{ID: uuid.New().String(), Name: "Sud", City: "Dijon"}
	_ = NewSecteurRepository(pool).Create(ctx, sec)
	fi := &model.Famille{ID: uuid.New().String(), Name: "FI", SecteurID: sec.ID, City: "Dijon"}
	_ = NewFamilleRepository(pool).Create(ctx, fi)
	m := &model.Membre{ID: uuid.New().String(), FamilleID: fi.ID, VisitorID: &v.ID, Firstname: "Jean", Lastname: "Dupont"}
	if err := NewMembreRepository(pool).Create(ctx, m); err != nil {
		t.Fatalf("Create(membre) ошибка: %v", err)
	}

	presences := NewPresenceRepository(pool)
	for _, p := range []*model.Presence{
		{ID: uuid.New().String(), SubjectKind: model.SubjectVisitor, SubjectID: v.ID, Date: date("2099-01-11"), Bucket: "dimanche", Present: true},
		{ID: uuid.New().String(), SubjectKind: model.SubjectMembre, SubjectID: m.ID, Date: date("2099-01-08"), Bucket: "jeudi", Present: true},
	} {
		if _, err := presences.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() ошибка: %v", err)
		}
	}

	res, err := NewCascade(NewTxRunner(pool)).DeleteVisitor(ctx, v.ID)
	if err != nil {
		t.Fatalf("DeleteVisitor() ошибка: %v", err)
	}
	if res.Memberships != 1 || res.Presences != 2 {
		t.Errorf("DeleteVisitor() = %+v, хотели 1 членство и 2 отметки", res)
	}
	if _, err := visitors.GetByID(ctx, v.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("посетитель не удалён: %v", err)
	}

	// Несуществующий посетитель: транзакция откатывается, ошибка ErrNotFound.
	if _, err := NewCascade(NewTxRunner(pool)).DeleteVisitor(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteVisitor(absent) = %v, хотели ErrNotFound", err)
	}
}

func TestCascade_DeleteEvent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	events := NewEventRepository(pool)
	e := &model.Event{ID: uuid.New().String(), Title: "Culte", City: "Dijon", StartsAt: time.Now()}
	if err := events.Create(ctx, e); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	rsvps := NewRSVPRepository(pool)
	for _, name := range []string{"A", "B"} {
		if err := rsvps.Create(ctx, &model.RSVP{ID: uuid.New().String(), EventID: e.ID, Name: name, Status: model.RSVPYes}); err != nil {
			t.Fatalf("Create(rsvp) ошибка: %v", err)
		}
	}

	res, err := NewCascade(NewTxRunner(pool)).DeleteEvent(ctx, e.ID)
	if err != nil || res.RSVPs != 2 {
		t.Fatalf("DeleteEvent() = %+v, %v", res, err)
	}
	list, _ := events.List(ctx, scope.Predicate{All: true}, 10, 0)
	if len(list) != 0 {
		t.Errorf("мероприятие не удалено: %d", len(list))
	}
}

func TestCascade_DeleteMembre(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	sec := &model.Secteur{ID: uuid.New().String(), Name: "Est", City: "Lyon"}
	if err := NewSecteurRepository(pool).Create(ctx, sec); err != nil {
		t.Fatalf("Create(secteur) ошибка: %v", err)
	}
	fi := &model.Famille{ID: uuid.New().String(), Name: "FI Est", SecteurID: sec.ID, City: "Lyon"}
	if err := NewFamilleRepository(pool).Create(ctx, fi); err != nil {
		t.Fatalf("Create(famille) ошибка: %v", err)
	}
	membres := NewMembreRepository(pool)
	m := &model.Membre{ID: uuid.New().String(), FamilleID: fi.ID, Firstname: "Paul", Lastname: "Martin"}
	if err := membres.Create(ctx, m); err != nil {
		t.Fatalf("Create(membre) ошибка: %v", err)
	}
	p := &model.Presence{ID: uuid.New().String(), SubjectKind: model.SubjectMembre, SubjectID: m.ID, Date: date("2099-02-05"), Bucket: "jeudi", Present: true}
	if _, err := NewPresenceRepository(pool).Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	res, err := NewCascade(NewTxRunner(pool)).DeleteMembre(ctx, m.ID)
	if err != nil {
		t.Fatalf("DeleteMembre() ошибка: %v", err)
	}
	if res.Memberships != 1 || res.Presences != 1 {
		t.Errorf("DeleteMembre() = %+v, хотели 1 членство и 1 отметку", res)
	}
	if _, err := membres.GetByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("участник не удалён: %v", err)
	}
}
