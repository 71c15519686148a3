// kpi.go — KPI Discipolat: одно ядро для двух видов субъектов
// (посетители и участники bergeries), различия в SubjectAdapter.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/pastorale/internal/domain/access"
	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/domain/scope"
	"github.com/bigkaa/pastorale/internal/repository"
)

// KpiSubject — субъект KPI, загруженный адаптером.
type KpiSubject struct {
	Kind          model.SubjectKind
	ID            string
	Name          string
	ManualStatus  *string
	ManualComment *string
	// Target — запись для проверки прав записи
	Target access.Target
}

// SubjectAdapter — доступ к субъектам одного вида.
type SubjectAdapter interface {
	// Kind — вид субъекта.
	Kind() model.SubjectKind
	// Resource — ресурс для предикатов и проверок прав.
	Resource() scope.Resource
	// Load загружает субъект; вне предиката — ErrNotFound.
	Load(ctx context.Context, p scope.Predicate, id string) (*KpiSubject, error)
	// ListVisible возвращает все субъекты в пределах предиката.
	ListVisible(ctx context.Context, p scope.Predicate) ([]KpiSubject, error)
	// SetManualStatus задаёт или снимает (nil) ручной статус.
	SetManualStatus(ctx context.Context, id string, status, comment *string) error
}

// KpiView — запись KPI за месяц вместе с текущей таблицей.
type KpiView struct {
	Record  kpi.Record
	Current kpi.Table
}

// KpiHistory — история субъекта и вычисленный статус.
type KpiHistory struct {
	Subject KpiSubject
	Records []kpi.Record
	Status  kpi.Status
	Current kpi.Table
}

// SubjectStatus — статус одного субъекта в общем списке.
type SubjectStatus struct {
	SubjectID string
	Name      string
	Status    kpi.Status
}

// KpiService — сервис KPI Discipolat.
type KpiService struct {
	gateway
	records  repository.KpiRecordRepository
	tables   *KpiTables
	adapters map[model.SubjectKind]SubjectAdapter
	logger   *slog.Logger
}

// NewKpiService создаёт сервис KPI с адаптерами субъектов.
func NewKpiService(
	records repository.KpiRecordRepository,
	tables *KpiTables,
	logger *slog.Logger,
	adapters ...SubjectAdapter,
) *KpiService {
	l := logger.With(slog.String("component", "kpi_service"))
	m := make(map[model.SubjectKind]SubjectAdapter, len(adapters))
	for _, ad := range adapters {
		m[ad.Kind()] = ad
	}
	return &KpiService{
		gateway:  gateway{logger: l},
		records:  records,
		tables:   tables,
		adapters: m,
		logger:   l,
	}
}

func (s *KpiService) adapter(kind model.SubjectKind) (SubjectAdapter, error) {
	ad, ok := s.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: вид субъекта KPI %q не поддерживается", ErrValidation, kind)
	}
	return ad, nil
}

// subject строит предикат чтения и загружает субъект.
func (s *KpiService) subject(ctx context.Context, a *rbac.Actor, kind model.SubjectKind, id string) (SubjectAdapter, *KpiSubject, error) {
	ad, err := s.adapter(kind)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.readScope(a, ad.Resource(), scope.Params{})
	if err != nil {
		return nil, nil, err
	}
	subj, err := ad.Load(ctx, p, id)
	if err != nil {
		return nil, nil, mapRepoErr(err)
	}
	return ad, subj, nil
}

// Save вычисляет и сохраняет KPI за месяц. Повторное сохранение того же
// месяца перезаписывает запись и логируется как overwrite.
func (s *KpiService) Save(
	ctx context.Context,
	a *rbac.Actor,
	kind model.SubjectKind,
	id, month string,
	ind kpi.Indicators,
) (*KpiView, error) {
	if err := kpi.ValidMonth(month); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err) //nolint:errorlint // намеренный двойной wrap
	}
	ad, subj, err := s.subject(ctx, a, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, ad.Resource(), access.OpSetKpi, subj.Target); err != nil {
		return nil, err
	}

	engine, err := s.tables.Current(ctx)
	if err != nil {
		return nil, err
	}
	res, err := engine.Evaluate(ind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err) //nolint:errorlint // намеренный двойной wrap
	}

	rec := kpi.Record{
		SubjectKind:  kind,
		SubjectID:    id,
		Month:        month,
		Indicators:   ind,
		Score:        res.Score,
		Level:        res.Level,
		TableVersion: res.Version,
		UpdatedBy:    a.UserID,
	}
	inserted, err := s.records.Upsert(ctx, &rec)
	if errors.Is(err, repository.ErrReference) {
		// Версия таблицы отсутствует в kpi_tables (БД пересоздана после
		// кэширования движка): записываем её и повторяем один раз.
		if perr := s.tables.Persist(ctx, rec.TableVersion); perr != nil {
			return nil, perr
		}
		inserted, err = s.records.Upsert(ctx, &rec)
	}
	if err != nil {
		return nil, mapRepoErr(err)
	}

	result := saveResult(inserted)
	kpiSavesTotal.WithLabelValues(result).Inc()
	s.logger.Info("KPI сохранён",
		slog.String("subject_kind", string(kind)),
		slog.String("subject_id", id),
		slog.String("month", month),
		slog.Int("score", res.Score),
		slog.String("table_version", res.Version),
		slog.String("result", result),
		slog.String("updated_by", a.UserID),
	)
	return &KpiView{Record: rec, Current: engine.Table()}, nil
}

// Get возвращает запись за месяц. Месяц без данных — нулевые
// индикаторы и базовый уровень текущей таблицы.
func (s *KpiService) Get(ctx context.Context, a *rbac.Actor, kind model.SubjectKind, id, month string) (*KpiView, error) {
	if err := kpi.ValidMonth(month); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err) //nolint:errorlint // намеренный двойной wrap
	}
	if _, _, err := s.subject(ctx, a, kind, id); err != nil {
		return nil, err
	}
	engine, err := s.tables.Current(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, kind, id, month)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		def := kpi.Default(kind, id, month, engine.Table())
		return &KpiView{Record: def, Current: engine.Table()}, nil
	case err != nil:
		return nil, fmt.Errorf("загрузка KPI: %w", err)
	}
	return &KpiView{Record: *rec, Current: engine.Table()}, nil
}

// History возвращает все месяцы субъекта и статус: вычисленную
// тенденцию и ручной статус, если он задан.
func (s *KpiService) History(ctx context.Context, a *rbac.Actor, kind model.SubjectKind, id string) (*KpiHistory, error) {
	_, subj, err := s.subject(ctx, a, kind, id)
	if err != nil {
		return nil, err
	}
	return s.history(ctx, subj)
}

func (s *KpiService) history(ctx context.Context, subj *KpiSubject) (*KpiHistory, error) {
	engine, err := s.tables.Current(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.records.History(ctx, subj.Kind, subj.ID)
	if err != nil {
		return nil, fmt.Errorf("история KPI: %w", err)
	}
	return &KpiHistory{
		Subject: *subj,
		Records: records,
		Status:  engine.ComputeStatus(records, s.scales(ctx, records), subj.ManualStatus, subj.ManualComment),
		Current: engine.Table(),
	}, nil
}

// SetManualStatus задаёт ручной статус поверх вычисленного.
// nil status снимает ручной статус вместе с комментарием.
func (s *KpiService) SetManualStatus(
	ctx context.Context,
	a *rbac.Actor,
	kind model.SubjectKind,
	id string,
	status, comment *string,
) (*KpiHistory, error) {
	if status != nil {
		trimmed := strings.TrimSpace(*status)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: status: не может быть пустым", ErrValidation)
		}
		status = &trimmed
	} else {
		comment = nil
	}

	ad, subj, err := s.subject(ctx, a, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(a, ad.Resource(), access.OpSetManualStatus, subj.Target); err != nil {
		return nil, err
	}
	if err := ad.SetManualStatus(ctx, id, status, comment); err != nil {
		return nil, mapRepoErr(err)
	}

	subj.ManualStatus = status
	subj.ManualComment = comment
	s.logger.Info("Ручной статус KPI изменён",
		slog.String("subject_kind", string(kind)),
		slog.String("subject_id", id),
		slog.Bool("cleared", status == nil),
		slog.String("updated_by", a.UserID),
	)
	return s.history(ctx, subj)
}

// ListStatuses возвращает статусы всех видимых актору субъектов вида.
func (s *KpiService) ListStatuses(ctx context.Context, a *rbac.Actor, kind model.SubjectKind) ([]SubjectStatus, error) {
	ad, err := s.adapter(kind)
	if err != nil {
		return nil, err
	}
	p, err := s.readScope(a, ad.Resource(), scope.Params{})
	if err != nil {
		return nil, err
	}
	subjects, err := ad.ListVisible(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("список субъектов KPI: %w", err)
	}
	if len(subjects) == 0 {
		return []SubjectStatus{}, nil
	}

	ids := make([]string, 0, len(subjects))
	for _, subj := range subjects {
		ids = append(ids, subj.ID)
	}
	records, err := s.records.ListBySubjects(ctx, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("записи KPI: %w", err)
	}
	bySubject := make(map[string][]kpi.Record, len(subjects))
	for _, r := range records {
		bySubject[r.SubjectID] = append(bySubject[r.SubjectID], r)
	}

	engine, err := s.tables.Current(ctx)
	if err != nil {
		return nil, err
	}
	scales := s.scales(ctx, records)
	out := make([]SubjectStatus, 0, len(subjects))
	for _, subj := range subjects {
		out = append(out, SubjectStatus{
			SubjectID: subj.ID,
			Name:      subj.Name,
			Status:    engine.ComputeStatus(bySubject[subj.ID], scales, subj.ManualStatus, subj.ManualComment),
		})
	}
	return out, nil
}

// scales собирает максимальные оценки версий, встреченных в записях.
// Версия, которую не удалось загрузить, усредняется без пересчёта.
func (s *KpiService) scales(ctx context.Context, records []kpi.Record) kpi.Scales {
	out := make(kpi.Scales)
	for _, r := range records {
		if _, seen := out[r.TableVersion]; seen || r.TableVersion == "" {
			continue
		}
		e, err := s.tables.Engine(ctx, r.TableVersion)
		if err != nil {
			s.logger.Warn("Таблица KPI записи недоступна, оценка без пересчёта",
				slog.String("version", r.TableVersion),
				slog.String("error", err.Error()),
			)
			out[r.TableVersion] = 0
			continue
		}
		out[r.TableVersion] = e.Table().MaxScore
	}
	return out
}

// Tables возвращает текущую версию и все известные таблицы.
func (s *KpiService) Tables(ctx context.Context) (string, []kpi.Table, error) {
	tables, err := s.tables.List(ctx)
	if err != nil {
		return "", nil, err
	}
	return s.tables.CurrentVersion(), tables, nil
}

// --- Адаптеры субъектов ---

type visitorSubjects struct {
	visitors repository.VisitorRepository
}

// NewVisitorSubjects — адаптер KPI для посетителей.
func NewVisitorSubjects(visitors repository.VisitorRepository) SubjectAdapter {
	return &visitorSubjects{visitors: visitors}
}

func (v *visitorSubjects) Kind() model.SubjectKind  { return model.SubjectVisitor }
func (v *visitorSubjects) Resource() scope.Resource { return scope.ResourceKpiVisitor }

func (v *visitorSubjects) Load(ctx context.Context, p scope.Predicate, id string) (*KpiSubject, error) {
	vis, err := v.visitors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.MatchVisitor(p, *vis) {
		return nil, ErrNotFound
	}
	subj := visitorSubject(*vis)
	subj.Target = access.Target{Visitor: vis}
	return &subj, nil
}

func (v *visitorSubjects) ListVisible(ctx context.Context, p scope.Predicate) ([]KpiSubject, error) {
	items, err := v.visitors.ListAll(ctx, repository.VisitorFilter{Scope: p})
	if err != nil {
		return nil, err
	}
	out := make([]KpiSubject, 0, len(items))
	for _, it := range items {
		out = append(out, visitorSubject(*it))
	}
	return out, nil
}

func (v *visitorSubjects) SetManualStatus(ctx context.Context, id string, status, comment *string) error {
	return v.visitors.SetManualStatus(ctx, id, status, comment)
}

func visitorSubject(v model.Visitor) KpiSubject {
	return KpiSubject{
		Kind:          model.SubjectVisitor,
		ID:            v.ID,
		Name:          fullName(v.Firstname, v.Lastname),
		ManualStatus:  v.ManualStatus,
		ManualComment: v.ManualComment,
	}
}

type bergerieSubjects struct {
	bergeries repository.BergerieRepository
	membres   repository.BergerieMembreRepository
}

// NewBergerieSubjects — адаптер KPI для участников bergeries.
func NewBergerieSubjects(bergeries repository.BergerieRepository, membres repository.BergerieMembreRepository) SubjectAdapter {
	return &bergerieSubjects{bergeries: bergeries, membres: membres}
}

func (b *bergerieSubjects) Kind() model.SubjectKind  { return model.SubjectBergerieMembre }
func (b *bergerieSubjects) Resource() scope.Resource { return scope.ResourceKpiBergerie }

func (b *bergerieSubjects) Load(ctx context.Context, p scope.Predicate, id string) (*KpiSubject, error) {
	m, err := b.membres.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	berg, err := b.bergeries.GetByID(ctx, m.BergerieID)
	if err != nil {
		return nil, err
	}
	if !scope.MatchBergerie(p, *berg) {
		return nil, ErrNotFound
	}
	subj := bergerieSubject(*m)
	subj.Target = access.Target{Bergerie: berg}
	return &subj, nil
}

func (b *bergerieSubjects) ListVisible(ctx context.Context, p scope.Predicate) ([]KpiSubject, error) {
	items, err := b.membres.ListScoped(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]KpiSubject, 0, len(items))
	for _, it := range items {
		out = append(out, bergerieSubject(*it))
	}
	return out, nil
}

func (b *bergerieSubjects) SetManualStatus(ctx context.Context, id string, status, comment *string) error {
	return b.membres.SetManualStatus(ctx, id, status, comment)
}

func bergerieSubject(m model.BergerieMembre) KpiSubject {
	return KpiSubject{
		Kind:          model.SubjectBergerieMembre,
		ID:            m.ID,
		Name:          fullName(m.Firstname, m.Lastname),
		ManualStatus:  m.ManualStatus,
		ManualComment: m.ManualComment,
	}
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
