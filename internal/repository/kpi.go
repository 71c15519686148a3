package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
)

// KpiRecordRepository — месячные записи KPI (таблица kpi_records).
type KpiRecordRepository interface {
	// Upsert сохраняет запись по ключу (subject_kind, subject_id, month).
	// inserted=false означает перезапись существующей записи.
	Upsert(ctx context.Context, r *kpi.Record) (inserted bool, err error)
	// Get возвращает запись за месяц.
	Get(ctx context.Context, kind model.SubjectKind, subjectID, month string) (*kpi.Record, error)
	// History возвращает все записи субъекта по возрастанию месяца.
	History(ctx context.Context, kind model.SubjectKind, subjectID string) ([]kpi.Record, error)
	// ListBySubjects возвращает записи набора субъектов.
	ListBySubjects(ctx context.Context, kind model.SubjectKind, ids []string) ([]kpi.Record, error)
	// DeleteBySubject удаляет все записи субъекта.
	DeleteBySubject(ctx context.Context, kind model.SubjectKind, subjectID string) (int64, error)
}

type kpiRecordRepo struct {
	db DBTX
}

// NewKpiRecordRepository создаёт репозиторий записей KPI.
func NewKpiRecordRepository(db DBTX) KpiRecordRepository {
	return &kpiRecordRepo{db: db}
}

const kpiRecordColumns = `subject_kind, subject_id, month, presence_dimanche, presence_fi,
	presence_reunion_disciples, service_eglise, consommation_pain_du_jour, bapteme,
	score, level, table_version, updated_by, created_at, updated_at`

func (r *kpiRecordRepo) Upsert(ctx context.Context, rec *kpi.Record) (bool, error) {
	query := `
		INSERT INTO kpi_records (subject_kind, subject_id, month, presence_dimanche, presence_fi,
			presence_reunion_disciples, service_eglise, consommation_pain_du_jour, bapteme,
			score, level, table_version, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (subject_kind, subject_id, month) DO UPDATE SET
			presence_dimanche = EXCLUDED.presence_dimanche,
			presence_fi = EXCLUDED.presence_fi,
			presence_reunion_disciples = EXCLUDED.presence_reunion_disciples,
			service_eglise = EXCLUDED.service_eglise,
			consommation_pain_du_jour = EXCLUDED.consommation_pain_du_jour,
			bapteme = EXCLUDED.bapteme,
			score = EXCLUDED.score,
			level = EXCLUDED.level,
			table_version = EXCLUDED.table_version,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
		RETURNING created_at, updated_at, (xmax = 0) AS is_insert`

	ind := rec.Indicators
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		string(rec.SubjectKind), rec.SubjectID, rec.Month,
		ind.PresenceDimanche, ind.PresenceFi, ind.PresenceReunionDisciples,
		ind.ServiceEglise, ind.ConsommationPainDuJour, ind.Bapteme,
		rec.Score, rec.Level, rec.TableVersion, rec.UpdatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt, &inserted)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: таблица KPI %s", ErrReference, rec.TableVersion)
		}
		return false, fmt.Errorf("ошибка сохранения KPI: %w", err)
	}
	return inserted, nil
}

func (r *kpiRecordRepo) Get(ctx context.Context, kind model.SubjectKind, subjectID, month string) (*kpi.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM kpi_records
		WHERE subject_kind = $1 AND subject_id = $2 AND month = $3`, kpiRecordColumns)

	rec, err := scanKpiRecord(r.db.QueryRow(ctx, query, string(kind), subjectID, month))
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения KPI: %w", err)
	}
	return &rec, nil
}

func (r *kpiRecordRepo) History(ctx context.Context, kind model.SubjectKind, subjectID string) ([]kpi.Record, error) {
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM kpi_records
		WHERE subject_kind = $1 AND subject_id = $2 ORDER BY month`, kpiRecordColumns),
		string(kind), subjectID)
}

func (r *kpiRecordRepo) ListBySubjects(ctx context.Context, kind model.SubjectKind, ids []string) ([]kpi.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM kpi_records
		WHERE subject_kind = $1 AND subject_id = ANY($2) ORDER BY subject_id, month`, kpiRecordColumns),
		string(kind), ids)
}

func (r *kpiRecordRepo) query(ctx context.Context, query string, args ...any) ([]kpi.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории KPI: %w", err)
	}
	defer rows.Close()

	var result []kpi.Record
	for rows.Next() {
		rec, err := scanKpiRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования KPI: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *kpiRecordRepo) DeleteBySubject(ctx context.Context, kind model.SubjectKind, subjectID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM kpi_records WHERE subject_kind = $1 AND subject_id = $2`,
		string(kind), subjectID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления KPI: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanKpiRecord(row rowScanner) (kpi.Record, error) {
	var rec kpi.Record
	var kind string
	ind := &rec.Indicators
	err := row.Scan(
		&kind, &rec.SubjectID, &rec.Month,
		&ind.PresenceDimanche, &ind.PresenceFi, &ind.PresenceReunionDisciples,
		&ind.ServiceEglise, &ind.ConsommationPainDuJour, &ind.Bapteme,
		&rec.Score, &rec.Level, &rec.TableVersion, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	rec.SubjectKind = model.SubjectKind(kind)
	return rec, err
}

// KpiTableRepository — версии таблиц весов (таблица kpi_tables).
// Версии неизменяемы: повторный seed существующую версию не трогает.
type KpiTableRepository interface {
	// Seed записывает отсутствующие версии и возвращает число добавленных.
	Seed(ctx context.Context, tables []kpi.Table) (int, error)
	// Get возвращает таблицу по версии.
	Get(ctx context.Context, version string) (*kpi.Table, error)
	// List возвращает все версии.
	List(ctx context.Context) ([]kpi.Table, error)
}

type kpiTableRepo struct {
	db DBTX
}

// NewKpiTableRepository создаёт репозиторий таблиц KPI.
func NewKpiTableRepository(db DBTX) KpiTableRepository {
	return &kpiTableRepo{db: db}
}

func (r *kpiTableRepo) Seed(ctx context.Context, tables []kpi.Table) (int, error) {
	added := 0
	for _, t := range tables {
		def, err := json.Marshal(t)
		if err != nil {
			return added, fmt.Errorf("ошибка сериализации таблицы %s: %w", t.Version, err)
		}
		tag, err := r.db.Exec(ctx, `
			INSERT INTO kpi_tables (version, definition) VALUES ($1, $2)
			ON CONFLICT (version) DO NOTHING`, t.Version, def)
		if err != nil {
			return added, fmt.Errorf("ошибка записи таблицы %s: %w", t.Version, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

func (r *kpiTableRepo) Get(ctx context.Context, version string) (*kpi.Table, error) {
	var def []byte
	err := r.db.QueryRow(ctx, `SELECT definition FROM kpi_tables WHERE version = $1`, version).Scan(&def)
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения таблицы KPI: %w", err)
	}
	t, err := decodeTable(def)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *kpiTableRepo) List(ctx context.Context) ([]kpi.Table, error) {
	rows, err := r.db.Query(ctx, `SELECT definition FROM kpi_tables ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения таблиц KPI: %w", err)
	}
	defer rows.Close()

	var result []kpi.Table
	for rows.Next() {
		var def []byte
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("ошибка сканирования таблицы KPI: %w", err)
		}
		t, err := decodeTable(def)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func decodeTable(def []byte) (kpi.Table, error) {
	var t kpi.Table
	if err := json.Unmarshal(def, &t); err != nil {
		return kpi.Table{}, fmt.Errorf("ошибка разбора таблицы KPI: %w", err)
	}
	if err := t.Validate(); err != nil {
		return kpi.Table{}, err
	}
	return t, nil
}
