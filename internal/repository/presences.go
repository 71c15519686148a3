package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/scope"
)

// PresenceFilter — условия выборки отметок присутствия.
type PresenceFilter struct {
	// Kind — тип субъекта
	Kind model.SubjectKind
	// Scope — предикат видимости; применяется через JOIN к субъекту
	Scope scope.Predicate
	// SubjectIDs — ограничение по субъектам (nil — все видимые)
	SubjectIDs []string
	// From, To — границы дат включительно (nil — без ограничения)
	From *time.Time
	To   *time.Time
}

// PresenceRepository — отметки присутствия (таблица presences).
type PresenceRepository interface {
	// Upsert сохраняет отметку по ключу (subject_kind, subject_id, date).
	// inserted=false означает перезапись существующей отметки.
	Upsert(ctx context.Context, p *model.Presence) (inserted bool, err error)
	// List возвращает отметки видимых субъектов.
	List(ctx context.Context, f PresenceFilter) ([]*model.Presence, error)
	// DeleteBySubjects удаляет отметки субъектов.
	DeleteBySubjects(ctx context.Context, kind model.SubjectKind, ids []string) (int64, error)
}

type presenceRepo struct {
	db DBTX
}

// NewPresenceRepository создаёт репозиторий присутствия.
func NewPresenceRepository(db DBTX) PresenceRepository {
	return &presenceRepo{db: db}
}

const presenceColumns = `pr.id, pr.subject_kind, pr.subject_id, pr.date, pr.bucket, pr.present,
	pr.recorded_by, pr.created_at, pr.updated_at`

// presenceJoins — JOIN к субъекту и колонки его видимости.
var presenceJoins = map[model.SubjectKind]struct {
	join    string
	columns scopeColumns
}{
	model.SubjectVisitor: {
		join:    `JOIN visitors v ON v.id = pr.subject_id`,
		columns: scopeColumns{City: "v.city", Month: "v.assigned_month"},
	},
	model.SubjectMembre: {
		join:    `JOIN membres m ON m.id = pr.subject_id JOIN familles f ON f.id = m.famille_id`,
		columns: scopeColumns{City: "f.city", Sector: "f.secteur_id", Fi: "f.id"},
	},
	model.SubjectBergerieMembre: {
		join:    `JOIN bergerie_membres bm ON bm.id = pr.subject_id JOIN bergeries b ON b.id = bm.bergerie_id`,
		columns: scopeColumns{City: "b.city", Owner: "b.owner_id"},
	},
}

func (r *presenceRepo) Upsert(ctx context.Context, p *model.Presence) (bool, error) {
	query := `
		INSERT INTO presences (id, subject_kind, subject_id, date, bucket, present, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_kind, subject_id, date) DO UPDATE SET
			bucket = EXCLUDED.bucket,
			present = EXCLUDED.present,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0) AS is_insert`

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		p.ID, string(p.SubjectKind), p.SubjectID, p.Date, p.Bucket, p.Present, p.RecordedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения присутствия: %w", err)
	}
	return inserted, nil
}

func (r *presenceRepo) List(ctx context.Context, f PresenceFilter) ([]*model.Presence, error) {
	j, ok := presenceJoins[f.Kind]
	if !ok {
		return nil, fmt.Errorf("неизвестный тип субъекта %q", f.Kind)
	}

	w := &where{}
	w.eq("pr.subject_kind", string(f.Kind))
	w.scope(f.Scope, j.columns)
	if f.SubjectIDs != nil {
		w.in("pr.subject_id", f.SubjectIDs)
	}
	if f.From != nil {
		w.add("pr.date >= " + w.arg(*f.From))
	}
	if f.To != nil {
		w.add("pr.date <= " + w.arg(*f.To))
	}

	query := fmt.Sprintf(`SELECT %s FROM presences pr %s %s ORDER BY pr.date, pr.subject_id`,
		presenceColumns, j.join, w)

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения присутствия: %w", err)
	}
	defer rows.Close()

	var result []*model.Presence
	for rows.Next() {
		p := &model.Presence{}
		var kind string
		if err := rows.Scan(
			&p.ID, &kind, &p.SubjectID, &p.Date, &p.Bucket, &p.Present,
			&p.RecordedBy, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования присутствия: %w", err)
		}
		p.SubjectKind = model.SubjectKind(kind)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *presenceRepo) DeleteBySubjects(ctx context.Context, kind model.SubjectKind, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM presences WHERE subject_kind = $1 AND subject_id = ANY($2)`,
		string(kind), ids)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления присутствия: %w", err)
	}
	return tag.RowsAffected(), nil
}
