package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/pastorale/internal/domain/model"
)

// CascadeResult — число удалённых связанных записей.
type CascadeResult struct {
	Memberships int   `json:"memberships"`
	Presences   int64 `json:"presences"`
	KpiRecords  int64 `json:"kpiRecords"`
	RSVPs       int64 `json:"rsvps"`
}

// Cascade выполняет удаления вместе со связанными записями
// в одной транзакции: либо удаляется всё, либо ничего.
type Cascade struct {
	tx *TxRunner
}

// NewCascade создаёт каскадный удалитель.
func NewCascade(tx *TxRunner) *Cascade {
	return &Cascade{tx: tx}
}

// DeleteVisitor удаляет посетителя, его членства в FI, отметки присутствия
// (его и этих членств) и записи KPI. Ссылки из bergeries снимаются.
func (c *Cascade) DeleteVisitor(ctx context.Context, id string) (CascadeResult, error) {
	var res CascadeResult
	err := c.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		membreIDs, err := NewMembreRepository(tx).DeleteByVisitor(ctx, id)
		if err != nil {
			return err
		}
		res.Memberships = len(membreIDs)

		presences := NewPresenceRepository(tx)
		n, err := presences.DeleteBySubjects(ctx, model.SubjectMembre, membreIDs)
		if err != nil {
			return err
		}
		res.Presences += n
		if n, err = presences.DeleteBySubjects(ctx, model.SubjectVisitor, []string{id}); err != nil {
			return err
		}
		res.Presences += n

		if res.KpiRecords, err = NewKpiRecordRepository(tx).DeleteBySubject(ctx, model.SubjectVisitor, id); err != nil {
			return err
		}
		if err := NewBergerieMembreRepository(tx).DetachVisitor(ctx, id); err != nil {
			return err
		}
		return NewVisitorRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// DeleteEvent удаляет мероприятие и ответы на него.
func (c *Cascade) DeleteEvent(ctx context.Context, id string) (CascadeResult, error) {
	var res CascadeResult
	err := c.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		if res.RSVPs, err = NewRSVPRepository(tx).DeleteByEvent(ctx, id); err != nil {
			return err
		}
		return NewEventRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// DeleteMembre удаляет участника FI и его отметки присутствия.
func (c *Cascade) DeleteMembre(ctx context.Context, id string) (CascadeResult, error) {
	var res CascadeResult
	err := c.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		res.Presences, err = NewPresenceRepository(tx).DeleteBySubjects(ctx, model.SubjectMembre, []string{id})
		if err != nil {
			return err
		}
		if err := NewMembreRepository(tx).Delete(ctx, id); err != nil {
			return err
		}
		res.Memberships = 1
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}
