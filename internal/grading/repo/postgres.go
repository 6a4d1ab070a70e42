package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/propduel/takes-platform/internal/grading/engine"
)

var ErrStateConflict = errors.New("prop state conflict")

// Postgres implementa engine.Store sobre o ledger no Postgres
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) GetProp(ctx context.Context, propID string) (*engine.Prop, error) {
	var pr engine.Prop
	var winning sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, event_ref, status, winning_side, points, formula_key, formula_params
		FROM props WHERE id=$1`, propID).Scan(
		&pr.ID, &pr.EventRef, &pr.Status, &winning, &pr.Points, &pr.FormulaKey, &pr.FormulaParams,
	)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	pr.WinningSide = winning.String
	return &pr, nil
}

// SetWinningSide grava o lado vencedor com guarda "winning_side IS NULL":
// sob apuração concorrente do mesmo prop, só o primeiro escritor grava;
// os demais releem o lado persistido.
func (p *Postgres) SetWinningSide(ctx context.Context, propID, side string) (string, error) {
	if _, err := p.db.ExecContext(ctx, `
		UPDATE props SET winning_side=$2, status='graded', graded_at=NOW()
		WHERE id=$1 AND winning_side IS NULL`, propID, side); err != nil {
		return "", err
	}

	var stored string
	if err := p.db.QueryRowContext(ctx,
		`SELECT winning_side FROM props WHERE id=$1`, propID).Scan(&stored); err != nil {
		return "", err
	}
	return stored, nil
}

// MarkTakes marca result/points de todos os takes pendentes do prop, latest e
// overwritten. O filtro result='pending' garante idempotência: re-execução
// encontra zero linhas pendentes e não toca nas já marcadas.
func (p *Postgres) MarkTakes(ctx context.Context, propID, winningSide string, points int) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE takes SET
		  result = CASE WHEN side = $2 THEN 'won' ELSE 'lost' END,
		  points_awarded = CASE WHEN side = $2 THEN $3 ELSE 0 END
		WHERE prop_id = $1 AND result = 'pending'`,
		propID, winningSide, points)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CloseProp transiciona open -> closed (início do evento).
// Transição inválida (já fechado/apurado) vira ErrStateConflict.
func (p *Postgres) CloseProp(ctx context.Context, propID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE props SET status='closed' WHERE id=$1 AND status='open'`, propID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists string
		if err := p.db.QueryRowContext(ctx, `SELECT id FROM props WHERE id=$1`, propID).Scan(&exists); err == sql.ErrNoRows {
			return engine.ErrNotFound
		}
		return ErrStateConflict
	}
	return nil
}
