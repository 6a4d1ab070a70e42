package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implementa a persistência do ledger de takes
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de takes
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrPropNotOpen = errors.New("prop not open")
	ErrNotFound    = errors.New("not found")

	// ErrConflict indica que duas submissões do mesmo (identity, prop)
	// disputaram a supersessão; o chamador deve reexecutar a submissão inteira
	ErrConflict = errors.New("concurrent submission conflict")
)

// uniqueViolation é o código do Postgres para violação de constraint única.
// O índice parcial takes_latest_uniq (identity_id, prop_id) WHERE status='latest'
// é quem garante no máximo um take latest por par.
const uniqueViolation = "23505"

// SubmitTake marca como overwritten qualquer take latest do par (identity, prop)
// e insere o novo take latest, tudo numa única transação.
// Corridas entre submissões concorrentes estouram no índice parcial e voltam
// como ErrConflict; o handler reexecuta a sequência completa.
func (p *Postgres) SubmitTake(ctx context.Context, identityID, receiptID, propID, side string) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	// Trava o prop contra transição de status durante a submissão
	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM props WHERE id=$1 FOR SHARE`, propID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}
	if status != PropOpen {
		return "", ErrPropNotOpen
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE takes SET status=$1
		WHERE identity_id=$2 AND prop_id=$3 AND status=$4`,
		TakeOverwritten, identityID, propID, TakeLatest); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO takes (id, prop_id, identity_id, receipt_id, side, status, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		id, propID, identityID, receiptID, side, TakeLatest, ResultPending); err != nil {
		return "", mapConflict(err)
	}

	if err = tx.Commit(); err != nil {
		return "", mapConflict(err)
	}
	return id, nil
}

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrConflict
	}
	return err
}

// SideCounts recomputa os totais por lado a partir do ledger (só takes latest).
// Nunca lê de contador cacheado; a fonte de verdade é a tabela.
func (p *Postgres) SideCounts(ctx context.Context, propID string) (a, b int, err error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT side, COUNT(*) FROM takes
		WHERE prop_id=$1 AND status=$2
		GROUP BY side`, propID, TakeLatest)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var side string
		var n int
		if err := rows.Scan(&side, &n); err != nil {
			return 0, 0, err
		}
		switch side {
		case SideA:
			a = n
		case SideB:
			b = n
		}
	}
	return a, b, rows.Err()
}

// GetProp carrega um prop pelo id
func (p *Postgres) GetProp(ctx context.Context, propID string) (*Prop, error) {
	var pr Prop
	var winning sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, pack_id, contest_id, subject, side_a_label, side_b_label,
		       event_ref, status, winning_side, points, formula_key, formula_params, created_at
		FROM props WHERE id=$1`, propID).Scan(
		&pr.ID, &pr.PackID, &pr.ContestID, &pr.Subject, &pr.SideALabel, &pr.SideBLabel,
		&pr.EventRef, &pr.Status, &winning, &pr.Points, &pr.FormulaKey, &pr.FormulaParams, &pr.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	pr.WinningSide = winning.String
	return &pr, nil
}

// ListOpenProps retorna os props abertos para submissão
func (p *Postgres) ListOpenProps(ctx context.Context) ([]Prop, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, pack_id, contest_id, subject, side_a_label, side_b_label,
		       event_ref, status, points, created_at
		FROM props WHERE status=$1 ORDER BY created_at`, PropOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prop
	for rows.Next() {
		var pr Prop
		if err := rows.Scan(&pr.ID, &pr.PackID, &pr.ContestID, &pr.Subject,
			&pr.SideALabel, &pr.SideBLabel, &pr.EventRef, &pr.Status, &pr.Points, &pr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// GetOrCreateReceipt resolve o recibo de submissão de um identity num pack,
// criando se não existir. ON CONFLICT cobre a corrida entre duas submissões
// simultâneas do mesmo identity no mesmo pack.
func (p *Postgres) GetOrCreateReceipt(ctx context.Context, identityID, packID string) (string, error) {
	id := uuid.NewString()
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO receipts (id, identity_id, pack_id, created_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (identity_id, pack_id) DO NOTHING`,
		id, identityID, packID); err != nil {
		return "", err
	}

	var got string
	err := p.db.QueryRowContext(ctx,
		`SELECT id FROM receipts WHERE identity_id=$1 AND pack_id=$2`,
		identityID, packID).Scan(&got)
	if err != nil {
		return "", err
	}
	return got, nil
}

// ListTakesByReceipt retorna os takes latest do recibo, em ordem de criação
func (p *Postgres) ListTakesByReceipt(ctx context.Context, receiptID string) ([]Take, error) {
	var exists string
	err := p.db.QueryRowContext(ctx, `SELECT id FROM receipts WHERE id=$1`, receiptID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, prop_id, identity_id, side, result, COALESCE(points_awarded, 0), created_at
		FROM takes
		WHERE receipt_id=$1 AND status=$2
		ORDER BY created_at`, receiptID, TakeLatest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Take
	for rows.Next() {
		t := Take{ReceiptID: receiptID, Status: TakeLatest}
		if err := rows.Scan(&t.ID, &t.PropID, &t.IdentityID, &t.Side, &t.Result, &t.PointsAwarded, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
