package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/propduel/takes-platform/internal/challenge"
)

var (
	ErrPackNotFound      = errors.New("pack not found")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrReceiptNotFound   = errors.New("receipt not found")
)

// Challenge é o registro persistido que amarra dois recibos ao mesmo pack.
type Challenge struct {
	ID        string
	PackID    string
	ReceiptA  string
	ReceiptB  string
	BonusPool int
}

// Postgres carrega os insumos do comparador e persiste challenges
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// PackProps retorna os props do pack na ordem de criação
func (p *Postgres) PackProps(ctx context.Context, packID string) ([]challenge.PropRow, error) {
	var exists string
	err := p.db.QueryRowContext(ctx, `SELECT id FROM packs WHERE id=$1`, packID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrPackNotFound
	} else if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, side_a_label, side_b_label, status, COALESCE(winning_side, ''), points
		FROM props WHERE pack_id=$1 ORDER BY created_at`, packID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []challenge.PropRow
	for rows.Next() {
		var pr challenge.PropRow
		if err := rows.Scan(&pr.ID, &pr.SideALabel, &pr.SideBLabel, &pr.Status, &pr.WinningSide, &pr.Points); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// TakesByReceipt retorna os takes latest do recibo, visão do comparador
func (p *Postgres) TakesByReceipt(ctx context.Context, receiptID string) ([]challenge.Take, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT prop_id, side, result, COALESCE(points_awarded, 0)
		FROM takes
		WHERE receipt_id=$1 AND status='latest'
		ORDER BY created_at`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []challenge.Take
	for rows.Next() {
		var t challenge.Take
		if err := rows.Scan(&t.PropID, &t.Side, &t.Result, &t.PointsAwarded); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create persiste um challenge entre dois recibos do mesmo pack
func (p *Postgres) Create(ctx context.Context, packID, receiptA, receiptB string, bonusPool int) (string, error) {
	// valida que os dois recibos pertencem ao pack
	for _, r := range []string{receiptA, receiptB} {
		var got string
		err := p.db.QueryRowContext(ctx,
			`SELECT id FROM receipts WHERE id=$1 AND pack_id=$2`, r, packID).Scan(&got)
		if err == sql.ErrNoRows {
			return "", ErrReceiptNotFound
		} else if err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO challenges (id, pack_id, receipt_a, receipt_b, bonus_pool, created_at)
		VALUES ($1,$2,$3,$4,$5,NOW())`,
		id, packID, receiptA, receiptB, bonusPool); err != nil {
		return "", err
	}
	return id, nil
}

// Get carrega um challenge pelo id
func (p *Postgres) Get(ctx context.Context, id string) (*Challenge, error) {
	var c Challenge
	err := p.db.QueryRowContext(ctx, `
		SELECT id, pack_id, receipt_a, receipt_b, bonus_pool
		FROM challenges WHERE id=$1`, id).Scan(
		&c.ID, &c.PackID, &c.ReceiptA, &c.ReceiptB, &c.BonusPool)
	if err == sql.ErrNoRows {
		return nil, ErrChallengeNotFound
	} else if err != nil {
		return nil, err
	}
	return &c, nil
}
