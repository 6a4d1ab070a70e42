package leaderboard

import (
	"context"
	"database/sql"
)

// PostgresStore agrega o ledger direto no banco: a soma/contagem roda no
// Postgres e só as linhas agregadas chegam em memória.
type PostgresStore struct{ DB *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// Entries agrega apenas takes latest (política padrão: overwritten fica fora
// do placar). Pendentes contam no takeCount e somam zero ponto.
// Ordenação: pontos desc, desempate pelo primeiro take mais antigo (estável).
func (s *PostgresStore) Entries(ctx context.Context, scope, scopeID string) ([]Entry, error) {
	const base = `
		SELECT t.identity_id,
		       COUNT(*),
		       COALESCE(SUM(t.points_awarded), 0),
		       COUNT(*) FILTER (WHERE t.result = 'won'),
		       COUNT(*) FILTER (WHERE t.result = 'lost')
		FROM takes t
		JOIN props p ON p.id = t.prop_id
		WHERE t.status = 'latest'`
	const tail = `
		GROUP BY t.identity_id
		ORDER BY 3 DESC, MIN(t.created_at) ASC`

	var rows *sql.Rows
	var err error
	switch scope {
	case ScopePack:
		rows, err = s.DB.QueryContext(ctx, base+` AND p.pack_id = $1`+tail, scopeID)
	case ScopeContest:
		rows, err = s.DB.QueryContext(ctx, base+` AND p.contest_id = $1`+tail, scopeID)
	case ScopeSubject:
		rows, err = s.DB.QueryContext(ctx, base+` AND p.subject = $1`+tail, scopeID)
	default: // ScopeAll
		rows, err = s.DB.QueryContext(ctx, base+tail)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.IdentityID, &e.TakeCount, &e.Points, &e.Won, &e.Lost); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
