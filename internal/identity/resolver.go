package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrIdentityRequired = errors.New("identity required")

// Resolver mapeia o token verificado (telefone normalizado) para o registro
// estável de identity e resolve o handle de exibição com cache Redis.
type Resolver struct {
	db  *sql.DB
	rdb *redis.Client
	ttl time.Duration
}

func NewResolver(db *sql.DB, rdb *redis.Client) *Resolver {
	return &Resolver{db: db, rdb: rdb, ttl: 60 * time.Second}
}

// NormalizeToken remove separadores comuns de telefone, preservando o prefixo +.
// O token normalizado é a chave única de identities.
func NormalizeToken(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GetOrCreate resolve um token verificado para o id da identity, criando o
// registro na primeira submissão. Token vazio vira ErrIdentityRequired.
func (r *Resolver) GetOrCreate(ctx context.Context, token string) (string, error) {
	token = NormalizeToken(token)
	if token == "" {
		return "", ErrIdentityRequired
	}

	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, phone_token, created_at)
		VALUES ($1,$2,NOW())
		ON CONFLICT (phone_token) DO NOTHING`, id, token); err != nil {
		return "", err
	}

	var got string
	if err := r.db.QueryRowContext(ctx,
		`SELECT id FROM identities WHERE phone_token=$1`, token).Scan(&got); err != nil {
		return "", err
	}
	return got, nil
}

func handleKey(identityID string) string { return "identity:handle:" + identityID }

// Handle retorna o handle de exibição de uma identity, com cache Redis.
// Identity sem handle configurado retorna string vazia sem erro.
func (r *Resolver) Handle(ctx context.Context, identityID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if r.rdb != nil {
		if v, err := r.rdb.Get(ctx, handleKey(identityID)).Result(); err == nil {
			return v, nil
		}
		// redis.Nil ou indisponibilidade caem pro banco
	}

	var handle sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT display_handle FROM identities WHERE id=$1`, identityID).Scan(&handle)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", err
	}

	if r.rdb != nil {
		_ = r.rdb.Set(ctx, handleKey(identityID), handle.String, r.ttl).Err()
	}
	return handle.String, nil
}
