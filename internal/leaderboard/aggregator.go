package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Escopos de agregação suportados.
const (
	ScopeAll     = "all"
	ScopePack    = "pack"
	ScopeContest = "contest"
	ScopeSubject = "subject"
)

var (
	ErrInvalidScope = errors.New("invalid scope")

	// ErrAggregationUnavailable encapsula falhas de leitura do ledger; a view
	// consumidora degrada para estado de erro, nunca para dados parciais.
	ErrAggregationUnavailable = errors.New("aggregation unavailable")
)

// Entry é a linha derivada do leaderboard; nunca é persistida.
type Entry struct {
	IdentityID    string `json:"identityId"`
	DisplayHandle string `json:"displayHandle,omitempty"`
	TakeCount     int    `json:"takeCount"`
	Points        int    `json:"points"`
	Won           int    `json:"won"`
	Lost          int    `json:"lost"`
}

// Store agrega o ledger em memória limitada (GROUP BY no banco, já ordenado).
type Store interface {
	Entries(ctx context.Context, scope, scopeID string) ([]Entry, error)
}

// HandleResolver resolve identity -> handle de exibição.
type HandleResolver interface {
	Handle(ctx context.Context, identityID string) (string, error)
}

// Cache é o read-cache opcional do leaderboard (TTL curto).
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Aggregator computa leaderboards por escopo a partir do ledger.
type Aggregator struct {
	Log     *zap.Logger
	Store   Store
	Handles HandleResolver
	Cache   Cache // nil = sem cache
	TTL     time.Duration
}

func key(scope, scopeID string) string { return "leaderboard:" + scope + ":" + scopeID }

// Leaderboard retorna as entradas ordenadas por pontos para o escopo pedido.
// Falha na resolução de handle degrada para handle vazio, não para erro.
func (a *Aggregator) Leaderboard(ctx context.Context, scope, scopeID string) ([]Entry, error) {
	switch scope {
	case ScopeAll:
		scopeID = ""
	case ScopePack, ScopeContest, ScopeSubject:
		if scopeID == "" {
			return nil, fmt.Errorf("%w: scope %q requires scopeId", ErrInvalidScope, scope)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	k := key(scope, scopeID)
	if a.Cache != nil {
		var cached []Entry
		if ok, _ := a.Cache.Get(ctx, k, &cached); ok {
			return cached, nil
		}
	}

	entries, err := a.Store.Entries(ctx, scope, scopeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAggregationUnavailable, err)
	}

	for i := range entries {
		h, err := a.Handles.Handle(ctx, entries[i].IdentityID)
		if err != nil {
			a.Log.Warn("handle resolve failed",
				zap.String("identity_id", entries[i].IdentityID), zap.Error(err))
			continue
		}
		entries[i].DisplayHandle = h
	}

	if a.Cache != nil {
		ttl := a.TTL
		if ttl == 0 {
			ttl = 15 * time.Second
		}
		_ = a.Cache.Set(ctx, k, entries, ttl)
	}
	return entries, nil
}
