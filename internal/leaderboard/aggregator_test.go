package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	entries []Entry
	err     error
	calls   int
}

func (f *fakeStore) Entries(context.Context, string, string) ([]Entry, error) {
	f.calls++
	return f.entries, f.err
}

type fakeResolver struct {
	handles map[string]string
	err     error
}

func (f *fakeResolver) Handle(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.handles[id], nil
}

// fakeCache guarda os valores serializados como o RedisCache faria
type fakeCache struct {
	data map[string][]byte
	sets int
}

func (f *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (f *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	f.sets++
	b, _ := json.Marshal(v)
	f.data[key] = b
	return nil
}

func TestLeaderboardResolvesHandles(t *testing.T) {
	st := &fakeStore{entries: []Entry{
		{IdentityID: "i1", TakeCount: 3, Points: 20, Won: 2, Lost: 1},
		{IdentityID: "i2", TakeCount: 1, Points: 10, Won: 1},
	}}
	a := &Aggregator{
		Log:     zap.NewNop(),
		Store:   st,
		Handles: &fakeResolver{handles: map[string]string{"i1": "ligeirinho"}},
	}

	got, err := a.Leaderboard(context.Background(), ScopeAll, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ligeirinho", got[0].DisplayHandle)
	assert.Empty(t, got[1].DisplayHandle)
}

func TestLeaderboardCaches(t *testing.T) {
	st := &fakeStore{entries: []Entry{{IdentityID: "i1", Points: 5, TakeCount: 1}}}
	c := &fakeCache{data: map[string][]byte{}}
	a := &Aggregator{
		Log:     zap.NewNop(),
		Store:   st,
		Handles: &fakeResolver{},
		Cache:   c,
		TTL:     15 * time.Second,
	}

	_, err := a.Leaderboard(context.Background(), ScopePack, "pack-1")
	require.NoError(t, err)
	got, err := a.Leaderboard(context.Background(), ScopePack, "pack-1")
	require.NoError(t, err)

	assert.Equal(t, 1, st.calls, "segunda leitura deve vir do cache")
	assert.Equal(t, 1, c.sets)
	assert.Equal(t, 5, got[0].Points)
}

func TestLeaderboardHandleFailureDegrades(t *testing.T) {
	st := &fakeStore{entries: []Entry{{IdentityID: "i1", Points: 5}}}
	a := &Aggregator{
		Log:     zap.NewNop(),
		Store:   st,
		Handles: &fakeResolver{err: errors.New("redis down")},
	}

	got, err := a.Leaderboard(context.Background(), ScopeAll, "")
	require.NoError(t, err, "falha no resolver não derruba a agregação")
	assert.Empty(t, got[0].DisplayHandle)
}

func TestLeaderboardStoreFailure(t *testing.T) {
	a := &Aggregator{
		Log:     zap.NewNop(),
		Store:   &fakeStore{err: errors.New("pg down")},
		Handles: &fakeResolver{},
	}

	_, err := a.Leaderboard(context.Background(), ScopeAll, "")
	assert.ErrorIs(t, err, ErrAggregationUnavailable)
}

func TestLeaderboardInvalidScope(t *testing.T) {
	a := &Aggregator{Log: zap.NewNop(), Store: &fakeStore{}, Handles: &fakeResolver{}}

	_, err := a.Leaderboard(context.Background(), "galaxy", "x")
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = a.Leaderboard(context.Background(), ScopePack, "")
	assert.ErrorIs(t, err, ErrInvalidScope, "escopos restritos exigem scopeId")
}
