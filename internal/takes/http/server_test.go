package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/challenge"
	chrepo "github.com/propduel/takes-platform/internal/challenge/repo"
	"github.com/propduel/takes-platform/internal/identity"
	"github.com/propduel/takes-platform/internal/leaderboard"
	"github.com/propduel/takes-platform/internal/takes/repo"
	"github.com/propduel/takes-platform/pkg/contracts/events"
)

// fakeStore simula o ledger em memória: um prop e os takes por identity.
type fakeStore struct {
	prop        *repo.Prop
	latest      map[string]repo.Take // identity -> take latest
	overwritten int
	conflicts   int // nº de ErrConflict a devolver antes de aceitar
	receipts    map[string]string
	takesByRcpt map[string][]repo.Take
}

func newFakeStore(prop *repo.Prop) *fakeStore {
	return &fakeStore{
		prop:        prop,
		latest:      map[string]repo.Take{},
		receipts:    map[string]string{},
		takesByRcpt: map[string][]repo.Take{},
	}
}

func (f *fakeStore) GetProp(_ context.Context, propID string) (*repo.Prop, error) {
	if f.prop == nil || f.prop.ID != propID {
		return nil, repo.ErrNotFound
	}
	return f.prop, nil
}

func (f *fakeStore) ListOpenProps(context.Context) ([]repo.Prop, error) {
	if f.prop != nil && f.prop.Status == repo.PropOpen {
		return []repo.Prop{*f.prop}, nil
	}
	return nil, nil
}

func (f *fakeStore) GetOrCreateReceipt(_ context.Context, identityID, packID string) (string, error) {
	k := identityID + "/" + packID
	if id, ok := f.receipts[k]; ok {
		return id, nil
	}
	id := "rcpt-" + identityID
	f.receipts[k] = id
	return id, nil
}

func (f *fakeStore) SubmitTake(_ context.Context, identityID, receiptID, propID, side string) (string, error) {
	if f.conflicts > 0 {
		f.conflicts--
		return "", repo.ErrConflict
	}
	if f.prop == nil || f.prop.ID != propID {
		return "", repo.ErrNotFound
	}
	if f.prop.Status != repo.PropOpen {
		return "", repo.ErrPropNotOpen
	}
	if _, ok := f.latest[identityID]; ok {
		f.overwritten++
	}
	t := repo.Take{
		ID:         "take-" + identityID + "-" + side,
		PropID:     propID,
		IdentityID: identityID,
		ReceiptID:  receiptID,
		Side:       side,
		Status:     repo.TakeLatest,
		Result:     repo.ResultPending,
		CreatedAt:  time.Now(),
	}
	f.latest[identityID] = t
	return t.ID, nil
}

func (f *fakeStore) SideCounts(context.Context, string) (int, int, error) {
	var a, b int
	for _, t := range f.latest {
		if t.Side == repo.SideA {
			a++
		} else {
			b++
		}
	}
	return a, b, nil
}

func (f *fakeStore) ListTakesByReceipt(_ context.Context, receiptID string) ([]repo.Take, error) {
	ts, ok := f.takesByRcpt[receiptID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return ts, nil
}

type fakeIdentities struct{}

func (fakeIdentities) GetOrCreate(_ context.Context, token string) (string, error) {
	if identity.NormalizeToken(token) == "" {
		return "", identity.ErrIdentityRequired
	}
	return "id-" + identity.NormalizeToken(token), nil
}

type fakeBoards struct {
	entries []leaderboard.Entry
	err     error
}

func (f *fakeBoards) Leaderboard(_ context.Context, scope, scopeID string) ([]leaderboard.Entry, error) {
	if scope != leaderboard.ScopeAll && scopeID == "" {
		return nil, leaderboard.ErrInvalidScope
	}
	return f.entries, f.err
}

type fakeChallenges struct {
	props  []challenge.PropRow
	takes  map[string][]challenge.Take
	stored *chrepo.Challenge
}

func (f *fakeChallenges) PackProps(_ context.Context, packID string) ([]challenge.PropRow, error) {
	if f.props == nil {
		return nil, chrepo.ErrPackNotFound
	}
	return f.props, nil
}

func (f *fakeChallenges) TakesByReceipt(_ context.Context, receiptID string) ([]challenge.Take, error) {
	return f.takes[receiptID], nil
}

func (f *fakeChallenges) Create(_ context.Context, packID, ra, rb string, pool int) (string, error) {
	if _, ok := f.takes[ra]; !ok {
		return "", chrepo.ErrReceiptNotFound
	}
	f.stored = &chrepo.Challenge{ID: "ch-1", PackID: packID, ReceiptA: ra, ReceiptB: rb, BonusPool: pool}
	return "ch-1", nil
}

func (f *fakeChallenges) Get(_ context.Context, id string) (*chrepo.Challenge, error) {
	if f.stored == nil || f.stored.ID != id {
		return nil, chrepo.ErrChallengeNotFound
	}
	return f.stored, nil
}

type fakePublisher struct{ published []events.TakeRecorded }

func (f *fakePublisher) PublishTakeRecorded(_ context.Context, e events.TakeRecorded) error {
	f.published = append(f.published, e)
	return nil
}

func openProp() *repo.Prop {
	return &repo.Prop{ID: "p1", PackID: "pack-1", Status: repo.PropOpen, Points: 10}
}

func newTestServer(st *fakeStore, ch *fakeChallenges, bd *fakeBoards, pub *fakePublisher) *Server {
	if ch == nil {
		ch = &fakeChallenges{}
	}
	if bd == nil {
		bd = &fakeBoards{}
	}
	if pub == nil {
		pub = &fakePublisher{}
	}
	return NewServer(zap.NewNop(), st, ch, fakeIdentities{}, bd, challenge.TieBreakPoints, pub)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTake(t *testing.T) {
	st := newFakeStore(openProp())
	pub := &fakePublisher{}
	srv := newTestServer(st, nil, nil, pub)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "+5511999998888", "propId": "p1", "side": "A",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		TakeID     string `json:"takeId"`
		ReceiptID  string `json:"receiptId"`
		SideACount int    `json:"side_a_count"`
		SideBCount int    `json:"side_b_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TakeID)
	assert.NotEmpty(t, resp.ReceiptID)
	assert.Equal(t, 1, resp.SideACount)
	assert.Zero(t, resp.SideBCount)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "A", pub.published[0].Side)
}

func TestSubmitTakeSupersedes(t *testing.T) {
	st := newFakeStore(openProp())
	srv := newTestServer(st, nil, nil, nil)

	body := map[string]string{"identityToken": "11999998888", "propId": "p1", "side": "A"}
	require.Equal(t, http.StatusOK, doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", body).Code)

	body["side"] = "B"
	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SideACount int `json:"side_a_count"`
		SideBCount int `json:"side_b_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.SideACount, "take anterior sai da contagem ao ser sobrescrito")
	assert.Equal(t, 1, resp.SideBCount)
	assert.Equal(t, 1, st.overwritten)
	assert.Len(t, st.latest, 1)
}

func TestSubmitTakeValidation(t *testing.T) {
	srv := newTestServer(newFakeStore(openProp()), nil, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "11999998888", "propId": "p1", "side": "C",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "", "propId": "p1", "side": "A",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitTakePropNotOpen(t *testing.T) {
	prop := openProp()
	prop.Status = repo.PropClosed
	st := newFakeStore(prop)
	srv := newTestServer(st, nil, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "11999998888", "propId": "p1", "side": "A",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, st.latest, "nenhuma linha inserida em prop fechado")
}

func TestSubmitTakeRetriesConflict(t *testing.T) {
	st := newFakeStore(openProp())
	st.conflicts = 2 // perde a corrida duas vezes e passa na terceira
	srv := newTestServer(st, nil, nil, nil)

	retries := 0
	srv.OnConflictRetry = func() { retries++ }

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "11999998888", "propId": "p1", "side": "A",
	})
	assert.Equal(t, http.StatusOK, rec.Code, "conflito de supersessão é invisível ao cliente")
	assert.Equal(t, 2, retries)
}

func TestSubmitTakeConflictExhausted(t *testing.T) {
	st := newFakeStore(openProp())
	st.conflicts = submitRetries
	srv := newTestServer(st, nil, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/takes", map[string]string{
		"identityToken": "11999998888", "propId": "p1", "side": "A",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTakesByReceipt(t *testing.T) {
	st := newFakeStore(openProp())
	st.takesByRcpt["rcpt-1"] = []repo.Take{
		{ID: "t1", PropID: "p1", Side: "A", Result: "won", PointsAwarded: 10, CreatedAt: time.Now()},
	}
	srv := newTestServer(st, nil, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/receipts/rcpt-1/takes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "t1", items[0]["takeId"])

	rec = doJSON(t, srv.Router(), http.MethodGet, "/v1/receipts/nope/takes", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLeaderboard(t *testing.T) {
	bd := &fakeBoards{entries: []leaderboard.Entry{{IdentityID: "i1", Points: 30}}}
	srv := newTestServer(newFakeStore(openProp()), nil, bd, nil)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/leaderboard?scope=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/v1/leaderboard?scope=pack", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "escopo pack sem scopeId é inválido")

	bd.entries, bd.err = nil, errors.New("pg down")
	rec = doJSON(t, srv.Router(), http.MethodGet, "/v1/leaderboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCompareAdHoc(t *testing.T) {
	ch := &fakeChallenges{
		props: []challenge.PropRow{
			{ID: "p1", Status: "graded", WinningSide: "A", Points: 10},
		},
		takes: map[string][]challenge.Take{
			"ra": {{PropID: "p1", Side: "A", Result: "won", PointsAwarded: 10}},
			"rb": {{PropID: "p1", Side: "B", Result: "lost"}},
		},
	}
	srv := newTestServer(newFakeStore(openProp()), ch, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodGet,
		"/v1/challenges/compare?packId=pack-1&receiptA=ra&receiptB=rb&bonusPool=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res challenge.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, challenge.StateFinal, res.State)
	assert.Equal(t, "A", res.Winner)
	assert.Equal(t, 100, res.BonusSplitA+res.BonusSplitB)
}

func TestComparePackNotFound(t *testing.T) {
	srv := newTestServer(newFakeStore(openProp()), &fakeChallenges{}, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodGet,
		"/v1/challenges/compare?packId=nope&receiptA=ra&receiptB=rb", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChallengeRoundTrip(t *testing.T) {
	ch := &fakeChallenges{
		props: []challenge.PropRow{{ID: "p1", Status: "graded", WinningSide: "B", Points: 5}},
		takes: map[string][]challenge.Take{
			"ra": {{PropID: "p1", Side: "B", Result: "won", PointsAwarded: 5}},
			"rb": {{PropID: "p1", Side: "A", Result: "lost"}},
		},
	}
	srv := newTestServer(newFakeStore(openProp()), ch, nil, nil)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/challenges", map[string]any{
		"packId": "pack-1", "receiptA": "ra", "receiptB": "rb", "bonus_pool": 40,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/v1/challenges/ch-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res challenge.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "A", res.Winner)
	assert.Equal(t, 40, res.BonusSplitA)
	assert.Zero(t, res.BonusSplitB)
}
