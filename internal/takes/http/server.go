package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/challenge"
	chrepo "github.com/propduel/takes-platform/internal/challenge/repo"
	"github.com/propduel/takes-platform/internal/identity"
	"github.com/propduel/takes-platform/internal/leaderboard"
	"github.com/propduel/takes-platform/internal/takes/dto"
	"github.com/propduel/takes-platform/internal/takes/repo"
	"github.com/propduel/takes-platform/pkg/contracts/events"
)

// submitRetries é o número de tentativas quando duas submissões do mesmo
// (identity, prop) disputam a supersessão. A corrida é esperada e resolvida
// relendo o estado pós-conflito; o cliente nunca vê o conflito se o retry passa.
const submitRetries = 3

// Store define as operações do ledger usadas pelos handlers
type Store interface {
	GetProp(ctx context.Context, propID string) (*repo.Prop, error)
	ListOpenProps(ctx context.Context) ([]repo.Prop, error)
	GetOrCreateReceipt(ctx context.Context, identityID, packID string) (string, error)
	SubmitTake(ctx context.Context, identityID, receiptID, propID, side string) (string, error)
	SideCounts(ctx context.Context, propID string) (a, b int, err error)
	ListTakesByReceipt(ctx context.Context, receiptID string) ([]repo.Take, error)
}

// ChallengeStore carrega packs, take-sets e challenges persistidos
type ChallengeStore interface {
	PackProps(ctx context.Context, packID string) ([]challenge.PropRow, error)
	TakesByReceipt(ctx context.Context, receiptID string) ([]challenge.Take, error)
	Create(ctx context.Context, packID, receiptA, receiptB string, bonusPool int) (string, error)
	Get(ctx context.Context, id string) (*chrepo.Challenge, error)
}

// Identities resolve o token verificado para o id estável
type Identities interface {
	GetOrCreate(ctx context.Context, token string) (string, error)
}

// Boards computa leaderboards por escopo
type Boards interface {
	Leaderboard(ctx context.Context, scope, scopeID string) ([]leaderboard.Entry, error)
}

type Server struct {
	log        *zap.Logger
	store      Store
	challenges ChallengeStore
	ids        Identities
	boards     Boards
	tieBreak   string
	publ       interface {
		PublishTakeRecorded(context.Context, events.TakeRecorded) error
	}

	// métricas (counter++), ligadas no main
	OnSubmitted     func()
	OnConflictRetry func()
}

func NewServer(
	log *zap.Logger,
	store Store,
	challenges ChallengeStore,
	ids Identities,
	boards Boards,
	tieBreak string,
	publ interface {
		PublishTakeRecorded(context.Context, events.TakeRecorded) error
	},
) *Server {
	return &Server{
		log:        log,
		store:      store,
		challenges: challenges,
		ids:        ids,
		boards:     boards,
		tieBreak:   tieBreak,
		publ:       publ,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/takes", s.submitTake)
	r.Get("/v1/receipts/{id}/takes", s.listTakesByReceipt)
	r.Get("/v1/leaderboard", s.getLeaderboard)
	r.Get("/v1/props", s.listProps)
	r.Get("/v1/props/{id}/counts", s.getSideCounts)
	r.Post("/v1/challenges", s.createChallenge)
	r.Get("/v1/challenges/compare", s.compareAdHoc)
	r.Get("/v1/challenges/{id}", s.getChallenge)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) submitTake(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitTakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Side != repo.SideA && req.Side != repo.SideB {
		writeError(w, http.StatusBadRequest, "side must be A or B")
		return
	}
	if req.PropID == "" {
		writeError(w, http.StatusBadRequest, "propId required")
		return
	}

	identityID, err := s.ids.GetOrCreate(r.Context(), req.IdentityToken)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityRequired) {
			writeError(w, http.StatusUnauthorized, "identity required")
			return
		}
		s.log.Error("identity resolve", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	prop, err := s.store.GetProp(r.Context(), req.PropID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prop not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if prop.Status != repo.PropOpen {
		writeError(w, http.StatusConflict, "prop not open")
		return
	}

	receiptID, err := s.store.GetOrCreateReceipt(r.Context(), identityID, prop.PackID)
	if err != nil {
		s.log.Error("receipt resolve", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// A supersessão roda numa transação; perder a corrida pro índice único é
	// esperado sob resubmissão concorrente e resolvido reexecutando tudo.
	var takeID string
	for attempt := 0; attempt < submitRetries; attempt++ {
		takeID, err = s.store.SubmitTake(r.Context(), identityID, receiptID, req.PropID, req.Side)
		if !errors.Is(err, repo.ErrConflict) {
			break
		}
		if s.OnConflictRetry != nil {
			s.OnConflictRetry()
		}
		time.Sleep(time.Duration(10*(attempt+1)) * time.Millisecond)
	}
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrPropNotOpen):
			writeError(w, http.StatusConflict, "prop not open")
		case errors.Is(err, repo.ErrNotFound):
			writeError(w, http.StatusNotFound, "prop not found")
		default:
			s.log.Error("submit take", zap.String("prop_id", req.PropID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	a, b, err := s.store.SideCounts(r.Context(), req.PropID)
	if err != nil {
		s.log.Error("side counts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.OnSubmitted != nil {
		s.OnSubmitted()
	}

	if s.publ != nil {
		_ = s.publ.PublishTakeRecorded(r.Context(), events.TakeRecorded{
			TakeID:     takeID,
			ReceiptID:  receiptID,
			IdentityID: identityID,
			PropID:     req.PropID,
			Side:       req.Side,
			SideACount: a,
			SideBCount: b,
		})
	}

	writeJSON(w, http.StatusOK, dto.SubmitTakeResponse{
		TakeID:     takeID,
		ReceiptID:  receiptID,
		SideACount: a,
		SideBCount: b,
	})
}

func (s *Server) listTakesByReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	takes, err := s.store.ListTakesByReceipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receipt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]dto.TakeItem, 0, len(takes))
	for _, t := range takes {
		out = append(out, dto.TakeItem{
			TakeID:        t.ID,
			PropID:        t.PropID,
			Side:          t.Side,
			Result:        t.Result,
			PointsAwarded: t.PointsAwarded,
			CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = leaderboard.ScopeAll
	}
	entries, err := s.boards.Leaderboard(r.Context(), scope, r.URL.Query().Get("scopeId"))
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidScope) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("leaderboard", zap.String("scope", scope), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "leaderboard unavailable")
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listProps(w http.ResponseWriter, r *http.Request) {
	props, err := s.store.ListOpenProps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]dto.PropItem, 0, len(props))
	for _, p := range props {
		out = append(out, dto.PropItem{
			PropID:     p.ID,
			PackID:     p.PackID,
			SideALabel: p.SideALabel,
			SideBLabel: p.SideBLabel,
			Points:     p.Points,
			Status:     p.Status,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSideCounts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, b, err := s.store.SideCounts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.SideCountsResponse{PropID: id, SideACount: a, SideBCount: b})
}

func (s *Server) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.PackID == "" || req.ReceiptA == "" || req.ReceiptB == "" || req.BonusPool < 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	id, err := s.challenges.Create(r.Context(), req.PackID, req.ReceiptA, req.ReceiptB, req.BonusPool)
	if err != nil {
		switch {
		case errors.Is(err, chrepo.ErrReceiptNotFound):
			writeError(w, http.StatusNotFound, "receipt not in pack")
		default:
			s.log.Error("create challenge", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, dto.CreateChallengeResponse{ChallengeID: id})
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := s.challenges.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, chrepo.ErrChallengeNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeComparison(w, r, c.PackID, c.ReceiptA, c.ReceiptB, c.BonusPool)
}

func (s *Server) compareAdHoc(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	packID, ra, rb := q.Get("packId"), q.Get("receiptA"), q.Get("receiptB")
	if packID == "" || ra == "" || rb == "" {
		writeError(w, http.StatusBadRequest, "packId, receiptA and receiptB required")
		return
	}
	pool := 0
	if v := q.Get("bonusPool"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid bonusPool")
			return
		}
		pool = n
	}
	s.writeComparison(w, r, packID, ra, rb, pool)
}

func (s *Server) writeComparison(w http.ResponseWriter, r *http.Request, packID, receiptA, receiptB string, pool int) {
	props, err := s.challenges.PackProps(r.Context(), packID)
	if err != nil {
		if errors.Is(err, chrepo.ErrPackNotFound) {
			writeError(w, http.StatusNotFound, "pack not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	takesA, err := s.challenges.TakesByReceipt(r.Context(), receiptA)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	takesB, err := s.challenges.TakesByReceipt(r.Context(), receiptB)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, challenge.Compare(props, takesA, takesB, pool, s.tieBreak))
}
