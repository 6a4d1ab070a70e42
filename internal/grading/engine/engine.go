package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/grading/formula"
	"github.com/propduel/takes-platform/internal/grading/provider"
)

var (
	ErrNotFound = errors.New("prop not found")

	// ErrPropStillOpen bloqueia a apuração de prop ainda aberto; o caminho
	// normal é fechar primeiro. Apurar aberto exige override explícito.
	ErrPropStillOpen = errors.New("prop still open")
)

// Prop é a visão da apuração sobre um prop.
type Prop struct {
	ID            string
	EventRef      string
	Status        string
	WinningSide   string // vazio = ainda não apurado
	Points        int
	FormulaKey    string
	FormulaParams []byte
}

// Store define as operações de persistência usadas pela apuração.
type Store interface {
	GetProp(ctx context.Context, propID string) (*Prop, error)

	// SetWinningSide grava o lado vencedor e marca o prop como graded,
	// apenas se ainda não houver lado gravado. Retorna o lado efetivamente
	// persistido (o primeiro escritor vence a corrida).
	SetWinningSide(ctx context.Context, propID, side string) (string, error)

	// MarkTakes atribui result/points a todos os takes pendentes do prop
	// como função pura de (side, winningSide). Linhas já marcadas nunca são
	// alteradas, o que torna re-execuções e retomadas no-ops.
	MarkTakes(ctx context.Context, propID, winningSide string, points int) (int64, error)
}

// OutcomeSource abstrai o provedor externo de resultados.
type OutcomeSource interface {
	Fetch(ctx context.Context, eventRef string) (*provider.Outcome, error)
}

// Engine apura props: resolve o lado vencedor uma única vez e marca os takes
// de forma idempotente.
type Engine struct {
	Log      *zap.Logger
	Store    Store
	Source   OutcomeSource
	Formulas *formula.Registry
	Timeout  time.Duration // orçamento da chamada ao provedor
}

// GradeProp apura um prop e retorna quantos takes foram marcados nesta chamada.
// Chamar de novo com o mesmo resultado não altera pontos já atribuídos:
// prop já apurado pula direto para a marcação dos takes pendentes restantes
// (cobre retomada após falha parcial).
// force autoriza apurar um prop ainda aberto (override administrativo).
func (e *Engine) GradeProp(ctx context.Context, propID string, force bool) (int64, error) {
	p, err := e.Store.GetProp(ctx, propID)
	if err != nil {
		return 0, err
	}

	if p.WinningSide == "" {
		if p.Status == "open" && !force {
			return 0, ErrPropStillOpen
		}
		side, err := e.resolve(ctx, p)
		if err != nil {
			// prop permanece no estado anterior; nenhum ponto parcial
			return 0, err
		}

		stored, err := e.Store.SetWinningSide(ctx, propID, side)
		if err != nil {
			return 0, err
		}
		if stored != side {
			e.Log.Warn("concurrent grading resolved first",
				zap.String("prop_id", propID),
				zap.String("stored", stored),
				zap.String("computed", side))
		}
		p.WinningSide = stored
	}

	n, err := e.Store.MarkTakes(ctx, propID, p.WinningSide, p.Points)
	if err != nil {
		return 0, err
	}

	e.Log.Info("prop graded",
		zap.String("prop_id", propID),
		zap.String("winning_side", p.WinningSide),
		zap.Int64("takes_marked", n))
	return n, nil
}

func (e *Engine) resolve(ctx context.Context, p *Prop) (string, error) {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := e.Source.Fetch(ctx, p.EventRef)
	if err != nil {
		if errors.Is(err, provider.ErrResolutionUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", provider.ErrResolutionUnavailable, err)
	}

	side, err := e.Formulas.Resolve(p.FormulaKey, *out, p.FormulaParams)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrResolutionUnavailable, err)
	}
	return side, nil
}
