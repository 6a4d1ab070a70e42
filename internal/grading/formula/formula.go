package formula

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/propduel/takes-platform/internal/grading/provider"
)

var (
	ErrUnknownFormula = errors.New("unknown formula")

	// ErrUndecidable indica que o resultado bruto não decide nenhum lado
	// (ex.: empate exato no total). O prop fica sem apuração até intervenção.
	ErrUndecidable = errors.New("outcome does not decide a side")
)

// Func converte o resultado bruto de um evento no lado vencedor do prop.
// Deve ser pura: mesma entrada, mesmo lado — é isso que torna a apuração
// idempotente sem flag de guarda.
type Func func(o provider.Outcome, params json.RawMessage) (string, error)

// Registry mapeia formula_key para a função de resolução.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry cria o registry com as fórmulas embutidas registradas.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("winner", Winner)
	r.Register("total_points", TotalPoints)
	r.Register("margin", Margin)
	return r
}

func (r *Registry) Register(key string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key] = fn
}

// Resolve aplica a fórmula registrada sob a chave ao resultado do evento.
func (r *Registry) Resolve(key string, o provider.Outcome, params json.RawMessage) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[key]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormula, key)
	}
	return fn(o, params)
}

// Winner usa o lado vencedor informado pelo provedor. Empate é indecidível.
func Winner(o provider.Outcome, _ json.RawMessage) (string, error) {
	switch o.WinnerSide {
	case "A", "B":
		return o.WinnerSide, nil
	}
	return "", ErrUndecidable
}

// TotalPoints decide por total de pontos contra um threshold.
// Lado A = over, lado B = under; total exatamente no threshold é push.
func TotalPoints(o provider.Outcome, params json.RawMessage) (string, error) {
	var p struct {
		Threshold int `json:"threshold"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("total_points params: %w", err)
	}
	total := o.HomeScore + o.AwayScore
	switch {
	case total > p.Threshold:
		return "A", nil
	case total < p.Threshold:
		return "B", nil
	}
	return "", ErrUndecidable
}

// Margin decide pela margem de vitória do mandante contra um spread.
// Lado A = mandante cobre o spread; margem igual ao spread é push.
func Margin(o provider.Outcome, params json.RawMessage) (string, error) {
	var p struct {
		Spread int `json:"spread"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("margin params: %w", err)
	}
	margin := o.HomeScore - o.AwayScore
	switch {
	case margin > p.Spread:
		return "A", nil
	case margin < p.Spread:
		return "B", nil
	}
	return "", ErrUndecidable
}
