package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrResolutionUnavailable indica que o provedor externo ainda não tem o
// resultado (evento não concluído ou provedor fora do ar). Retryable.
var ErrResolutionUnavailable = errors.New("resolution unavailable")

// Outcome é o dado bruto do evento retornado pelo provedor de resultados.
type Outcome struct {
	EventRef   string `json:"event_ref"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	WinnerSide string `json:"winner_side"` // "A" | "B" | "" (empate)
	Concluded  bool   `json:"concluded"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Fetch busca o resultado de um evento no provedor.
// Qualquer falha de rede/HTTP vira ErrResolutionUnavailable; o mesmo vale para
// eventos ainda não concluídos.
func (c *Client) Fetch(ctx context.Context, eventRef string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/results/"+eventRef, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: results http %d", ErrResolutionUnavailable, res.StatusCode)
	}

	var out Outcome
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionUnavailable, err)
	}
	if !out.Concluded {
		return nil, fmt.Errorf("%w: event %s not concluded", ErrResolutionUnavailable, eventRef)
	}
	return &out, nil
}
