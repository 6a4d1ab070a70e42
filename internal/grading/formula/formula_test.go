package formula

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propduel/takes-platform/internal/grading/provider"
)

func TestWinner(t *testing.T) {
	side, err := Winner(provider.Outcome{WinnerSide: "A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", side)

	side, err = Winner(provider.Outcome{WinnerSide: "B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", side)

	_, err = Winner(provider.Outcome{WinnerSide: ""}, nil)
	assert.ErrorIs(t, err, ErrUndecidable)
}

func TestTotalPoints(t *testing.T) {
	params := json.RawMessage(`{"threshold": 45}`)

	side, err := TotalPoints(provider.Outcome{HomeScore: 30, AwayScore: 20}, params)
	require.NoError(t, err)
	assert.Equal(t, "A", side, "acima do threshold é over (lado A)")

	side, err = TotalPoints(provider.Outcome{HomeScore: 10, AwayScore: 14}, params)
	require.NoError(t, err)
	assert.Equal(t, "B", side)

	_, err = TotalPoints(provider.Outcome{HomeScore: 25, AwayScore: 20}, params)
	assert.ErrorIs(t, err, ErrUndecidable, "total igual ao threshold é push")
}

func TestMargin(t *testing.T) {
	params := json.RawMessage(`{"spread": 3}`)

	side, err := Margin(provider.Outcome{HomeScore: 28, AwayScore: 20}, params)
	require.NoError(t, err)
	assert.Equal(t, "A", side)

	side, err = Margin(provider.Outcome{HomeScore: 21, AwayScore: 20}, params)
	require.NoError(t, err)
	assert.Equal(t, "B", side)

	_, err = Margin(provider.Outcome{HomeScore: 23, AwayScore: 20}, params)
	assert.ErrorIs(t, err, ErrUndecidable)
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()

	side, err := r.Resolve("winner", provider.Outcome{WinnerSide: "B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", side)

	_, err = r.Resolve("does-not-exist", provider.Outcome{}, nil)
	assert.ErrorIs(t, err, ErrUnknownFormula)
}

func TestRegistryRegisterCustom(t *testing.T) {
	r := NewRegistry()
	r.Register("always_a", func(provider.Outcome, json.RawMessage) (string, error) {
		return "A", nil
	})

	side, err := r.Resolve("always_a", provider.Outcome{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", side)
}
