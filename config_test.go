package trisum

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/trisum/row"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero columns", Config{Columns: 0}},
		{"negative columns", Config{Columns: -3}},
		{"target width", Config{Columns: 2, TargetVector: row.New(1, 2, 3)}},
		{"unknown strategy", Config{Columns: 2, Strategy: Strategy(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.cfg.Validate(), ErrInvalidConfig)
			_, err := New(tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Target(t *testing.T) {
	cfg := Config{Columns: 3, Lambda: 7}
	assert.Equal(t, row.New(7, 7, 7), cfg.Target())

	cfg.TargetVector = row.New(1, 2, 3)
	got := cfg.Target()
	assert.Equal(t, row.New(1, 2, 3), got)
	got[0] = 99
	assert.Equal(t, int64(1), cfg.TargetVector[0], "Target returns a copy")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 40, cfg.Columns)
	assert.Equal(t, int64(180), cfg.Lambda)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, StrategyIndex, cfg.Strategy)
}

func TestStrategy_Text(t *testing.T) {
	for _, s := range allStrategies {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	s, err := ParseStrategy("FILTERED")
	require.NoError(t, err)
	assert.Equal(t, StrategyFiltered, s)

	_, err = ParseStrategy("bogus")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestConfig_JSON(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"columns":2,"lambda":5,"workers":4,"strategy":"difference"}`), &cfg))
	assert.Equal(t, Config{Columns: 2, Lambda: 5, Workers: 4, Strategy: StrategyDifference}, cfg)

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":2,"lambda":5,"workers":4,"strategy":"difference"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"strategy":"nope"}`), &cfg))
}
