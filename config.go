package trisum

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hupe1980/trisum/row"
)

// Strategy selects how the matching engine splits work between build and probe.
type Strategy uint8

const (
	// StrategyIndex builds a pair-sum index over A×B (A partitioned, B
	// replicated) and probes it with chunks of C.
	StrategyIndex Strategy = iota
	// StrategyDifference builds the difference set Λ ⊖ c over C and probes it
	// with chunks of A against all of B.
	StrategyDifference
	// StrategyFiltered builds the difference set first, then a pair-sum index
	// holding only pairs whose sum is in it, and probes that index with C.
	StrategyFiltered
)

var strategyNames = [...]string{
	StrategyIndex:      "index",
	StrategyDifference: "difference",
	StrategyFiltered:   "filtered",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// ParseStrategy parses a strategy name as produced by String.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(name, n) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if int(s) >= len(strategyNames) {
		return nil, fmt.Errorf("%w: unknown strategy %d", ErrInvalidConfig, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Config is the immutable configuration of one matching run.
type Config struct {
	// Columns is the width of every row in A, B and C.
	Columns int `json:"columns"`

	// Lambda is the per-column target sum. The target vector Λ repeats it
	// across all columns unless TargetVector is set.
	Lambda int64 `json:"lambda"`

	// TargetVector is an explicit target. Its length must equal Columns.
	TargetVector row.Vector `json:"target,omitempty"`

	// Workers is the number of chunks per phase. Values below one degrade to
	// one worker; values above the row count leave surplus workers idle.
	Workers int `json:"workers"`

	// Strategy selects the build/probe split.
	Strategy Strategy `json:"strategy"`
}

// DefaultConfig returns the configuration used by the reference datasets:
// 40 columns summing to 180, one worker per CPU, index-then-probe.
func DefaultConfig() Config {
	return Config{
		Columns:  40,
		Lambda:   180,
		Workers:  runtime.NumCPU(),
		Strategy: StrategyIndex,
	}
}

// Target returns the target vector Λ.
func (c Config) Target() row.Vector {
	if c.TargetVector != nil {
		return c.TargetVector.Clone()
	}
	return row.Fill(c.Columns, c.Lambda)
}

// Validate reports whether the configuration can drive a run.
func (c Config) Validate() error {
	if c.Columns <= 0 {
		return fmt.Errorf("%w: columns must be positive, got %d", ErrInvalidConfig, c.Columns)
	}
	if c.TargetVector != nil {
		if err := row.CheckLen(c.TargetVector, c.Columns); err != nil {
			return fmt.Errorf("%w: target: %w", ErrInvalidConfig, err)
		}
	}
	if int(c.Strategy) >= len(strategyNames) {
		return fmt.Errorf("%w: unknown strategy %d", ErrInvalidConfig, uint8(c.Strategy))
	}
	return nil
}
