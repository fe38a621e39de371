package trisum

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting run metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordPhase is called after each phase with the number of workers
	// that ran and the items the phase produced (keys, pairs or matches).
	RecordPhase(phase Phase, workers, items int, duration time.Duration, err error)

	// RecordMatches is called once per successful run.
	RecordMatches(count int)

	// RecordCheckpoint is called after each checkpoint save attempt.
	RecordCheckpoint(bytes int64, duration time.Duration, err error)

	// RecordResume is called when a build structure is taken from a checkpoint.
	RecordResume()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPhase(Phase, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMatches(int)                                 {}
func (NoopMetricsCollector) RecordCheckpoint(int64, time.Duration, error)      {}
func (NoopMetricsCollector) RecordResume()                                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	Runs             atomic.Int64
	Matches          atomic.Int64
	CheckpointSaves  atomic.Int64
	CheckpointErrors atomic.Int64
	CheckpointBytes  atomic.Int64
	Resumes          atomic.Int64

	mu     sync.Mutex
	phases map[Phase]*phaseStats
}

type phaseStats struct {
	count  int64
	errors int64
	items  int64
	nanos  int64
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(phase Phase, _ int, items int, duration time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phases == nil {
		b.phases = make(map[Phase]*phaseStats)
	}
	ps, ok := b.phases[phase]
	if !ok {
		ps = &phaseStats{}
		b.phases[phase] = ps
	}
	ps.count++
	ps.items += int64(items)
	ps.nanos += duration.Nanoseconds()
	if err != nil {
		ps.errors++
	}
}

// RecordMatches implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatches(count int) {
	b.Runs.Add(1)
	b.Matches.Add(int64(count))
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(bytes int64, _ time.Duration, err error) {
	if err != nil {
		b.CheckpointErrors.Add(1)
		return
	}
	b.CheckpointSaves.Add(1)
	b.CheckpointBytes.Add(bytes)
}

// RecordResume implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResume() {
	b.Resumes.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		Runs:             b.Runs.Load(),
		Matches:          b.Matches.Load(),
		CheckpointSaves:  b.CheckpointSaves.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		CheckpointBytes:  b.CheckpointBytes.Load(),
		Resumes:          b.Resumes.Load(),
		Phases:           make(map[Phase]PhaseStats),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for p, ps := range b.phases {
		var avg int64
		if ps.count > 0 {
			avg = ps.nanos / ps.count
		}
		s.Phases[p] = PhaseStats{
			Count:    ps.count,
			Errors:   ps.errors,
			Items:    ps.items,
			AvgNanos: avg,
		}
	}
	return s
}

// PhaseStats aggregates the runs of one phase.
type PhaseStats struct {
	Count    int64 `json:"count"`
	Errors   int64 `json:"errors"`
	Items    int64 `json:"items"`
	AvgNanos int64 `json:"avg_nanos"`
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Runs             int64                `json:"runs"`
	Matches          int64                `json:"matches"`
	CheckpointSaves  int64                `json:"checkpoint_saves"`
	CheckpointErrors int64                `json:"checkpoint_errors"`
	CheckpointBytes  int64                `json:"checkpoint_bytes"`
	Resumes          int64                `json:"resumes"`
	Phases           map[Phase]PhaseStats `json:"phases"`
}
