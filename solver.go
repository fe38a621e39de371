package trisum

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/trisum/checkpoint"
	"github.com/hupe1980/trisum/diffset"
	"github.com/hupe1980/trisum/match"
	"github.com/hupe1980/trisum/pairindex"
	"github.com/hupe1980/trisum/partition"
	"github.com/hupe1980/trisum/resource"
	"github.com/hupe1980/trisum/row"
	"golang.org/x/sync/errgroup"
)

// Estimated resident bytes per stored pair and per difference-set key.
// Used for memory budget reservations only.
const (
	pairBytes = 96
	diffBytes = 128
)

// Datasets are the three inputs of a run. Rows are shared read-only between
// workers and are never copied or mutated.
type Datasets struct {
	A []row.Vector
	B []row.Vector
	C []row.Vector
}

func (d Datasets) validate(columns int) error {
	for _, set := range []struct {
		name string
		rows []row.Vector
	}{{"A", d.A}, {"B", d.B}, {"C", d.C}} {
		for i, r := range set.rows {
			if len(r) != columns {
				return &ErrDimensionMismatch{Dataset: set.name, Row: i, Expected: columns, Actual: len(r)}
			}
		}
	}
	return nil
}

// Stats describes the work of one run.
type Stats struct {
	Build time.Duration `json:"build"`
	Merge time.Duration `json:"merge"`
	Probe time.Duration `json:"probe"`
	// Keys is the number of distinct keys in the probed structure.
	Keys int `json:"keys"`
	// Pairs is the number of stored pairs when the probed structure is a pair index.
	Pairs int `json:"pairs"`
}

// Result is the outcome of a successful run.
type Result struct {
	// Triples holds every match, concatenated in probe chunk order.
	// Duplicate input rows yield duplicate triples.
	Triples []match.Triple

	Strategy Strategy
	// Workers is the number of non-empty build chunks.
	Workers int
	// Resumed reports whether the build structure came from a checkpoint.
	Resumed bool
	// Checkpoint is the saved checkpoint, if any.
	Checkpoint *checkpoint.Handle
	// CheckpointErr is the error of a failed checkpoint save. It never fails the run.
	CheckpointErr error

	Stats Stats
}

// Solver finds all triples (a, b, c) with a ⊕ b ⊕ c = Λ.
//
// A Solver is safe for concurrent use; each Solve call is independent.
type Solver struct {
	cfg    Config
	opts   options
	target row.Vector

	// hook runs before each worker's work. Tests use it to inject failures.
	hook func(phase Phase, chunk int) error
}

// New creates a Solver for cfg.
func New(cfg Config, optFns ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TargetVector != nil {
		cfg.TargetVector = cfg.TargetVector.Clone()
	}
	return &Solver{
		cfg:    cfg,
		opts:   applyOptions(optFns),
		target: cfg.Target(),
	}, nil
}

// Config returns the run configuration.
func (s *Solver) Config() Config {
	return s.cfg
}

// Solve runs the configured strategy over ds.
//
// Every build worker finishes and the coordinator merges their partial
// structures before any probe worker starts. The merged structure is
// read-only during the probe phase. The first worker failure cancels the
// run and is returned as a *WorkerError; no triples are returned or written
// in that case.
func (s *Solver) Solve(ctx context.Context, ds Datasets) (*Result, error) {
	if err := ds.validate(s.cfg.Columns); err != nil {
		return nil, err
	}

	r := &run{
		Solver: s,
		ds:     ds,
		log:    s.opts.logger.WithStrategy(s.cfg.Strategy),
		res:    &Result{Strategy: s.cfg.Strategy},
	}
	defer r.releaseMemory()

	var (
		chunks [][]match.Triple
		err    error
	)
	switch s.cfg.Strategy {
	case StrategyIndex:
		chunks, err = r.indexThenProbe(ctx)
	case StrategyDifference:
		chunks, err = r.differenceThenProbe(ctx)
	case StrategyFiltered:
		chunks, err = r.filteredThenProbe(ctx)
	}

	r.saves.Wait()
	if err != nil {
		return nil, err
	}

	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	r.res.Triples = make([]match.Triple, 0, n)
	for _, c := range chunks {
		r.res.Triples = append(r.res.Triples, c...)
	}
	if s.opts.sorted {
		match.Sort(r.res.Triples)
	}

	// One batch per run: SQL sinks commit it in a single transaction.
	if s.opts.sink != nil {
		if err := s.opts.sink.Write(ctx, r.res.Triples); err != nil {
			return nil, fmt.Errorf("write results: %w", err)
		}
	}

	s.opts.metricsCollector.RecordMatches(n)
	r.log.InfoContext(ctx, "run completed", "matches", n, "resumed", r.res.Resumed)
	return r.res, nil
}

// run holds the state of one Solve call.
type run struct {
	*Solver
	ds  Datasets
	log *Logger
	res *Result

	reserved int64
	saves    sync.WaitGroup
	saveMu   sync.Mutex
}

func (r *run) rc() *resource.Controller {
	return r.opts.resource
}

func (r *run) reserve(bytes int64) error {
	if err := r.rc().AcquireMemory(bytes); err != nil {
		return fmt.Errorf("%w: need %d bytes, limit %d, in use %d: %w",
			ErrMemoryBudget, bytes, r.rc().MemoryLimit(), r.rc().MemoryUsage(), err)
	}
	r.reserved += bytes
	return nil
}

func (r *run) releaseMemory() {
	r.rc().ReleaseMemory(r.reserved)
	r.reserved = 0
}

func (r *run) indexThenProbe(ctx context.Context) ([][]match.Triple, error) {
	if err := r.reserve(int64(len(r.ds.A)) * int64(len(r.ds.B)) * pairBytes); err != nil {
		return nil, err
	}

	meta := checkpoint.Meta{
		Label:       r.opts.label,
		Columns:     r.cfg.Columns,
		Fingerprint: row.Fingerprint(nil, r.ds.A, r.ds.B),
	}
	build := func(ctx context.Context) (*pairindex.Index, error) {
		return r.buildIndex(ctx, nil)
	}

	ix, err := resumeOrBuild(ctx, r, meta, r.storeIndexOrBuild, build)
	if err != nil {
		return nil, err
	}
	r.res.Stats.Keys, r.res.Stats.Pairs = ix.Len(), ix.Pairs()

	return r.probeIndex(ctx, ix)
}

func (r *run) differenceThenProbe(ctx context.Context) ([][]match.Triple, error) {
	diffs, err := r.diffs(ctx)
	if err != nil {
		return nil, err
	}
	r.res.Stats.Keys = diffs.Len()

	start := time.Now()
	chunks, err := fanOut(ctx, r, PhaseProbe, len(r.ds.A), func(ctx context.Context, rg partition.Range) ([]match.Triple, error) {
		return match.ProbeDiffs(ctx, diffs, r.ds.A[rg.Start:rg.End], rg.Start, r.ds.B, r.ds.C)
	})
	r.res.Stats.Probe = time.Since(start)
	return chunks, err
}

func (r *run) filteredThenProbe(ctx context.Context) ([][]match.Triple, error) {
	diffs, err := r.diffs(ctx)
	if err != nil {
		return nil, err
	}

	ix, err := r.buildIndex(ctx, diffs.Contains)
	if err != nil {
		return nil, err
	}
	if err := r.reserve(int64(ix.Pairs()) * pairBytes); err != nil {
		return nil, err
	}
	r.res.Stats.Keys, r.res.Stats.Pairs = ix.Len(), ix.Pairs()

	return r.probeIndex(ctx, ix)
}

// diffs resumes or builds the difference set and schedules its checkpoint.
func (r *run) diffs(ctx context.Context) (*diffset.Set, error) {
	if err := r.reserve(int64(len(r.ds.C)) * diffBytes); err != nil {
		return nil, err
	}

	meta := checkpoint.Meta{
		Label:       r.opts.label,
		Columns:     r.cfg.Columns,
		Fingerprint: row.Fingerprint(r.target, r.ds.C),
	}
	return resumeOrBuild(ctx, r, meta, r.storeDiffsOrBuild, r.buildDiffs)
}

func (r *run) storeIndexOrBuild(ctx context.Context, meta checkpoint.Meta, build func(context.Context) (*pairindex.Index, error)) (*pairindex.Index, bool, error) {
	return r.opts.store.IndexOrBuild(ctx, r.opts.resume, meta, build)
}

func (r *run) storeDiffsOrBuild(ctx context.Context, meta checkpoint.Meta, build func(context.Context) (*diffset.Set, error)) (*diffset.Set, bool, error) {
	return r.opts.store.DiffsOrBuild(ctx, r.opts.resume, meta, build)
}

// resumeOrBuild takes the structure from a checkpoint when one is configured
// and usable, and otherwise builds it and saves it in the background.
func resumeOrBuild[T any](
	ctx context.Context,
	r *run,
	meta checkpoint.Meta,
	orBuild func(context.Context, checkpoint.Meta, func(context.Context) (T, error)) (T, bool, error),
	build func(context.Context) (T, error),
) (T, error) {
	if r.opts.store == nil {
		return build(ctx)
	}

	v, resumed, err := orBuild(ctx, meta, build)
	if err != nil {
		return v, err
	}
	if r.opts.resume != "" {
		r.log.LogResume(ctx, r.opts.resume, resumed)
	}
	if resumed {
		r.res.Resumed = true
		r.opts.metricsCollector.RecordResume()
		return v, nil
	}

	r.saveAsync(ctx, v, meta)
	return v, nil
}

// saveAsync persists structure while the probe phase reads it. Solve waits for
// the save before returning. Failures are recorded, never returned.
func (r *run) saveAsync(ctx context.Context, structure any, meta checkpoint.Meta) {
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()

		start := time.Now()
		var (
			h   checkpoint.Handle
			err error
		)
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("checkpoint save panicked: %v", p)
				}
			}()
			if !r.rc().TryAcquireBackground() {
				r.log.DebugContext(ctx, "waiting for a background slot", "kind", fmt.Sprintf("%T", structure))
				if err = r.rc().AcquireBackground(ctx); err != nil {
					return
				}
			}
			defer r.rc().ReleaseBackground()
			h, err = r.opts.store.Save(ctx, structure, meta)
		}()

		var size int64
		if err == nil {
			size = h.StoredSize + int64(h.Size())
		}
		r.opts.metricsCollector.RecordCheckpoint(size, time.Since(start), err)
		r.log.LogCheckpoint(ctx, h.Name, size, err)

		r.saveMu.Lock()
		defer r.saveMu.Unlock()
		if err != nil {
			r.res.CheckpointErr = err
			return
		}
		r.res.Checkpoint = &h
	}()
}

// buildIndex builds per-chunk pair indexes over A and merges them.
// A nil keep stores every pair.
func (r *run) buildIndex(ctx context.Context, keep func(row.Key) bool) (*pairindex.Index, error) {
	start := time.Now()
	parts, err := fanOut(ctx, r, PhaseBuild, len(r.ds.A), func(ctx context.Context, rg partition.Range) (*pairindex.Index, error) {
		chunk := r.ds.A[rg.Start:rg.End]
		if keep != nil {
			return pairindex.BuildFiltered(ctx, chunk, rg.Start, r.ds.B, keep)
		}
		return pairindex.Build(ctx, chunk, rg.Start, r.ds.B)
	})
	r.res.Stats.Build += time.Since(start)
	r.res.Workers = len(parts)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	ix, err := pairindex.Merge(ctx, parts...)
	d := time.Since(start)
	r.res.Stats.Merge += d

	items := 0
	if ix != nil {
		items = ix.Pairs()
	}
	r.log.LogPhase(ctx, PhaseMerge, len(parts), items, d, err)
	r.opts.metricsCollector.RecordPhase(PhaseMerge, len(parts), items, d, err)
	if err != nil {
		return nil, fmt.Errorf("merge pair index: %w", err)
	}
	return ix, nil
}

// buildDiffs builds per-chunk difference sets over C and merges them.
func (r *run) buildDiffs(ctx context.Context) (*diffset.Set, error) {
	start := time.Now()
	parts, err := fanOut(ctx, r, PhaseBuild, len(r.ds.C), func(ctx context.Context, rg partition.Range) (*diffset.Set, error) {
		return diffset.Build(ctx, r.ds.C[rg.Start:rg.End], rg.Start, r.target)
	})
	r.res.Stats.Build += time.Since(start)
	r.res.Workers = len(parts)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	diffs := diffset.Merge(parts...)
	d := time.Since(start)
	r.res.Stats.Merge += d
	r.log.LogPhase(ctx, PhaseMerge, len(parts), diffs.Len(), d, nil)
	r.opts.metricsCollector.RecordPhase(PhaseMerge, len(parts), diffs.Len(), d, nil)
	return diffs, nil
}

func (r *run) probeIndex(ctx context.Context, ix *pairindex.Index) ([][]match.Triple, error) {
	start := time.Now()
	chunks, err := fanOut(ctx, r, PhaseProbe, len(r.ds.C), func(ctx context.Context, rg partition.Range) ([]match.Triple, error) {
		return match.ProbeIndex(ctx, ix, r.ds.C[rg.Start:rg.End], rg.Start, r.target)
	})
	r.res.Stats.Probe = time.Since(start)
	return chunks, err
}

// fanOut runs fn once per non-empty chunk of total rows, one goroutine per
// chunk, and returns the results in chunk order. The first failure cancels
// the remaining workers; panics are recovered into a *WorkerError.
func fanOut[T any](
	ctx context.Context,
	r *run,
	phase Phase,
	total int,
	fn func(context.Context, partition.Range) (T, error),
) ([]T, error) {
	start := time.Now()
	ranges := partition.NonEmpty(total, r.cfg.Workers)
	out := make([]T, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for i, rg := range ranges {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = &WorkerError{Phase: phase, Chunk: i, Panic: true, Stack: debug.Stack(), cause: fmt.Errorf("%v", p)}
				}
			}()

			if r.hook != nil {
				if err := r.hook(phase, i); err != nil {
					return &WorkerError{Phase: phase, Chunk: i, cause: err}
				}
			}

			v, err := fn(gctx, rg)
			if err != nil {
				return &WorkerError{Phase: phase, Chunk: i, cause: err}
			}
			out[i] = v
			r.log.WithPhase(phase).WithWorker(i).DebugContext(gctx, "worker finished", "rows", rg.Len())
			return nil
		})
	}
	err := g.Wait()

	d := time.Since(start)
	r.log.LogPhase(ctx, phase, len(ranges), total, d, err)
	r.opts.metricsCollector.RecordPhase(phase, len(ranges), total, d, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
