// Package trisum finds every triple of rows (a ∈ A, b ∈ B, c ∈ C) whose
// column-wise sum equals a target vector Λ.
//
// The naive triple loop costs O(|A|·|B|·|C|). trisum uses a hash-based
// meet-in-the-middle instead: one side of the equation is materialized as an
// exact-keyed hash structure and the other side probes it, for
// O(|A|·|B| + |C|) expected work.
//
// # Strategies
//
//	StrategyIndex       build pair-sum index over A×B, probe with C (default)
//	StrategyDifference  build difference set Λ ⊖ c over C, probe with A×B
//	StrategyFiltered    build difference set, then an index of only the
//	                    pairs whose sum is in it, probe with C
//
// All strategies produce the same multiset of triples for the same inputs,
// regardless of the worker count.
//
// # Quick Start
//
//	cfg := trisum.DefaultConfig()
//	cfg.Columns, cfg.Lambda = 2, 5
//
//	s, _ := trisum.New(cfg, trisum.WithLogger(trisum.NewTextLogger(slog.LevelInfo)))
//	res, _ := s.Solve(ctx, trisum.Datasets{A: a, B: b, C: c})
//	for _, t := range res.Triples {
//	    fmt.Println(t)
//	}
//
// # Execution Model
//
// Each phase partitions its input into Config.Workers contiguous chunks and
// runs one goroutine per non-empty chunk. Build workers return private
// partial structures which the coordinator merges; the merged structure is
// read-only for the whole probe phase. Any worker failure aborts the run
// with a *WorkerError and no partial results.
//
// # Checkpoints
//
// With WithCheckpointStore the build structure is saved in the background
// while probing proceeds, and WithResume picks a saved structure up again
// when it was built from the same inputs:
//
//	store := checkpoint.NewStore(blobstore.NewLocalStore("./checkpoints"))
//	s, _ := trisum.New(cfg,
//	    trisum.WithCheckpointStore(store),
//	    trisum.WithResume(checkpoint.LatestName),
//	)
//
// Checkpoint failures are logged and never fail a run.
package trisum
