// Package testutil provides testing utilities for trisum.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random integer rows and for computing
// the exact set of matching triples with a brute-force triple loop.
//
// # Random Row Generation
//
//	rng := testutil.NewRNG(seed)
//	a := rng.Rows(100, 40, 0, 60) // 100 rows, 40 columns, values in [0, 60]
//
// # Ground Truth
//
//	want := testutil.BruteForce(a, b, c, target) // sorted (a, b, c) index triples
package testutil
