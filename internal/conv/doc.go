// Package conv provides checked integer conversions for values decoded from
// checkpoints and for row positions stored in 32-bit bitmaps.
//
// Conversions that are safe by construction (loop indices, bounded counters)
// use direct casts instead.
package conv
