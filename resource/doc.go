// Package resource bounds the resources a solver run may use.
//
// A Controller manages three budgets:
//
//   - Memory: fail-fast reservations for index builds
//   - Background: slots for checkpoint saves running beside the probe phase
//   - IO: a token bucket shared by checkpoint readers and writers
//
// Memory reservations never block:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(estimate); err != nil {
//	    return err // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(estimate)
//
// IO limiting wraps any stream:
//
//	w := resource.NewRateLimitedWriter(ctx, blob, rc)
//
// All methods are safe for concurrent use, and a nil *Controller is a valid
// unlimited controller.
package resource
