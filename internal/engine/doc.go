package engine

// Package engine owns the in-process reminder timers.
//
// It arms one-shot jobs keyed per reminder, fires them through a bounded
// worker pool, rebuilds the schedule from storage on startup, and runs the
// periodic reconcile/prune sweeps. What a fire *means* is decided by the
// injected FireHandler; the engine itself never renders or sends anything.
