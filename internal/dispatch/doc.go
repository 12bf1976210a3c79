// Package dispatch is the outbound message pipeline.
//
// Reminder prompts and final warnings are sent synchronously because the
// fire flow needs the message ID and the send outcome before it decides
// what to do with the reminder row. Broadcasts go through a bounded queue
// drained by a small worker pool. Both paths share one rate limiter, retry
// with backoff, and a per-chat circuit breaker.
package dispatch
