package storage

// Package storage persists reminders, users, and notification history.
//
// It currently supports:
//   - "sqlite": the default driver (single writer, WAL)
//   - "memory": map-backed driver for tests and throwaway runs
