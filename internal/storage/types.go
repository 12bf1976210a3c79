package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
// Callers must branch on it instead of treating every error as fatal.
var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process maps, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	StatusActive    ReminderStatus = "active"
	StatusCompleted ReminderStatus = "completed"
	StatusSuspended ReminderStatus = "suspended"
	StatusCancelled ReminderStatus = "cancelled"

	// StatusWaitingConfirm is reserved for a two-step confirm flow.
	// No transition writes it today.
	StatusWaitingConfirm ReminderStatus = "waiting_confirmation"
)

// Reminder is a stored reminder row.
//
// Times:
//   - ScheduleTime is a wall-clock "HH:MM" string in the engine timezone.
//   - NextNotification is an absolute UTC instant.
type Reminder struct {
	ID     int64
	UserID int64
	// ChatID is where notifications are delivered. For private chats it
	// equals UserID.
	ChatID int64

	Text         string
	ScheduleTime string
	// IntervalDays is the repeat period in days. 0 means one-shot.
	IntervalDays int

	Status           ReminderStatus
	NextNotification time.Time

	NotificationCount int
	MaxNotifications  int
	NotifyIntervalMin int

	// LastMessageID is the Telegram id of the most recent notification
	// message, 0 when none is outstanding.
	LastMessageID int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a known Telegram user.
type User struct {
	ID            int64
	Username      string
	FirstName     string
	IsBlocked     bool
	IsWhitelisted bool
	// Preferences is free-form JSON. The bot stores it verbatim for the
	// admin surface and never interprets it.
	Preferences string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotificationEntry records one delivered reminder notification and,
// once the user taps a button, their response.
type NotificationEntry struct {
	ID         int64
	ReminderID int64
	MessageID  int
	SentAt     time.Time
	Response   string    // "", "confirm", "snooze"
	RespondedAt time.Time // zero until a response arrives
}
