package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence API used by the reminder and user services.
// Every implementation must return ErrNotFound for missing rows.
type Store interface {
	// Reminders.
	CreateReminder(ctx context.Context, r *Reminder) (int64, error)
	GetReminder(ctx context.Context, id int64) (*Reminder, error)
	ListRemindersByUser(ctx context.Context, userID int64, onlyActive bool) ([]*Reminder, error)
	ListActiveReminders(ctx context.Context) ([]*Reminder, error)
	UpdateReminder(ctx context.Context, r *Reminder) error
	UpdateReminderStatus(ctx context.Context, id int64, status ReminderStatus) error
	UpdateLastMessageID(ctx context.Context, id int64, messageID int) error
	UpdateNextNotification(ctx context.Context, id int64, next time.Time) error
	// IncrementNotificationCount bumps the counter and returns the new value.
	IncrementNotificationCount(ctx context.Context, id int64) (int, error)
	DeleteReminder(ctx context.Context, id int64) error
	CountRemindersByStatus(ctx context.Context) (map[ReminderStatus]int, error)

	// Users.
	UpsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SetUserBlocked(ctx context.Context, id int64, blocked bool) error
	SetUserWhitelisted(ctx context.Context, id int64, listed bool) error
	SetUserPreferences(ctx context.Context, id int64, prefs string) error

	// Notification history.
	AppendNotificationLog(ctx context.Context, e *NotificationEntry) (int64, error)
	SetNotificationResponse(ctx context.Context, reminderID int64, messageID int, response string, at time.Time) error
	ListNotificationLog(ctx context.Context, reminderID int64, limit int) ([]*NotificationEntry, error)
	PruneNotificationLog(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
//
// Unlike most sections there is no disabled state: reminders must survive
// restarts, so an empty driver falls back to sqlite rather than nil.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return openMemory(log), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
