package reminders

import "time"

// Limits mirrored by the conversation prompts in the Telegram router; keep
// the two in sync when changing any of them.
const (
	maxTextRunes    = 500
	maxIntervalDays = 365
	maxNotifyMin    = 60
	maxAttempts     = 50
)

// Settings are the tunable lifecycle knobs. Zero values select the
// documented defaults, so an empty struct is usable as-is.
type Settings struct {
	// Location resolves wall-clock schedule times. Default local.
	Location *time.Location
	// NotifyIntervalMin is the base follow-up interval applied when a
	// create request does not pick one. Default 5.
	NotifyIntervalMin int
	// MaxNotifications is the default attempt cap per occurrence. Default 10.
	MaxNotifications int
	// SnoozeBy is how far a snooze pushes the due time when the caller
	// does not say. Default 5m.
	SnoozeBy time.Duration
}

func (s *Settings) applyDefaults() {
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.NotifyIntervalMin <= 0 {
		s.NotifyIntervalMin = 5
	}
	if s.MaxNotifications <= 0 {
		s.MaxNotifications = 10
	}
	if s.SnoozeBy <= 0 {
		s.SnoozeBy = 5 * time.Minute
	}
}

// CreateInput is a create request before validation. ChatID may be left 0
// for private chats; it then defaults to the user id.
type CreateInput struct {
	UserID int64
	ChatID int64

	Text         string
	ScheduleTime string
	IntervalDays int

	// NotifyIntervalMin and MaxNotifications fall back to Settings when 0.
	NotifyIntervalMin int
	MaxNotifications  int
}
