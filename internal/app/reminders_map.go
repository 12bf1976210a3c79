package app

import (
	"fmt"
	"time"

	"remindbot/internal/reminders"
)

// mapReminderSettings converts the per-reminder defaults. loc is the engine
// timezone so schedule parsing and firing agree on what "14:30" means.
func mapReminderSettings(cfg *Config, loc *time.Location) (reminders.Settings, error) {
	out := reminders.Settings{Location: loc}
	if cfg == nil {
		return out, nil
	}
	rc := cfg.Reminders

	if rc.DefaultIntervalMinutes < 0 {
		return out, fmt.Errorf("reminders.default_interval_minutes must be >= 0")
	}
	if rc.DefaultMaxNotifications < 0 {
		return out, fmt.Errorf("reminders.default_max_notifications must be >= 0")
	}
	out.NotifyIntervalMin = rc.DefaultIntervalMinutes
	out.MaxNotifications = rc.DefaultMaxNotifications

	var err error
	out.SnoozeBy, err = parseDurationOrDefault("reminders.snooze_by", rc.SnoozeBy, 0)
	if err != nil {
		return out, err
	}
	return out, nil
}
