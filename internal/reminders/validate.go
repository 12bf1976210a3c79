package reminders

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseClock parses a wall-clock "HH:MM" string. The hour may be written
// with one digit ("8:30"); the minute must have exactly two. Returns
// ErrBadTime for anything else.
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, ErrBadTime
	}
	for _, c := range h + m {
		if c < '0' || c > '9' {
			return 0, 0, ErrBadTime
		}
	}
	hour, _ = strconv.Atoi(h)
	minute, _ = strconv.Atoi(m)
	if hour > 23 || minute > 59 {
		return 0, 0, ErrBadTime
	}
	return hour, minute, nil
}

// normalize trims, validates and fills defaults in place. The schedule time
// is kept exactly as entered; only its shape is checked here.
func (in *CreateInput) normalize(set Settings) error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(in.Text) > maxTextRunes {
		return ErrTextTooLong
	}

	in.ScheduleTime = strings.TrimSpace(in.ScheduleTime)
	if _, _, err := ParseClock(in.ScheduleTime); err != nil {
		return err
	}

	if in.IntervalDays < 0 || in.IntervalDays > maxIntervalDays {
		return ErrBadInterval
	}

	if in.NotifyIntervalMin == 0 {
		in.NotifyIntervalMin = set.NotifyIntervalMin
	}
	if in.NotifyIntervalMin < 1 || in.NotifyIntervalMin > maxNotifyMin {
		return ErrBadNotifyInterval
	}

	if in.MaxNotifications == 0 {
		in.MaxNotifications = set.MaxNotifications
	}
	if in.MaxNotifications < 1 || in.MaxNotifications > maxAttempts {
		return ErrBadMaxNotifications
	}

	if in.ChatID == 0 {
		in.ChatID = in.UserID
	}
	return nil
}
