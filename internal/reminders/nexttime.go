package reminders

import "time"

// NextOccurrence resolves a wall-clock schedule against now in loc and
// returns the next occurrence as a UTC instant.
//
// Today's slot is used while it is still ahead; once it has passed (or is
// exactly now) the slot advances by the repeat interval. One-shot reminders
// (intervalDays 0) advance by a single day, which lands the first fire
// tomorrow when the chosen time is already behind.
func NextOccurrence(now time.Time, clock string, intervalDays int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		days := intervalDays
		if days < 1 {
			days = 1
		}
		// AddDate keeps the wall-clock time across DST boundaries.
		candidate = candidate.AddDate(0, 0, days)
	}
	return candidate.UTC(), nil
}
