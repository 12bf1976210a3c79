// Package reminders implements the reminder lifecycle: create, list, the
// fire flow with escalating follow-ups, confirm/snooze/delete responses,
// and admin reactivation.
//
// The service is the engine's fire handler. A fire carries only the
// reminder ID; the handler re-reads the row and does nothing unless the
// reminder is still active, so stale timers can never resurrect a
// completed or deleted reminder.
package reminders
