package reminders

import "errors"

var (
	// Validation failures for create input.
	ErrEmptyText           = errors.New("reminder text is empty")
	ErrTextTooLong         = errors.New("reminder text exceeds 500 characters")
	ErrBadTime             = errors.New("schedule time must be HH:MM")
	ErrBadInterval         = errors.New("interval days must be between 0 and 365")
	ErrBadNotifyInterval   = errors.New("notify interval must be between 1 and 60 minutes")
	ErrBadMaxNotifications = errors.New("max notifications must be between 1 and 50")

	// ErrNotOwner is returned when a user acts on a reminder that belongs
	// to someone else. Callers should present it the same way as a missing
	// reminder to avoid leaking existence.
	ErrNotOwner = errors.New("reminder belongs to another user")

	// ErrNotActive is returned by Confirm when the reminder is no longer
	// active, typically because it was already confirmed or deleted.
	ErrNotActive = errors.New("reminder is not active")

	// ErrNotSuspended is returned by Reactivate for reminders that are not
	// in the suspended state.
	ErrNotSuspended = errors.New("reminder is not suspended")
)
