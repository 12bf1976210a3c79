// Package escalate decides how quickly repeat notifications follow an
// unanswered reminder and how urgent they should look.
package escalate

// multipliers is indexed by attempt number (how many notifications have
// already been sent). Attempts past the table reuse the last entry.
var multipliers = [...]int{1, 1, 2, 3, 5, 6}

// MaxDelayMinutes caps the follow-up gap regardless of base interval.
const MaxDelayMinutes = 30

// NextDelayMinutes returns the gap in minutes before the next follow-up
// notification, given how many have already been sent and the reminder's
// base interval.
func NextDelayMinutes(attempt, baseMinutes int) int {
	if attempt < 0 {
		attempt = 0
	}
	if baseMinutes < 1 {
		baseMinutes = 1
	}
	idx := attempt
	if idx >= len(multipliers) {
		idx = len(multipliers) - 1
	}
	delay := baseMinutes * multipliers[idx]
	if delay > MaxDelayMinutes {
		delay = MaxDelayMinutes
	}
	return delay
}

// Urgency is the escalation band of a notification.
type Urgency int

const (
	Low Urgency = iota
	Medium
	High
)

// UrgencyFor maps sent-notification count to a band: the first two
// notifications are calm, the next two warn, everything after shouts.
func UrgencyFor(attempt int) Urgency {
	switch {
	case attempt <= 1:
		return Low
	case attempt <= 3:
		return Medium
	default:
		return High
	}
}

func (u Urgency) String() string {
	switch u {
	case Low:
		return "low"
	case Medium:
		return "medium"
	default:
		return "high"
	}
}

// Icon returns the emoji prefixed to notification text for this band.
func (u Urgency) Icon() string {
	switch u {
	case Low:
		return "🔔"
	case Medium:
		return "⚠️"
	default:
		return "🚨"
	}
}
