package dispatch

import (
	"strconv"

	"remindbot/pkg/tgui"
)

// ResponseKind says which prompt button the user pressed.
type ResponseKind uint8

const (
	ResponseConfirm ResponseKind = iota + 1
	ResponseSnooze
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseConfirm:
		return "confirm"
	case ResponseSnooze:
		return "snooze"
	default:
		return "unknown"
	}
}

// Response is a parsed inline-button reply to a reminder prompt.
type Response struct {
	Kind       ResponseKind
	ReminderID int64
}

// ResponseData builds the callback payload for a prompt button,
// e.g. "confirm_42".
func ResponseData(kind ResponseKind, reminderID int64) string {
	return tgui.Data(kind.String(), strconv.FormatInt(reminderID, 10))
}

// ParseResponse parses callback data of the form "<action>_<id>". Unknown
// actions and malformed IDs report ok=false instead of an error: foreign
// callback payloads are routine, not exceptional.
func ParseResponse(data string) (Response, bool) {
	action, rest := tgui.Split(data)
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return Response{}, false
	}
	switch action {
	case "confirm":
		return Response{Kind: ResponseConfirm, ReminderID: id}, true
	case "snooze":
		return Response{Kind: ResponseSnooze, ReminderID: id}, true
	default:
		return Response{}, false
	}
}
