package tgui

import "strings"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// The whole "action_payload" string has to fit.
const MaxCallbackDataLen = 64

// Data formats inline callback data as "action_payload": Data("confirm", "42")
// yields "confirm_42". Actions must not contain underscores or Split hands
// part of the action back as payload; payloads are free-form. An empty
// payload yields the bare action.
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return action
	}
	return action + "_" + payload
}

// Split breaks callback data built by Data into action and payload.
// Data without a separator is all action.
func Split(data string) (action, payload string) {
	action, payload, _ = strings.Cut(data, "_")
	return action, payload
}
