package tgui

import tele "gopkg.in/telebot.v4"

// ConfirmInline pairs two buttons on one row, the usual shape for a
// prompt that wants an answer.
func ConfirmInline(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}
