package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/dispatch"
	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// callbackRef resolves the message the pressed button hangs off so the
// handler can edit it in place.
func (req *Request) callbackRef() (kit.MessageRef, bool) {
	cb := req.Update.Callback
	if cb == nil || cb.MessageID == 0 {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}, true
}

func (req *Request) answerText(ctx context.Context, text string) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	return req.Adapter.AnswerCallback(ctx, cb.ID, text)
}

// cbConfirm completes a fired reminder from its prompt button. Ownership
// lives in the service; anyone else pressing a forwarded keyboard gets the
// same answer as a missing reminder.
func (m *CommandManager) cbConfirm(ctx context.Context, req *Request, payload string) error {
	id, perr := strconv.ParseInt(payload, 10, 64)
	if perr != nil || id <= 0 {
		return req.answerText(ctx, "")
	}

	r, err := req.Services.Reminders.Confirm(ctx, id, req.FromID)
	if r != nil {
		// Row is settled even when the repeat timer could not be armed;
		// the reconcile sweep picks that up.
		if err != nil {
			req.Logger.Warn("confirm left reminder without timer",
				logx.Int64("reminder_id", id), logx.Err(err))
		}
		loc := req.Services.Reminders.Location()
		if ref, ok := req.callbackRef(); ok {
			done := dispatch.RenderConfirmed(r.Text, time.Now().In(loc))
			if eerr := req.Adapter.EditText(ctx, ref, done, dispatch.HTMLOptions()); eerr != nil {
				req.Logger.Warn("confirm edit failed", logx.Int64("reminder_id", id), logx.Err(eerr))
			}
		}
		return nil
	}

	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, reminders.ErrNotOwner):
		return req.answerText(ctx, "Reminder not found or access denied.")
	case errors.Is(err, reminders.ErrNotActive):
		return req.answerText(ctx, "Failed to confirm reminder.")
	default:
		_ = req.answerText(ctx, "An error occurred. Please try again.")
		return err
	}
}

func (m *CommandManager) cbSnooze(ctx context.Context, req *Request, payload string) error {
	id, perr := strconv.ParseInt(payload, 10, 64)
	if perr != nil || id <= 0 {
		return req.answerText(ctx, "")
	}

	r, minutes, err := req.Services.Reminders.Snooze(ctx, id, req.FromID, 0)
	switch {
	case err == nil:
		if ref, ok := req.callbackRef(); ok {
			moved := dispatch.RenderSnoozed(r.Text, minutes)
			if eerr := req.Adapter.EditText(ctx, ref, moved, dispatch.HTMLOptions()); eerr != nil {
				req.Logger.Warn("snooze edit failed", logx.Int64("reminder_id", id), logx.Err(eerr))
			}
		}
		return nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, reminders.ErrNotOwner):
		return req.answerText(ctx, "Reminder not found or access denied.")
	default:
		_ = req.answerText(ctx, "Failed to snooze reminder.")
		return err
	}
}

// cbMenu serves the main menu buttons ("cmd_set", "cmd_view", ...).
func (m *CommandManager) cbMenu(ctx context.Context, req *Request, payload string) error {
	switch payload {
	case "set":
		// Reply keyboards cannot ride on an edit, so the input flow
		// starts in a fresh message under the menu.
		m.conv.Begin(convKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stageText)
		return m.sendSetPrompt(ctx, req)
	case "view":
		return m.editViewList(ctx, req)
	case "delete":
		return m.editDeleteList(ctx, req, 0)
	case "help":
		return m.editHelp(ctx, req)
	default:
		return req.answerText(ctx, "")
	}
}

func (m *CommandManager) cbBack(ctx context.Context, req *Request, payload string) error {
	ref, ok := req.callbackRef()
	if !ok {
		return nil
	}
	_, firstName := req.senderNames()
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = mainMenu().Markup()
	return req.Adapter.EditText(ctx, ref, welcomeHTML(firstName, true), opts)
}

// cbDeleteButton removes the reminder behind a delete-list button and
// rewrites the list message with the outcome.
func (m *CommandManager) cbDeleteButton(ctx context.Context, req *Request, payload string) error {
	id, perr := strconv.ParseInt(payload, 10, 64)
	if perr != nil || id <= 0 {
		return req.answerText(ctx, "")
	}
	ref, hasRef := req.callbackRef()

	err := req.Services.Reminders.Delete(ctx, id, req.FromID)
	switch {
	case err == nil:
		if !hasRef {
			return nil
		}
		return m.editWithBack(ctx, req, ref,
			"✅ <b>Reminder Deleted Successfully!</b>\n\nReminder ID "+strconv.FormatInt(id, 10)+" has been deleted.")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, reminders.ErrNotOwner):
		if !hasRef {
			return req.answerText(ctx, "Reminder not found or access denied.")
		}
		return m.editWithBack(ctx, req, ref,
			"❌ Failed to delete reminder "+strconv.FormatInt(id, 10)+". It may not exist or you don't have permission.")
	default:
		_ = req.answerText(ctx, "An error occurred. Please try again.")
		return err
	}
}

func (m *CommandManager) editViewList(ctx context.Context, req *Request) error {
	ref, ok := req.callbackRef()
	if !ok {
		return nil
	}
	svc := req.Services.Reminders
	all, err := svc.ListByUser(ctx, req.FromID)
	if err != nil {
		_ = m.editWithBack(ctx, req, ref, "❌ Failed to load reminders. Please try again later.")
		return err
	}

	var text string
	if len(all) == 0 {
		text = "📭 <b>No Active Reminders</b>\n\nUse /set to create your first reminder!"
	} else if active := filterActive(all); len(active) == 0 {
		text = "📭 <b>No Active Reminders</b>\n\nAll your reminders are completed or suspended.\nUse /set to create a new one!"
	} else {
		text = renderActiveList(active, svc.Location(), false)
	}
	return m.editWithBack(ctx, req, ref, text)
}

// deletePageSize keeps the delete keyboard at one button per reminder
// without blowing past Telegram's row budget.
const deletePageSize = 10

// cbDeletePage re-renders the delete list on another page.
func (m *CommandManager) cbDeletePage(ctx context.Context, req *Request, payload string) error {
	page, err := strconv.Atoi(payload)
	if err != nil || page < 0 {
		return req.answerText(ctx, "")
	}
	return m.editDeleteList(ctx, req, page)
}

func (m *CommandManager) editDeleteList(ctx context.Context, req *Request, page int) error {
	ref, ok := req.callbackRef()
	if !ok {
		return nil
	}
	svc := req.Services.Reminders
	active, err := svc.ListActive(ctx, req.FromID)
	if err != nil {
		_ = m.editWithBack(ctx, req, ref, "❌ Failed to load reminders. Please try again later.")
		return err
	}
	if len(active) == 0 {
		return m.editWithBack(ctx, req, ref,
			"📭 <b>No Active Reminders to Delete</b>\n\nYou don't have any active reminders to delete.")
	}

	shown, page, hasPrev, hasNext := tgui.PaginateSlice(active, page, deletePageSize)

	var b strings.Builder
	b.WriteString("🗑 <b>Delete Reminder</b>\n\nSelect a reminder to delete:\n")
	kb := tgui.NewInline()
	for _, r := range shown {
		b.WriteString("\n• <b>" + tgui.Esc(r.Text).String() + "</b> (⏰ " +
			tgui.Esc(r.ScheduleTime).String() + ", 🔄 " + formatInterval(r.IntervalDays) + ")")
		kb.Row(tgui.Btn("🗑 "+tgui.TruncRunes(r.Text, 30), tgui.Data("delete", strconv.FormatInt(r.ID, 10))))
	}
	if hasPrev || hasNext {
		// The label button re-renders the same page, which is harmless.
		label := tgui.Btn(tgui.PageLabel(page, deletePageSize, len(active)), tgui.Data("dpage", strconv.Itoa(page)))
		prev := tgui.Btn("⬅️ Prev", tgui.Data("dpage", strconv.Itoa(page-1)))
		next := tgui.Btn("Next ➡️", tgui.Data("dpage", strconv.Itoa(page+1)))
		switch {
		case hasPrev && hasNext:
			kb.Row(prev, label, next)
		case hasPrev:
			kb.Row(prev, label)
		default:
			kb.Row(label, next)
		}
	}
	kb.Row(tgui.Btn("🏠 Back to Menu", "back_to_menu"))

	opts := htmlOpts()
	opts.ReplyMarkupAdapter = kb.Markup()
	return req.Adapter.EditText(ctx, ref, b.String(), opts)
}

func (m *CommandManager) editHelp(ctx context.Context, req *Request) error {
	ref, ok := req.callbackRef()
	if !ok {
		return nil
	}
	return m.editWithBack(ctx, req, ref, helpBotHTML())
}

func (m *CommandManager) editWithBack(ctx context.Context, req *Request, ref kit.MessageRef, text string) error {
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = backMenu().Markup()
	return req.Adapter.EditText(ctx, ref, text, opts)
}
