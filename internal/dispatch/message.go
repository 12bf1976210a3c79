package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/escalate"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// RenderPrompt builds the reminder prompt. The urgency icon follows the
// notification count, the attempt counter shows up from the second attempt on.
func RenderPrompt(r storage.Reminder) string {
	var b strings.Builder
	b.WriteString(escalate.UrgencyFor(r.NotificationCount).Icon())
	b.WriteString(" <b>Reminder:</b> ")
	b.WriteString(tgui.Esc(r.Text).String())
	b.WriteString("\n")

	if r.NotificationCount > 0 {
		fmt.Fprintf(&b, "📊 Attempt %d/%d", r.NotificationCount+1, r.MaxNotifications)
	}
	switch {
	case r.IntervalDays > 1:
		fmt.Fprintf(&b, "\n🔄 Repeats every %d day(s)", r.IntervalDays)
	case r.IntervalDays == 1:
		b.WriteString("\n🔄 Daily reminder")
	}
	return b.String()
}

// RenderFinalWarning builds the suspension notice sent when a reminder
// exhausts its attempts.
func RenderFinalWarning(r storage.Reminder) string {
	return fmt.Sprintf(
		"⚠️ <b>Final Warning</b>\n\n"+
			"Reminder: %s\n\n"+
			"This reminder has reached the maximum number of attempts (%d) and will be suspended.\n\n"+
			"You can reactivate it later from your reminder list.",
		tgui.Esc(r.Text), r.MaxNotifications)
}

// RenderConfirmed builds the text the prompt is edited to after a confirm.
// at should already be in the user-facing timezone.
func RenderConfirmed(text string, at time.Time) string {
	return fmt.Sprintf("✅ <b>Completed:</b> %s\n⏰ %s", tgui.Esc(text), at.Format("15:04"))
}

// RenderSnoozed builds the text the prompt is edited to after a snooze.
func RenderSnoozed(text string, minutes int) string {
	return fmt.Sprintf("⏰ <b>Snoozed for %d minutes</b>\n\n%s", minutes, tgui.Esc(text))
}

// HTMLOptions returns send options for pre-escaped HTML message text.
func HTMLOptions() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
}

func promptKeyboard(reminderID int64) *tgui.Inline {
	return tgui.ConfirmInline(
		tgui.Btn("✅ Completed", ResponseData(ResponseConfirm, reminderID)),
		tgui.Btn("⏰ Snooze 5min", ResponseData(ResponseSnooze, reminderID)),
	)
}

// SendPrompt sends the reminder prompt with its confirm/snooze keyboard and
// returns the platform message ID.
func (s *Service) SendPrompt(ctx context.Context, r storage.Reminder) (int, error) {
	opt := HTMLOptions()
	opt.ReplyMarkupAdapter = promptKeyboard(r.ID).Markup()
	ref, err := s.send(ctx, kit.ChatTarget{ChatID: r.ChatID}, RenderPrompt(r), opt)
	if err != nil {
		return 0, fmt.Errorf("send prompt for reminder %d: %w", r.ID, err)
	}
	return ref.MessageID, nil
}

// SendFinalWarning sends the suspension notice. No keyboard: the reminder is
// no longer actionable from the chat.
func (s *Service) SendFinalWarning(ctx context.Context, r storage.Reminder) error {
	if _, err := s.send(ctx, kit.ChatTarget{ChatID: r.ChatID}, RenderFinalWarning(r), HTMLOptions()); err != nil {
		return fmt.Errorf("send final warning for reminder %d: %w", r.ID, err)
	}
	return nil
}

// DeletePrompt removes a previously sent prompt. Best-effort: callers treat
// failures as non-fatal because the message may already be gone.
func (s *Service) DeletePrompt(ctx context.Context, chatID int64, messageID int) error {
	if s.closed.Load() {
		return ErrStopped
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return errors.New("dispatch: no adapter")
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return ad.DeleteMessage(callCtx, kit.MessageRef{ChatID: chatID, MessageID: messageID})
}
