package dispatch

import (
	"strings"
	"testing"
	"time"

	"remindbot/internal/storage"
)

func TestRenderPrompt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		reminder storage.Reminder
		contains []string
		excludes []string
	}{
		{
			name:     "first attempt one-shot",
			reminder: storage.Reminder{ID: 1, Text: "water plants", MaxNotifications: 10},
			contains: []string{"🔔", "<b>Reminder:</b> water plants"},
			excludes: []string{"Attempt", "🔄"},
		},
		{
			name:     "third attempt shows counter",
			reminder: storage.Reminder{ID: 1, Text: "water plants", NotificationCount: 2, MaxNotifications: 10},
			contains: []string{"⚠️", "📊 Attempt 3/10"},
		},
		{
			name:     "high urgency",
			reminder: storage.Reminder{ID: 1, Text: "take meds", NotificationCount: 4, MaxNotifications: 5},
			contains: []string{"🚨", "📊 Attempt 5/5"},
		},
		{
			name:     "daily recurrence",
			reminder: storage.Reminder{ID: 1, Text: "standup", IntervalDays: 1, MaxNotifications: 10},
			contains: []string{"🔄 Daily reminder"},
			excludes: []string{"Repeats every"},
		},
		{
			name:     "multi-day recurrence",
			reminder: storage.Reminder{ID: 1, Text: "water plants", IntervalDays: 3, MaxNotifications: 10},
			contains: []string{"🔄 Repeats every 3 day(s)"},
		},
		{
			name:     "html escaped",
			reminder: storage.Reminder{ID: 1, Text: "a <b> & c", MaxNotifications: 10},
			contains: []string{"a &lt;b&gt; &amp; c"},
			excludes: []string{"<b> &"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RenderPrompt(tt.reminder)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Fatalf("prompt missing %q:\n%s", want, got)
				}
			}
			for _, not := range tt.excludes {
				if strings.Contains(got, not) {
					t.Fatalf("prompt unexpectedly contains %q:\n%s", not, got)
				}
			}
		})
	}
}

func TestRenderFinalWarning(t *testing.T) {
	t.Parallel()
	got := RenderFinalWarning(storage.Reminder{ID: 3, Text: "pay rent", MaxNotifications: 7})
	for _, want := range []string{"⚠️ <b>Final Warning</b>", "Reminder: pay rent", "(7)", "will be suspended", "reactivate"} {
		if !strings.Contains(got, want) {
			t.Fatalf("final warning missing %q:\n%s", want, got)
		}
	}
}

func TestRenderConfirmed(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)
	got := RenderConfirmed("pay rent", at)
	if got != "✅ <b>Completed:</b> pay rent\n⏰ 09:05" {
		t.Fatalf("RenderConfirmed = %q", got)
	}
}

func TestRenderSnoozed(t *testing.T) {
	t.Parallel()
	got := RenderSnoozed("pay rent", 5)
	if got != "⏰ <b>Snoozed for 5 minutes</b>\n\npay rent" {
		t.Fatalf("RenderSnoozed = %q", got)
	}
}

func TestPromptKeyboardData(t *testing.T) {
	t.Parallel()
	rm := promptKeyboard(42).Markup()
	if rm == nil || len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard layout = %+v, want one row of two buttons", rm)
	}
	row := rm.InlineKeyboard[0]
	if row[0].Data != "confirm_42" {
		t.Fatalf("confirm button data = %q", row[0].Data)
	}
	if row[1].Data != "snooze_42" {
		t.Fatalf("snooze button data = %q", row[1].Data)
	}
}
