package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/storage"
)

func TestSetFlowCreatesReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	prompt := env.ad.lastSend(t)
	if !strings.Contains(prompt.text, "enter the reminder text") {
		t.Fatalf("prompt = %q", prompt.text)
	}
	if prompt.opt == nil || prompt.opt.ReplyMarkupAdapter == nil {
		t.Fatal("set prompt has no cancel keyboard")
	}
	if env.m.conv.Len() != 1 {
		t.Fatalf("open flows = %d, want 1", env.m.conv.Len())
	}

	env.deliver(t, textUpdate(7, 7, "Take morning vitamins"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Now enter the time") {
		t.Fatalf("time prompt = %q", got)
	}

	env.deliver(t, textUpdate(7, 7, "08:30"), 1)
	got := env.ad.lastSend(t)
	if !strings.Contains(got.text, "Select repeat interval") {
		t.Fatalf("interval prompt = %q", got.text)
	}
	if got.opt == nil || got.opt.ReplyMarkupAdapter == nil {
		t.Fatal("interval prompt has no quick-pick keyboard")
	}

	env.deliver(t, textUpdate(7, 7, "30 (Monthly)"), 1)
	done := env.ad.lastSend(t).text
	if !strings.Contains(done, "Reminder Created Successfully") {
		t.Fatalf("final = %q", done)
	}
	if !strings.Contains(done, "Monthly") {
		t.Fatalf("final = %q, want interval label", done)
	}
	if env.m.conv.Len() != 0 {
		t.Fatalf("open flows = %d, want 0 after create", env.m.conv.Len())
	}

	rs, err := env.st.ListRemindersByUser(ctx, 7, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want 1", len(rs))
	}
	r := rs[0]
	if r.Text != "Take morning vitamins" || r.ScheduleTime != "08:30" || r.IntervalDays != 30 {
		t.Fatalf("stored = %q %q %d", r.Text, r.ScheduleTime, r.IntervalDays)
	}
	if !env.eng.HasJobs(r.ID) {
		t.Fatal("new reminder has no armed job")
	}
}

func TestSetFlowRejectsBadTime(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	env.deliver(t, textUpdate(7, 7, "stretch"), 1)

	env.deliver(t, textUpdate(7, 7, "25:99"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Invalid time format") {
		t.Fatalf("reply = %q", got)
	}

	// The stage does not advance; a valid time still works.
	env.deliver(t, textUpdate(7, 7, "14:45"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Select repeat interval") {
		t.Fatalf("reply = %q, want interval prompt", got)
	}
}

func TestSetFlowCustomInterval(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	env.deliver(t, textUpdate(7, 7, "water plants"), 1)
	env.deliver(t, textUpdate(7, 7, "10:00"), 1)

	env.deliver(t, textUpdate(7, 7, "Custom"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "custom interval") {
		t.Fatalf("reply = %q", got)
	}

	env.deliver(t, textUpdate(7, 7, "12"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Every 12 days") {
		t.Fatalf("final = %q", got)
	}

	rs, err := env.st.ListRemindersByUser(ctx, 7, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 || rs[0].IntervalDays != 12 {
		t.Fatalf("stored interval = %+v", rs)
	}
}

func TestSetFlowRejectsBadInterval(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	env.deliver(t, textUpdate(7, 7, "water plants"), 1)
	env.deliver(t, textUpdate(7, 7, "10:00"), 1)

	env.deliver(t, textUpdate(7, 7, "nine hundred"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "valid number of days") {
		t.Fatalf("reply = %q", got)
	}

	env.deliver(t, textUpdate(7, 7, "900"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "valid number of days") {
		t.Fatalf("reply = %q, want range rejection", got)
	}
}

func TestCancelButtonEndsFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	env.deliver(t, textUpdate(7, 7, cancelLabel), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Operation Cancelled") {
		t.Fatalf("reply = %q", got)
	}
	if env.m.conv.Len() != 0 {
		t.Fatalf("open flows = %d, want 0", env.m.conv.Len())
	}
}

func TestCancelCommandEndsFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/set"), 1)
	env.deliver(t, textUpdate(7, 7, "/cancel"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Operation Cancelled") {
		t.Fatalf("reply = %q", got)
	}
	if env.m.conv.Len() != 0 {
		t.Fatalf("open flows = %d, want 0", env.m.conv.Len())
	}
}

func TestPlainTextOutsideFlowIgnored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "just chatting"), 0)

	if n := len(env.ad.allSends()); n != 0 {
		t.Fatalf("sends = %d, want silence", n)
	}
}

func TestDeleteFlowStaysOpenOnMiss(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(7, 7, "/delete"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "send the reminder ID") {
		t.Fatalf("prompt = %q", got)
	}

	env.deliver(t, textUpdate(7, 7, "9999"), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "not found or you don't have permission") {
		t.Fatalf("miss reply = %q", got)
	}
	if env.m.conv.Len() != 1 {
		t.Fatal("flow should stay open after a miss")
	}

	env.deliver(t, textUpdate(7, 7, itoa64(r.ID)), 1)
	if got := env.ad.lastSend(t).text; !strings.Contains(got, "deleted successfully") {
		t.Fatalf("reply = %q", got)
	}
	if env.m.conv.Len() != 0 {
		t.Fatal("flow should close after the delete")
	}
	if _, err := env.st.GetReminder(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetReminder err = %v, want not found", err)
	}
}

func TestDeleteWithArgument(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(7, 7, "/delete "+itoa64(r.ID)), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "deleted successfully") {
		t.Fatalf("reply = %q", got)
	}
	if _, err := env.st.GetReminder(ctx, r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetReminder err = %v, want not found", err)
	}
}

func TestDeleteOtherUsersReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "secret", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(8, 8, "/delete "+itoa64(r.ID)), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "don't have permission") {
		t.Fatalf("reply = %q", got)
	}
	if _, err := env.st.GetReminder(ctx, r.ID); err != nil {
		t.Fatalf("reminder should survive: %v", err)
	}
}

func TestConversationStoreExpiry(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	key := convKey{ChatID: 1, UserID: 1}

	s.Begin(key, stageText)
	st, ok := s.Get(key)
	if !ok || st.Stage != stageText {
		t.Fatalf("Get = %+v %v, want open flow", st, ok)
	}

	st.UpdatedAt = time.Now().Add(-2 * convTTL)
	s.mu.Lock()
	s.m[key] = st
	s.mu.Unlock()

	if _, ok := s.Get(key); ok {
		t.Fatal("expired flow should be gone")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestConversationStoreSweep(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	s.max = 3

	for i := int64(1); i <= 3; i++ {
		s.Begin(convKey{ChatID: i, UserID: i}, stageText)
	}
	// A fourth flow evicts the stalest one rather than growing the map.
	s.Begin(convKey{ChatID: 4, UserID: 4}, stageText)

	if s.Len() > 3 {
		t.Fatalf("Len = %d, want capped at 3", s.Len())
	}
	if _, ok := s.Get(convKey{ChatID: 4, UserID: 4}); !ok {
		t.Fatal("newest flow should be kept")
	}
}
