package router

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

func TestConfirmButtonCompletesOneShot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, callbackUpdate(7, 7, 42, "confirm_"+itoa64(r.ID)), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if edits[0].ref.MessageID != 42 || edits[0].ref.ChatID != 7 {
		t.Fatalf("edited ref = %+v", edits[0].ref)
	}
	if !strings.Contains(edits[0].text, "Completed:") || !strings.Contains(edits[0].text, "water plants") {
		t.Fatalf("edit = %q", edits[0].text)
	}

	got, err := env.st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if env.eng.HasJobs(r.ID) {
		t.Fatal("completed reminder still has jobs")
	}
}

func TestConfirmButtonWrongUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, callbackUpdate(7, 8, 42, "confirm_"+itoa64(r.ID)), 1)

	if n := len(env.ad.allEdits()); n != 0 {
		t.Fatalf("edits = %d, want none", n)
	}
	answers := env.ad.allAnswers()
	if len(answers) == 0 || answers[0].text != "Reminder not found or access denied." {
		t.Fatalf("answers = %+v", answers)
	}

	got, err := env.st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.Status != storage.StatusActive {
		t.Fatalf("status = %q, want untouched", got.Status)
	}
}

func TestConfirmButtonMissingReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "confirm_9999"), 1)

	answers := env.ad.allAnswers()
	if len(answers) == 0 || answers[0].text != "Reminder not found or access denied." {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestSnoozeButtonMovesDueTime(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := r.NextNotification

	env.deliver(t, callbackUpdate(7, 7, 42, "snooze_"+itoa64(r.ID)), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "Snoozed for 5 minutes") {
		t.Fatalf("edit = %q, want default snooze", edits[0].text)
	}

	got, err := env.st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.NextNotification.Equal(before) {
		t.Fatal("snooze did not move the due time")
	}
}

func TestMenuSetStartsFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_set"), 1)

	// A reply keyboard cannot ride on an edit, so this is a fresh send.
	got := env.ad.lastSend(t)
	if !strings.Contains(got.text, "enter the reminder text") {
		t.Fatalf("prompt = %q", got.text)
	}
	if env.m.conv.Len() != 1 {
		t.Fatalf("open flows = %d, want 1", env.m.conv.Len())
	}
	if n := len(env.ad.allEdits()); n != 0 {
		t.Fatalf("edits = %d, want none", n)
	}
}

func TestMenuViewEditsInPlace(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_view"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "No Active Reminders") {
		t.Fatalf("edit = %q", edits[0].text)
	}
	if edits[0].opt == nil || edits[0].opt.ReplyMarkupAdapter == nil {
		t.Fatal("menu view has no back button")
	}
}

func TestMenuViewOmitsIDs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_view"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if strings.Contains(edits[0].text, "(ID: "+itoa64(r.ID)+")") {
		t.Fatalf("edit = %q, menu view should not expose ids", edits[0].text)
	}
	if !strings.Contains(edits[0].text, "delete option") {
		t.Fatalf("edit = %q, want delete-option footer", edits[0].text)
	}
}

func TestMenuDeleteListsButtons(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_delete"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "Select a reminder to delete") {
		t.Fatalf("edit = %q", edits[0].text)
	}
	if edits[0].opt == nil || edits[0].opt.ReplyMarkupAdapter == nil {
		t.Fatal("delete list has no buttons")
	}
}

func TestMenuDeleteEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_delete"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "No Active Reminders to Delete") {
		t.Fatalf("edit = %q", edits[0].text)
	}
}

func TestDeleteButtonRemovesReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, callbackUpdate(7, 7, 42, "delete_"+itoa64(r.ID)), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "Reminder Deleted Successfully") {
		t.Fatalf("edit = %q", edits[0].text)
	}
	if _, err := env.st.GetReminder(ctx, r.ID); err == nil {
		t.Fatal("reminder should be gone")
	}
}

func keyboardRows(t *testing.T, opt *kit.SendOptions) [][]tele.InlineButton {
	t.Helper()
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		t.Fatal("no reply markup attached")
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type = %T", opt.ReplyMarkupAdapter)
	}
	return rm.InlineKeyboard
}

func seedTasks(t *testing.T, env *testEnv, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		if _, err := env.rem.Create(ctx, remCreate(7, fmt.Sprintf("task %02d", i), "14:30", 1)); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
}

func TestMenuDeletePaginates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedTasks(t, env, 12)

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_delete"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "task 10") || strings.Contains(edits[0].text, "task 11") {
		t.Fatalf("first page = %q", edits[0].text)
	}
	rows := keyboardRows(t, edits[0].opt)
	// 10 reminder rows, the nav row, the back row.
	if len(rows) != 12 {
		t.Fatalf("rows = %d, want 12", len(rows))
	}
	nav := rows[10]
	if len(nav) != 2 {
		t.Fatalf("nav buttons = %d, want label and next", len(nav))
	}
	if nav[0].Text != "Page 1/2 (1-10 of 12)" {
		t.Fatalf("label = %q", nav[0].Text)
	}
	if nav[1].Data != "dpage_1" {
		t.Fatalf("next data = %q", nav[1].Data)
	}

	env.deliver(t, callbackUpdate(7, 7, 42, "dpage_1"), 1)

	edits = env.ad.allEdits()
	if len(edits) != 2 {
		t.Fatalf("edits = %d, want 2", len(edits))
	}
	if !strings.Contains(edits[1].text, "task 11") || strings.Contains(edits[1].text, "task 02") {
		t.Fatalf("second page = %q", edits[1].text)
	}
	rows = keyboardRows(t, edits[1].opt)
	// 2 reminder rows, the nav row, the back row.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if nav := rows[2]; len(nav) != 2 || nav[0].Data != "dpage_0" {
		t.Fatalf("nav = %+v, want prev to the first page", nav)
	}
}

func TestDeletePageClampsPastEnd(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedTasks(t, env, 12)

	env.deliver(t, callbackUpdate(7, 7, 42, "dpage_9"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "task 12") {
		t.Fatalf("clamped page = %q", edits[0].text)
	}
	rows := keyboardRows(t, edits[0].opt)
	if nav := rows[2]; len(nav) != 2 || nav[1].Text != "Page 2/2 (11-12 of 12)" {
		t.Fatalf("nav = %+v, want the last page label", nav)
	}
}

func TestDeletePageBadPayloadAnswers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	seedTasks(t, env, 2)

	env.deliver(t, callbackUpdate(7, 7, 42, "dpage_x"), 1)

	if n := len(env.ad.allEdits()); n != 0 {
		t.Fatalf("edits = %d, want none", n)
	}
	answers := env.ad.allAnswers()
	if len(answers) != 1 || answers[0].text != "" {
		t.Fatalf("answers = %+v, want one empty answer", answers)
	}
}

func TestBackButtonRestoresMenu(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "back_to_menu"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "Welcome back, Test!") {
		t.Fatalf("edit = %q", edits[0].text)
	}
	if edits[0].opt == nil || edits[0].opt.ReplyMarkupAdapter == nil {
		t.Fatal("back edit has no menu keyboard")
	}
}

func TestMenuHelpEditsInPlace(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "cmd_help"), 1)

	edits := env.ad.allEdits()
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !strings.Contains(edits[0].text, "How to use Reminder Bot") {
		t.Fatalf("edit = %q", edits[0].text)
	}
}

func TestStaleCallbackJustAnswers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, callbackUpdate(7, 7, 42, "bogus_1"), 0)

	answers := env.ad.allAnswers()
	if len(answers) != 1 || answers[0].text != "" {
		t.Fatalf("answers = %+v, want one empty answer", answers)
	}
	if n := len(env.ad.allEdits()); n != 0 {
		t.Fatalf("edits = %d, want none", n)
	}
}

func TestOwnerOnlyCallbackForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)

	// Zero-value access on a route means owner-only.
	cmds, cbs := env.m.BuiltinRegistry()
	cbs = append(cbs, CallbackRoute{
		Action: "adm",
		Handle: func(ctx context.Context, req *Request, payload string) error { return nil },
	})
	env.m.SetRegistry(cmds, cbs)

	env.deliver(t, callbackUpdate(7, 7, 42, "adm_x"), 0)

	answers := env.ad.allAnswers()
	if len(answers) != 1 || answers[0].text != "forbidden" {
		t.Fatalf("answers = %+v, want forbidden", answers)
	}
}
