package router

import (
	"context"
	"strings"
	"testing"

	"remindbot/internal/storage"
)

func TestViewWithoutReminders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/view"), 1)

	got := env.ad.lastSend(t)
	if !strings.Contains(got.text, "No Active Reminders") {
		t.Fatalf("text = %q, want empty-state", got.text)
	}
	if !strings.Contains(got.text, "first reminder") {
		t.Fatalf("text = %q, want first-reminder hint", got.text)
	}
	if got.to.ChatID != 7 {
		t.Fatalf("chat = %d, want 7", got.to.ChatID)
	}
}

func TestViewListsActiveReminders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 7))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(7, 7, "/view"), 1)

	got := env.ad.lastSend(t).text
	if !strings.Contains(got, "Your Active Reminders") {
		t.Fatalf("text = %q, want list header", got)
	}
	if !strings.Contains(got, "water plants") || !strings.Contains(got, "Weekly") {
		t.Fatalf("text = %q, want entry with interval label", got)
	}
	if !strings.Contains(got, "(ID: "+itoa64(r.ID)+")") {
		t.Fatalf("text = %q, want reminder id", got)
	}
}

func TestViewAliasRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/list"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "No Active Reminders") {
		t.Fatalf("alias reply = %q, want view output", got)
	}
}

func TestUnknownCommandPrivate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/frobnicate"), 0)

	if got := env.ad.lastSend(t).text; got != "unknown command. try /help" {
		t.Fatalf("reply = %q", got)
	}
}

func TestUnknownCommandSilentInGroups(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, groupUpdate(-100, 7, "/frobnicate"), 0)

	if n := len(env.ad.allSends()); n != 0 {
		t.Fatalf("sends = %d, want silence in groups", n)
	}
}

func TestOwnerOnlyCommandRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)

	env.deliver(t, textUpdate(7, 7, "/stats"), 0)

	if got := env.ad.lastSend(t).text; got != "unauthorized" {
		t.Fatalf("reply = %q, want unauthorized", got)
	}
}

func TestStatsForOwner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)
	ctx := context.Background()

	if _, err := env.rem.Create(ctx, remCreate(7, "standup", "09:00", 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(99, 99, "/stats"), 1)

	got := env.ad.lastSend(t).text
	for _, want := range []string{"Bot Stats", "Users", "Reminders", "Engine", "active"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stats = %q, missing %q", got, want)
		}
	}
}

func TestGroupNodeShowsHelp(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)

	// "/users" has subcommands but no handler of its own.
	env.deliver(t, textUpdate(99, 99, "/users"), 0)

	got := env.ad.lastSend(t).text
	if !strings.Contains(got, "block") || !strings.Contains(got, "whitelist") {
		t.Fatalf("help = %q, want subcommand list", got)
	}
}

func TestHelpShowsUserGuide(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/help"), 1)

	got := env.ad.lastSend(t).text
	if !strings.Contains(got, "How to use Reminder Bot") {
		t.Fatalf("help = %q, want user guide", got)
	}
	if !strings.Contains(got, "/set") {
		t.Fatalf("help = %q, want command examples", got)
	}
}

func TestBlockedUserDenied(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.usr.Register(ctx, 8, "bad", "Bad"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := env.usr.Block(ctx, 8); err != nil {
		t.Fatalf("Block: %v", err)
	}

	env.deliver(t, textUpdate(8, 8, "/view"), 1)

	sends := env.ad.allSends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want only the denial", len(sends))
	}
	if !strings.Contains(sends[0].text, "permission") {
		t.Fatalf("reply = %q, want denial", sends[0].text)
	}
}

func TestBlockedOwnerStillAdmitted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 8)
	ctx := context.Background()

	if _, err := env.usr.Register(ctx, 8, "boss", "Boss"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := env.usr.Block(ctx, 8); err != nil {
		t.Fatalf("Block: %v", err)
	}

	env.deliver(t, textUpdate(8, 8, "/view"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "No Active Reminders") {
		t.Fatalf("reply = %q, want view output for owner", got)
	}
}

func TestUsersBlockCommand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)
	ctx := context.Background()

	if _, err := env.usr.Register(ctx, 42, "u42", "U"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	env.deliver(t, textUpdate(99, 99, "/users block 42"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "User 42 blocked") {
		t.Fatalf("reply = %q", got)
	}
	u, err := env.usr.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !u.IsBlocked {
		t.Fatal("user 42 not blocked in store")
	}
}

func TestUsersBlockUnknownUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)

	env.deliver(t, textUpdate(99, 99, "/users block 4040"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "not found") {
		t.Fatalf("reply = %q, want not found", got)
	}
}

func TestUsersBlockUsage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)

	env.deliver(t, textUpdate(99, 99, "/users block nonsense"), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "Usage:") {
		t.Fatalf("reply = %q, want usage", got)
	}
}

func TestReactivateCommand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 7))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Status = storage.StatusSuspended
	if err := env.st.UpdateReminder(ctx, r); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	env.eng.Cancel(r.ID)

	env.deliver(t, textUpdate(99, 99, "/reactivate "+itoa64(r.ID)), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "reactivated") {
		t.Fatalf("reply = %q", got)
	}
	if !env.eng.HasJobs(r.ID) {
		t.Fatal("reactivated reminder has no armed job")
	}
}

func TestReactivateActiveReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 99)
	ctx := context.Background()

	r, err := env.rem.Create(ctx, remCreate(7, "water plants", "14:30", 7))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	env.deliver(t, textUpdate(99, 99, "/reactivate "+itoa64(r.ID)), 1)

	if got := env.ad.lastSend(t).text; !strings.Contains(got, "not suspended") {
		t.Fatalf("reply = %q", got)
	}
}

func TestStartSendsMenu(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.deliver(t, textUpdate(7, 7, "/start"), 1)

	got := env.ad.lastSend(t)
	if !strings.Contains(got.text, "Welcome to the Reminder Bot, Test!") {
		t.Fatalf("text = %q, want greeting with first name", got.text)
	}
	if got.opt == nil || got.opt.ReplyMarkupAdapter == nil {
		t.Fatal("start reply has no menu keyboard")
	}

	// The sender is registered on the side.
	if _, err := env.usr.Get(context.Background(), 7); err != nil {
		t.Fatalf("sender not registered: %v", err)
	}
}
