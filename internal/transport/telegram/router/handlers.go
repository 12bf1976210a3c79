package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// BuiltinRegistry returns the bot's command and callback tables, bound to
// this manager. The app feeds them straight into SetRegistry; help is
// injected there.
func (m *CommandManager) BuiltinRegistry() ([]Command, []CallbackRoute) {
	cmds := []Command{
		{Route: "start", Description: "welcome and main menu", Usage: "/start", Access: AccessEveryone, Handle: m.cmdStart},
		{Route: "set", Description: "create a new reminder", Usage: "/set", Access: AccessEveryone, Handle: m.cmdSet},
		{Route: "view", Aliases: []string{"list"}, Description: "list your active reminders", Usage: "/view", Access: AccessEveryone, Handle: m.cmdView},
		{Route: "delete", Description: "delete a reminder", Usage: "/delete [id]", Access: AccessEveryone, Handle: m.cmdDelete},
		{Route: "cancel", Description: "abort the current input flow", Usage: "/cancel", Access: AccessEveryone, Handle: m.cmdCancel},
		{Route: "stats", Description: "usage and runtime counters", Usage: "/stats", Access: AccessOwnerOnly, Handle: m.cmdStats},
		{Route: "reactivate", Description: "re-arm a suspended reminder", Usage: "/reactivate <id>", Access: AccessOwnerOnly, Handle: m.cmdReactivate},
		{Route: "users stats", Description: "user counters", Usage: "/users stats", Access: AccessOwnerOnly, Handle: m.cmdUsersStats},
		{Route: "users block", Description: "deny a user all interactions", Usage: "/users block <id>", Access: AccessOwnerOnly, Handle: m.cmdUsersBlock},
		{Route: "users unblock", Description: "lift a block", Usage: "/users unblock <id>", Access: AccessOwnerOnly, Handle: m.cmdUsersUnblock},
		{Route: "users whitelist", Description: "admit a user in whitelist mode", Usage: "/users whitelist <id>", Access: AccessOwnerOnly, Handle: m.cmdUsersWhitelist},
		{Route: "users unwhitelist", Description: "remove a user from the whitelist", Usage: "/users unwhitelist <id>", Access: AccessOwnerOnly, Handle: m.cmdUsersUnwhitelist},
	}
	cbs := []CallbackRoute{
		{Action: "confirm", Description: "complete a fired reminder", Access: CallbackAccessEveryone, Handle: m.cbConfirm},
		{Action: "snooze", Description: "push a fired reminder back", Access: CallbackAccessEveryone, Handle: m.cbSnooze},
		{Action: "cmd", Description: "main menu buttons", Access: CallbackAccessEveryone, Handle: m.cbMenu},
		{Action: "back", Description: "return to the main menu", Access: CallbackAccessEveryone, Handle: m.cbBack},
		{Action: "delete", Description: "delete-list buttons", Access: CallbackAccessEveryone, Handle: m.cbDeleteButton},
		{Action: "dpage", Description: "delete-list page navigation", Access: CallbackAccessEveryone, Handle: m.cbDeletePage},
	}
	return cmds, cbs
}

func (m *CommandManager) cmdStart(ctx context.Context, req *Request) error {
	username, firstName := req.senderNames()
	if req.Services != nil && req.Services.Users != nil {
		if _, err := req.Services.Users.Register(ctx, req.FromID, username, firstName); err != nil {
			req.Logger.Warn("start registration failed", logx.Err(err))
		}
	}
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = mainMenu().Markup()
	_, err := req.Adapter.SendText(ctx, req.Chat, welcomeHTML(firstName, false), opts)
	return err
}

func (m *CommandManager) cmdSet(ctx context.Context, req *Request) error {
	m.conv.Begin(convKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stageText)
	return m.sendSetPrompt(ctx, req)
}

func (m *CommandManager) sendSetPrompt(ctx context.Context, req *Request) error {
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = tgui.ReplyKB([]string{cancelLabel})
	_, err := req.Adapter.SendText(ctx, req.Chat,
		"🔔 <b>Create New Reminder</b>\n\n📝 Please enter the reminder text:\n\n<i>Example: Take morning vitamins</i>", opts)
	return err
}

func (m *CommandManager) cmdView(ctx context.Context, req *Request) error {
	svc := req.Services.Reminders
	all, err := svc.ListByUser(ctx, req.FromID)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to fetch reminders. Please try again later.", nil)
		return err
	}
	if len(all) == 0 {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"📭 <b>No Active Reminders</b>\n\nUse /set to create your first reminder!", htmlOpts())
		return serr
	}
	active := filterActive(all)
	if len(active) == 0 {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"📭 <b>No Active Reminders</b>\n\nAll your reminders are completed or suspended.\nUse /set to create a new one!", htmlOpts())
		return serr
	}
	_, serr := req.Adapter.SendText(ctx, req.Chat, renderActiveList(active, svc.Location(), true), htmlOpts())
	return serr
}

func (m *CommandManager) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) > 0 {
		id, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil || id <= 0 {
			_, serr := req.Adapter.SendText(ctx, req.Chat,
				"❌ Invalid reminder ID. Please enter a number.\nUse /view to see your reminders and their IDs.", nil)
			return serr
		}
		_, derr := m.deleteByID(ctx, req, id)
		return derr
	}
	m.conv.Begin(convKey{ChatID: req.Chat.ChatID, UserID: req.FromID}, stageDeleteID)
	_, err := req.Adapter.SendText(ctx, req.Chat,
		"🗑 <b>Delete Reminder</b>\n\nPlease send the reminder ID you want to delete.\nUse /view to see your reminders and their IDs.", htmlOpts())
	return err
}

// deleteByID runs the owner-checked delete and reports the outcome to the
// chat. done is true only when the reminder is actually gone, so the
// delete-by-ID flow knows whether to stay open.
func (m *CommandManager) deleteByID(ctx context.Context, req *Request, id int64) (done bool, err error) {
	derr := req.Services.Reminders.Delete(ctx, id, req.FromID)
	switch {
	case derr == nil:
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"✅ <b>Reminder "+strconv.FormatInt(id, 10)+" deleted successfully!</b>", htmlOpts())
		return true, serr
	case errors.Is(derr, storage.ErrNotFound), errors.Is(derr, reminders.ErrNotOwner):
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"❌ Reminder "+strconv.FormatInt(id, 10)+" not found or you don't have permission to delete it.", nil)
		return false, serr
	default:
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to delete reminder. Please try again later.", nil)
		return false, derr
	}
}

func (m *CommandManager) cmdCancel(ctx context.Context, req *Request) error {
	m.conv.End(convKey{ChatID: req.Chat.ChatID, UserID: req.FromID})
	return m.sendCancelled(ctx, req)
}

func (m *CommandManager) cmdStats(ctx context.Context, req *Request) error {
	serv := req.Services
	if serv == nil || serv.Users == nil || serv.Reminders == nil {
		return errors.New("stats: services not wired")
	}

	us, err := serv.Users.Stats(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to gather stats. Please try again later.", nil)
		return err
	}
	counts, err := serv.Reminders.Counts(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to gather stats. Please try again later.", nil)
		return err
	}

	b := tgui.New().Title("📊", "Bot Stats")
	b.Section("Users").
		KV("total", strconv.Itoa(us.Total)).
		KV("active", strconv.Itoa(us.Active)).
		KV("new in last 30 days", strconv.Itoa(us.Recent)).
		KV("blocked", strconv.Itoa(us.Blocked)).
		KV("whitelisted", strconv.Itoa(us.Whitelisted))

	b.Section("Reminders")
	for _, st := range []storage.ReminderStatus{
		storage.StatusActive,
		storage.StatusCompleted,
		storage.StatusSuspended,
		storage.StatusCancelled,
	} {
		b.KV(string(st), strconv.Itoa(counts[st]))
	}

	if serv.Engine != nil {
		b.Section("Engine").
			KV("armed timers", strconv.Itoa(len(serv.Engine.Jobs()))).
			KV("fire queue", strconv.Itoa(serv.Engine.QueueDepth()))
	}
	if serv.Dispatch != nil {
		total, open := serv.Dispatch.BreakerStats()
		b.Section("Dispatch").
			KV("send queue", strconv.Itoa(serv.Dispatch.QueueDepth())).
			KV("breakers", fmt.Sprintf("%d tracked, %d open", total, open))
	}
	b.Section("Router").KV("open flows", strconv.Itoa(m.conv.Len()))

	if snaps := serv.RuntimeSupervisors.Snapshot(); len(snaps) > 0 {
		b.Section("Supervisors")
		names := make([]string, 0, len(snaps))
		for n := range snaps {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			sup := snaps[n]
			if sup == nil {
				continue
			}
			var restarts, panics uint64
			for _, g := range sup.Snapshot().Goroutines {
				restarts += g.Restarts
				panics += g.Panics
			}
			b.KV(n, fmt.Sprintf("restarts %d, panics %d", restarts, panics))
		}
	}

	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (m *CommandManager) cmdReactivate(ctx context.Context, req *Request) error {
	id, ok := argID(req)
	if !ok {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Usage: /reactivate <reminder id>", nil)
		return err
	}
	r, err := req.Services.Reminders.Reactivate(ctx, id)
	if r != nil {
		// Row is active again even if the timer could not be armed right
		// away; the reconcile sweep picks it up.
		if err != nil {
			req.Logger.Warn("reminder reactivated without timer", logx.Int64("reminder_id", id), logx.Err(err))
		}
		loc := req.Services.Reminders.Location()
		text := "✅ Reminder " + strconv.FormatInt(id, 10) + " reactivated.\n" +
			"🔔 Next notification: <b>" + r.NextNotification.In(loc).Format("2006-01-02 15:04") + "</b>"
		_, serr := req.Adapter.SendText(ctx, req.Chat, text, htmlOpts())
		return serr
	}
	switch {
	case errors.Is(err, reminders.ErrNotSuspended):
		_, serr := req.Adapter.SendText(ctx, req.Chat, "Reminder "+strconv.FormatInt(id, 10)+" is not suspended.", nil)
		return serr
	case errors.Is(err, storage.ErrNotFound):
		_, serr := req.Adapter.SendText(ctx, req.Chat, "Reminder "+strconv.FormatInt(id, 10)+" not found.", nil)
		return serr
	default:
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to reactivate reminder. Please try again later.", nil)
		return err
	}
}

func (m *CommandManager) cmdUsersStats(ctx context.Context, req *Request) error {
	serv := req.Services
	if serv == nil || serv.Users == nil {
		return errors.New("user service not wired")
	}
	st, err := serv.Users.Stats(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to gather stats. Please try again later.", nil)
		return err
	}
	b := tgui.New().Title("👥", "Users").
		KV("total", strconv.Itoa(st.Total)).
		KV("active", strconv.Itoa(st.Active)).
		KV("new in last 30 days", strconv.Itoa(st.Recent)).
		KV("blocked", strconv.Itoa(st.Blocked)).
		KV("whitelisted", strconv.Itoa(st.Whitelisted))
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (m *CommandManager) cmdUsersBlock(ctx context.Context, req *Request) error {
	return m.userOp(ctx, req, "block")
}

func (m *CommandManager) cmdUsersUnblock(ctx context.Context, req *Request) error {
	return m.userOp(ctx, req, "unblock")
}

func (m *CommandManager) cmdUsersWhitelist(ctx context.Context, req *Request) error {
	return m.userOp(ctx, req, "whitelist")
}

func (m *CommandManager) cmdUsersUnwhitelist(ctx context.Context, req *Request) error {
	return m.userOp(ctx, req, "unwhitelist")
}

func (m *CommandManager) userOp(ctx context.Context, req *Request, verb string) error {
	serv := req.Services
	if serv == nil || serv.Users == nil {
		return errors.New("user service not wired")
	}
	id, ok := argID(req)
	if !ok {
		_, err := req.Adapter.SendText(ctx, req.Chat, "Usage: /"+req.Command+" <user id>", nil)
		return err
	}

	var err error
	var done string
	switch verb {
	case "block":
		err = serv.Users.Block(ctx, id)
		done = "✅ User %d blocked."
	case "unblock":
		err = serv.Users.Unblock(ctx, id)
		done = "✅ User %d unblocked."
	case "whitelist":
		err = serv.Users.Whitelist(ctx, id)
		done = "✅ User %d whitelisted."
	case "unwhitelist":
		err = serv.Users.Unwhitelist(ctx, id)
		done = "✅ User %d removed from the whitelist."
	default:
		return fmt.Errorf("unknown user operation %q", verb)
	}

	switch {
	case err == nil:
		_, serr := req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf(done, id), nil)
		return serr
	case errors.Is(err, storage.ErrNotFound):
		_, serr := req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf("User %d not found.", id), nil)
		return serr
	default:
		_, _ = req.Adapter.SendText(ctx, req.Chat, "❌ Failed to update user. Please try again later.", nil)
		return err
	}
}

func argID(req *Request) (int64, bool) {
	if len(req.Args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func welcomeHTML(firstName string, back bool) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	greet := "👋 Welcome to the Reminder Bot, "
	if back {
		greet = "👋 Welcome back, "
	}
	return greet + tgui.Esc(name).String() + "!\n\n" +
		"🔔 I'll help you never forget your important tasks.\n\n" +
		"Choose an option below to get started:"
}

func mainMenu() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("🔔 Create New Reminder", "cmd_set")).
		Row(tgui.Btn("📋 View My Reminders", "cmd_view")).
		Row(tgui.Btn("🗑 Delete Reminder", "cmd_delete")).
		Row(tgui.Btn("❓ Help & Examples", "cmd_help"))
}

func backMenu() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn("🏠 Back to Menu", "back_to_menu"))
}

// filterActive keeps reminders that still owe the user a notification.
// Escalating ones stay active with a nonzero prompt count.
func filterActive(rs []*storage.Reminder) []*storage.Reminder {
	out := make([]*storage.Reminder, 0, len(rs))
	for _, r := range rs {
		if r.Status == storage.StatusActive {
			out = append(out, r)
		}
	}
	return out
}

func renderActiveList(rs []*storage.Reminder, loc *time.Location, withIDs bool) string {
	shown := rs
	if len(shown) > 10 {
		shown = shown[:10]
	}

	var b strings.Builder
	b.WriteString("📋 <b>Your Active Reminders:</b>\n")
	for _, r := range shown {
		b.WriteString("\n")
		b.WriteString(statusBadge(r.NotificationCount))
		b.WriteString(" <b>")
		b.WriteString(tgui.Esc(r.Text).String())
		b.WriteString("</b>")
		if withIDs {
			b.WriteString(" (ID: " + strconv.FormatInt(r.ID, 10) + ")")
		}
		b.WriteString("\n   ⏰ " + tgui.Esc(r.ScheduleTime).String() + " • 🔄 " + formatInterval(r.IntervalDays))
		b.WriteString("\n   📅 Next: " + r.NextNotification.In(loc).Format("01-02 15:04 MST") + "\n")
	}
	if len(rs) > len(shown) {
		b.WriteString("\n<i>... and " + strconv.Itoa(len(rs)-len(shown)) + " more</i>\n")
	}
	if withIDs {
		b.WriteString("\n💡 Use /delete [ID] to remove a reminder")
	} else {
		b.WriteString("\n💡 Use the delete option to remove a reminder")
	}
	return b.String()
}

// statusBadge marks reminders that are escalating with their prompt count.
func statusBadge(count int) string {
	if count > 0 {
		return "⚠️(" + strconv.Itoa(count) + ")"
	}
	return "🔔"
}

func formatInterval(days int) string {
	switch days {
	case 0:
		return "One-time"
	case 1:
		return "Daily"
	case 7:
		return "Weekly"
	case 30:
		return "Monthly"
	default:
		return fmt.Sprintf("Every %d days", days)
	}
}
