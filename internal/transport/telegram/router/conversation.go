package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"remindbot/internal/reminders"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// cancelLabel is the reply-keyboard button that aborts any open flow.
const cancelLabel = "❌ Cancel"

type convStage uint8

const (
	stageText convStage = iota + 1
	stageTime
	stageInterval
	stageDeleteID
)

func (s convStage) String() string {
	switch s {
	case stageText:
		return "text"
	case stageTime:
		return "time"
	case stageInterval:
		return "interval"
	case stageDeleteID:
		return "delete_id"
	default:
		return "unknown"
	}
}

type convKey struct {
	ChatID int64
	UserID int64
}

type convState struct {
	Stage convStage
	Text  string
	Clock string

	UpdatedAt time.Time
}

// ConversationStore remembers where each (chat, user) pair is in a
// multi-step exchange. Telegram hands us one message at a time; without
// this the /set flow would have nowhere to keep the partial input.
//
// Entries expire after convTTL of inactivity and the map is capped so a
// flood of half-open flows cannot grow it without bound.
type ConversationStore struct {
	mu  sync.Mutex
	m   map[convKey]convState
	ttl time.Duration
	max int
}

const (
	convTTL        = 30 * time.Minute
	maxConvEntries = 1000
)

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		m:   map[convKey]convState{},
		ttl: convTTL,
		max: maxConvEntries,
	}
}

// Begin opens (or restarts) a flow at the given stage.
func (s *ConversationStore) Begin(key convKey, stage convStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.m) >= s.max {
		s.sweepLocked(time.Now())
	}
	s.m[key] = convState{Stage: stage, UpdatedAt: time.Now()}
}

// Get returns a copy of the state for key, expiring it lazily.
func (s *ConversationStore) Get(key convKey) (convState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[key]
	if !ok {
		return convState{}, false
	}
	if time.Since(st.UpdatedAt) > s.ttl {
		delete(s.m, key)
		return convState{}, false
	}
	return st, true
}

// Put stores the advanced state.
func (s *ConversationStore) Put(key convKey, st convState) {
	st.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.m) >= s.max {
		s.sweepLocked(time.Now())
	}
	s.m[key] = st
}

// End closes the flow for key.
func (s *ConversationStore) End(key convKey) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Len reports the number of open flows.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// sweepLocked drops expired entries; if the map is still full it drops the
// stalest entries until one slot is free.
func (s *ConversationStore) sweepLocked(now time.Time) {
	for k, st := range s.m {
		if now.Sub(st.UpdatedAt) > s.ttl {
			delete(s.m, k)
		}
	}
	for len(s.m) >= s.max {
		var oldest convKey
		var oldestAt time.Time
		first := true
		for k, st := range s.m {
			if first || st.UpdatedAt.Before(oldestAt) {
				oldest, oldestAt = k, st.UpdatedAt
				first = false
			}
		}
		delete(s.m, oldest)
	}
}

// routeConversation feeds non-command text into an open flow. Free text
// outside a flow is ignored, same as any other chatter the bot can see.
func (m *CommandManager) routeConversation(root context.Context, up kit.Update, text string) {
	msg := up.Message
	if msg == nil || text == "" {
		return
	}
	key := convKey{ChatID: msg.ChatID, UserID: msg.FromID}
	st, ok := m.conv.Get(key)
	if !ok {
		return
	}

	owners := m.ownersSnapshot()
	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", "conv:"+st.Stage.String()),
	)
	req := &Request{
		Update:      up,
		Chat:        kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:      msg.FromID,
		Command:     "conv:" + st.Stage.String(),
		ReqID:       rid,
		Adapter:     m.adapter,
		Config:      m.cfgm.Get(),
		Logger:      reqLog,
		Services:    m.serv,
		OwnerUserID: owners,
	}

	handle := func(ctx context.Context, r *Request) error {
		return m.convStep(ctx, r, key, st, text)
	}
	final := Chain(
		handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWGate(m.serv),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

// convStep advances one flow by one message.
func (m *CommandManager) convStep(ctx context.Context, req *Request, key convKey, st convState, text string) error {
	if text == cancelLabel {
		m.conv.End(key)
		return m.sendCancelled(ctx, req)
	}

	switch st.Stage {
	case stageText:
		return m.stepText(ctx, req, key, st, text)
	case stageTime:
		return m.stepTime(ctx, req, key, st, text)
	case stageInterval:
		return m.stepInterval(ctx, req, key, st, text)
	case stageDeleteID:
		return m.stepDeleteID(ctx, req, key, text)
	default:
		m.conv.End(key)
		return nil
	}
}

func (m *CommandManager) stepText(ctx context.Context, req *Request, key convKey, st convState, text string) error {
	// Limit mirrors the service-side validation so the flow fails fast.
	if text == "" || utf8.RuneCountInString(text) > 500 {
		_, err := req.Adapter.SendText(ctx, req.Chat,
			"❌ Please enter a valid reminder text (1-500 characters).", nil)
		return err
	}

	st.Text = text
	st.Stage = stageTime
	m.conv.Put(key, st)

	body := "✅ Reminder text: <b>" + tgui.Esc(text).String() + "</b>\n\n" +
		"⏰ Now enter the time (HH:MM format):\n\n" +
		"<i>Examples: 08:30, 14:45, 20:00</i>"
	_, err := req.Adapter.SendText(ctx, req.Chat, body, htmlOpts())
	return err
}

func (m *CommandManager) stepTime(ctx context.Context, req *Request, key convKey, st convState, text string) error {
	if _, _, err := reminders.ParseClock(text); err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"❌ Invalid time format! Please use HH:MM (24-hour format).\n\n"+
				"<i>Examples: 08:30, 14:45, 20:00</i>", htmlOpts())
		return serr
	}

	st.Clock = text
	st.Stage = stageInterval
	m.conv.Put(key, st)

	opts := htmlOpts()
	opts.ReplyMarkupAdapter = tgui.ReplyKB(
		[]string{"0 (One-time)", "1 (Daily)"},
		[]string{"3 (Every 3 days)", "7 (Weekly)"},
		[]string{"30 (Monthly)", "Custom"},
		[]string{cancelLabel},
	)
	body := "⏰ Time set: <b>" + tgui.Esc(text).String() + "</b>\n\n" +
		"🔄 Select repeat interval (in days):"
	_, err := req.Adapter.SendText(ctx, req.Chat, body, opts)
	return err
}

func (m *CommandManager) stepInterval(ctx context.Context, req *Request, key convKey, st convState, text string) error {
	if text == "Custom" {
		_, err := req.Adapter.SendText(ctx, req.Chat,
			"🔢 Enter custom interval in days (0-365):\n\n"+
				"<i>Use 0 for one-time reminders</i>", htmlOpts())
		return err
	}

	// Quick-pick buttons carry a label after the number ("7 (Weekly)");
	// the leading token is the value either way.
	days, err := strconv.Atoi(strings.Fields(text)[0])
	if err != nil || days < 0 || days > 365 {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"❌ Please enter a valid number of days (0-365).\n\n"+
				"<i>Use 0 for one-time reminders</i>", htmlOpts())
		return serr
	}

	r, err := req.Services.Reminders.Create(ctx, reminders.CreateInput{
		UserID:       req.FromID,
		ChatID:       req.Chat.ChatID,
		Text:         st.Text,
		ScheduleTime: st.Clock,
		IntervalDays: days,
	})
	m.conv.End(key)
	if r == nil {
		opts := &kit.SendOptions{ReplyMarkupAdapter: tgui.RemoveKB()}
		_, _ = req.Adapter.SendText(ctx, req.Chat,
			"❌ Failed to create reminder. Please try again later.", opts)
		return err
	}
	if err != nil {
		// Stored but not armed; the reconcile sweep picks it up, so the
		// user still gets their reminder.
		req.Logger.Warn("reminder created without timer", logx.Any("err", err))
	}

	loc := req.Services.Reminders.Location()
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = tgui.RemoveKB()
	body := "✅ <b>Reminder Created Successfully!</b>\n\n" +
		"📝 <b>Text:</b> " + tgui.Esc(r.Text).String() + "\n" +
		"⏰ <b>Time:</b> " + tgui.Esc(r.ScheduleTime).String() + "\n" +
		"🔄 <b>Repeat:</b> " + formatInterval(r.IntervalDays) + "\n\n" +
		"🔔 Next notification: <b>" + r.NextNotification.In(loc).Format("2006-01-02 15:04") + "</b>"
	_, serr := req.Adapter.SendText(ctx, req.Chat, body, opts)
	return serr
}

func (m *CommandManager) stepDeleteID(ctx context.Context, req *Request, key convKey, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		_, serr := req.Adapter.SendText(ctx, req.Chat,
			"❌ Invalid reminder ID. Please enter a number.\n"+
				"Use /view to see your reminders and their IDs.", nil)
		return serr
	}

	// The flow stays open on a miss so the user can retype the ID.
	done, err := m.deleteByID(ctx, req, id)
	if done {
		m.conv.End(key)
	}
	return err
}

func (m *CommandManager) sendCancelled(ctx context.Context, req *Request) error {
	opts := htmlOpts()
	opts.ReplyMarkupAdapter = tgui.RemoveKB()
	_, err := req.Adapter.SendText(ctx, req.Chat,
		"❌ <b>Operation Cancelled</b>\n\n"+
			"Use /set to create a new reminder anytime!", opts)
	return err
}

func htmlOpts() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
}
