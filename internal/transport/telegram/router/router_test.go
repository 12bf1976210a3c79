package router

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/engine"
	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/users"
	logx "remindbot/pkg/logx"
)

type sentText struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type editedText struct {
	ref  kit.MessageRef
	text string
	opt  *kit.SendOptions
}

type answered struct {
	id   string
	text string
}

// recAdapter records every outbound call so tests can assert on the exact
// conversation the bot had.
type recAdapter struct {
	mu      sync.Mutex
	sends   []sentText
	edits   []editedText
	answers []answered
	deletes []kit.MessageRef
}

func (a *recAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *recAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *recAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, sentText{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 500 + len(a.sends)}, nil
}

func (a *recAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, editedText{ref: ref, text: text, opt: opt})
	return nil
}

func (a *recAdapter) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, ref)
	return nil
}

func (a *recAdapter) AnswerCallback(_ context.Context, id string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, answered{id: id, text: text})
	return nil
}

func (a *recAdapter) allSends() []sentText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentText(nil), a.sends...)
}

func (a *recAdapter) allEdits() []editedText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]editedText(nil), a.edits...)
}

func (a *recAdapter) allAnswers() []answered {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]answered(nil), a.answers...)
}

func (a *recAdapter) lastSend(t *testing.T) sentText {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sends) == 0 {
		t.Fatal("no messages sent")
	}
	return a.sends[len(a.sends)-1]
}

type nopNotifier struct{}

func (nopNotifier) SendPrompt(context.Context, storage.Reminder) (int, error) { return 1, nil }
func (nopNotifier) SendFinalWarning(context.Context, storage.Reminder) error  { return nil }
func (nopNotifier) DeletePrompt(context.Context, int64, int) error            { return nil }

type testEnv struct {
	m   *CommandManager
	ad  *recAdapter
	rem *reminders.Service
	usr *users.Service
	eng *engine.Service
	st  storage.Store
}

func newTestEnv(t *testing.T, owners ...int64) *testEnv {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	eng := engine.New(engine.Config{}, engine.MaintenanceConfig{}, st, logx.Nop(), nil)
	rem := reminders.New(reminders.Settings{Location: time.UTC}, st, eng, nopNotifier{}, logx.Nop(), nil)
	usr := users.New(users.Settings{}, st, logx.Nop(), nil)

	cfgm := config.NewConfigManager("")
	cfgm.Commit(&config.Config{})

	ad := &recAdapter{}
	m := NewCommandManager(logx.Nop(), ad, cfgm, &Services{
		Reminders: rem,
		Users:     usr,
		Engine:    eng,
	}, owners)
	cmds, cbs := m.BuiltinRegistry()
	m.SetRegistry(cmds, cbs)

	return &testEnv{m: m, ad: ad, rem: rem, usr: usr, eng: eng, st: st}
}

// runJobs drains exactly n queued handler jobs synchronously, without
// the dispatch loop.
func runJobs(t *testing.T, m *CommandManager, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case job := <-m.jobs:
			job()
		default:
			t.Fatalf("job %d of %d was not enqueued", i+1, n)
		}
	}
	select {
	case <-m.jobs:
		t.Fatal("more jobs enqueued than expected")
	default:
	}
}

func textUpdate(chatID, fromID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:            1,
		ChatID:        chatID,
		FromID:        fromID,
		FromUsername:  "tester",
		FromFirstName: "Test",
		Text:          text,
	}}
}

func groupUpdate(chatID, fromID int64, text string) kit.Update {
	up := textUpdate(chatID, fromID, text)
	up.Message.IsGroup = true
	return up
}

func callbackUpdate(chatID, fromID int64, messageID int, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID:            "cbq-1",
		FromID:        fromID,
		FromUsername:  "tester",
		FromFirstName: "Test",
		ChatID:        chatID,
		MessageID:     messageID,
		Data:          data,
	}}
}

// deliver routes one update and drains the jobs it queued.
func (e *testEnv) deliver(t *testing.T, up kit.Update, jobs int) {
	t.Helper()
	e.m.routeUpdate(context.Background(), up)
	runJobs(t, e.m, jobs)
}

func remCreate(userID int64, text, clock string, days int) reminders.CreateInput {
	return reminders.CreateInput{
		UserID:       userID,
		ChatID:       userID,
		Text:         text,
		ScheduleTime: clock,
		IntervalDays: days,
	}
}

func itoa64(id int64) string {
	return strconv.FormatInt(id, 10)
}
