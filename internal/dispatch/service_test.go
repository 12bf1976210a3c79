package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sends   []sentMsg
	errs    []error // errs[i] is returned for the i-th SendText call
	deletes []kit.MessageRef
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.sends)
	f.sends = append(f.sends, sentMsg{to: to, text: text, opt: opt})
	if idx < len(f.errs) && f.errs[idx] != nil {
		return kit.MessageRef{}, f.errs[idx]
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 100 + idx}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, _ string, _ *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, _ string) error { return nil }

func (f *fakeAdapter) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeAdapter) sentAt(i int) sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[i]
}

func testConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     16,
		RatePerSec:    1000,
		SendTimeout:   time.Second,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}
}

func TestSendPromptReturnsMessageID(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	svc := New(testConfig(), fa, logx.Nop(), nil)

	r := storage.Reminder{ID: 9, ChatID: 1234, Text: "water plants", MaxNotifications: 10}
	id, err := svc.SendPrompt(context.Background(), r)
	if err != nil {
		t.Fatalf("SendPrompt: %v", err)
	}
	if id != 100 {
		t.Fatalf("message id = %d, want 100", id)
	}

	sent := fa.sentAt(0)
	if sent.to.ChatID != 1234 {
		t.Fatalf("chat id = %d, want 1234", sent.to.ChatID)
	}
	if sent.opt == nil || sent.opt.ParseMode != "HTML" {
		t.Fatalf("opt = %+v, want HTML parse mode", sent.opt)
	}
	if sent.opt.ReplyMarkupAdapter == nil {
		t.Fatal("prompt sent without keyboard")
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{errs: []error{errors.New("boom"), errors.New("boom")}}
	cfg := testConfig()
	cfg.RetryMax = 3
	svc := New(cfg, fa, logx.Nop(), nil)

	r := storage.Reminder{ID: 1, ChatID: 5, Text: "x", MaxNotifications: 10}
	if err := svc.SendFinalWarning(context.Background(), r); err != nil {
		t.Fatalf("SendFinalWarning: %v", err)
	}
	if got := fa.sendCount(); got != 3 {
		t.Fatalf("adapter calls = %d, want 3", got)
	}
}

func TestSendNoRetryAborts(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{errs: []error{kit.NoRetry(errors.New("chat not found"))}}
	cfg := testConfig()
	cfg.RetryMax = 3
	svc := New(cfg, fa, logx.Nop(), nil)

	r := storage.Reminder{ID: 1, ChatID: 5, Text: "x", MaxNotifications: 10}
	if err := svc.SendFinalWarning(context.Background(), r); err == nil {
		t.Fatal("want error for permanent failure")
	}
	if got := fa.sendCount(); got != 1 {
		t.Fatalf("adapter calls = %d, want 1 (no retries)", got)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{errs: []error{errors.New("down"), errors.New("down")}}
	cfg := testConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Minute
	svc := New(cfg, fa, logx.Nop(), nil)

	r := storage.Reminder{ID: 1, ChatID: 42, Text: "x", MaxNotifications: 10}
	for i := 0; i < 2; i++ {
		if err := svc.SendFinalWarning(context.Background(), r); err == nil {
			t.Fatalf("send %d: want error", i)
		}
	}

	err := svc.SendFinalWarning(context.Background(), r)
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("third send = %v, want ErrBreakerOpen", err)
	}
	if got := fa.sendCount(); got != 2 {
		t.Fatalf("adapter calls = %d, want 2 (breaker short-circuits)", got)
	}

	// Other chats stay unaffected.
	other := storage.Reminder{ID: 2, ChatID: 43, Text: "x", MaxNotifications: 10}
	if err := svc.SendFinalWarning(context.Background(), other); err != nil {
		t.Fatalf("send to other chat: %v", err)
	}

	if total, open := svc.BreakerStats(); total != 2 || open != 1 {
		t.Fatalf("breaker stats = %d/%d, want 2 tracked, 1 open", total, open)
	}
}

func TestBroadcastQueuesAndDrains(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	svc := New(testConfig(), fa, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	targets := []kit.ChatTarget{{ChatID: 1}, {ChatID: 2}, {ChatID: 3}}
	queued, err := svc.Broadcast(context.Background(), targets, "maintenance tonight", nil)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if queued != 3 {
		t.Fatalf("queued = %d, want 3", queued)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fa.sendCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("broadcast drained %d of 3 sends", fa.sendCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.Stop(context.Background())
	if _, err := svc.Broadcast(context.Background(), targets, "again", nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("Broadcast after stop = %v, want ErrStopped", err)
	}
	if _, err := svc.SendPrompt(context.Background(), storage.Reminder{ID: 1, ChatID: 1, Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("SendPrompt after stop = %v, want ErrStopped", err)
	}
}

func TestDeletePrompt(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	svc := New(testConfig(), fa, logx.Nop(), nil)

	if err := svc.DeletePrompt(context.Background(), 77, 555); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.deletes) != 1 || fa.deletes[0].ChatID != 77 || fa.deletes[0].MessageID != 555 {
		t.Fatalf("deletes = %+v", fa.deletes)
	}
}

func TestRetryDelayHonorsFloodHint(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 10 * time.Second}
	cfg.applyDefaults()

	hint := kit.RetryAfter(errors.New("too many requests"), 2*time.Second)
	d := retryDelay(cfg, 1, hint)
	// Jitter is 0.7..1.3 of the 2s hint.
	if d < 1400*time.Millisecond || d > 2600*time.Millisecond {
		t.Fatalf("delay = %v, want within jitter range of the 2s hint", d)
	}

	plain := retryDelay(cfg, 1, errors.New("boom"))
	if plain > 200*time.Millisecond {
		t.Fatalf("plain delay = %v, want near the 100ms base", plain)
	}
}
