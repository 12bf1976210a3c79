package sdwatch

import (
	"context"
	"net"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

type fakeNotify struct {
	mu     sync.Mutex
	states []string
}

func (f *fakeNotify) notify(_ bool, state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return true, nil
}

func (f *fakeNotify) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

func newFakeWatcher(healthy func() bool, period time.Duration) (*Watcher, *fakeNotify) {
	fn := &fakeNotify{}
	w := New(logx.Nop(), healthy)
	w.notify = fn.notify
	w.period = func(bool) (time.Duration, error) { return period, nil }
	return w, fn
}

func TestReadyAndStoppingStates(t *testing.T) {
	t.Parallel()
	w, fn := newFakeWatcher(nil, 0)

	w.Ready()
	w.Stopping()

	got := fn.all()
	if len(got) != 2 || got[0] != "READY=1" || got[1] != "STOPPING=1" {
		t.Fatalf("states = %v, want [READY=1 STOPPING=1]", got)
	}
}

func TestRunWithoutWatchdogReturns(t *testing.T) {
	t.Parallel()
	w, fn := newFakeWatcher(nil, 0)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if got := fn.all(); len(got) != 0 {
		t.Fatalf("states = %v, want none", got)
	}
}

func TestRunFeedsWatchdog(t *testing.T) {
	t.Parallel()
	w, fn := newFakeWatcher(func() bool { return true }, 40*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(fn.all()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("watchdog fed %d times, want at least 2", len(fn.all()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v, want nil after cancel", err)
	}

	for _, st := range fn.all() {
		if st != "WATCHDOG=1" {
			t.Fatalf("unexpected state %q", st)
		}
	}
}

func TestRunWithholdsWhenUnhealthy(t *testing.T) {
	t.Parallel()
	w, fn := newFakeWatcher(func() bool { return false }, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if got := fn.all(); len(got) != 0 {
		t.Fatalf("states = %v, want none while unhealthy", got)
	}
}

// TestNotifySocket exercises the real sd_notify path against a datagram
// socket standing in for systemd.
func TestNotifySocket(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("sd_notify sockets are linux-only")
	}

	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	w := New(logx.Nop(), nil)
	w.Ready()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read notify datagram: %v", err)
	}
	if got := string(buf[:n]); got != "READY=1" {
		t.Fatalf("datagram = %q, want READY=1", got)
	}
}
