package adapter

import (
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

func TestWireErr(t *testing.T) {
	t.Parallel()

	if wireErr(nil) != nil {
		t.Fatal("wireErr(nil) != nil")
	}

	flood := tele.FloodError{
		Error:      &tele.Error{Code: 429, Description: "Too Many Requests: retry after 14"},
		RetryAfter: 14,
	}
	var ra kit.RetryAfterError
	if got := wireErr(flood); !errors.As(got, &ra) {
		t.Fatalf("flood not classified: %v", got)
	} else if ra.RetryAfter() != 14*time.Second {
		t.Errorf("RetryAfter = %v, want 14s", ra.RetryAfter())
	}

	blocked := &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	if got := wireErr(blocked); !kit.IsNoRetry(got) {
		t.Errorf("403 not marked permanent: %v", got)
	}

	gone := &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	if got := wireErr(gone); !kit.IsNoRetry(got) {
		t.Errorf("chat not found not marked permanent: %v", got)
	}

	other := &tele.Error{Code: 400, Description: "Bad Request: message is too long"}
	if got := wireErr(other); kit.IsNoRetry(got) {
		t.Errorf("retryable 400 marked permanent: %v", got)
	}

	plain := errors.New("connection reset")
	if got := wireErr(plain); got != plain || kit.IsNoRetry(got) {
		t.Errorf("plain error changed: %v", got)
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("hello", 4000, ""); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("short text split = %v", got)
	}

	// Prefers the newline near the window end.
	long := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90)
	got := splitTelegramText(long, 100, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if !strings.HasSuffix(got[0], "a") || strings.Contains(got[0], "b") {
		t.Errorf("first chunk crossed the newline: %q", got[0])
	}

	// Never splits inside an HTML tag.
	html := strings.Repeat("x", 95) + "<b>bold</b>"
	for _, chunk := range splitTelegramText(html, 100, "HTML") {
		if strings.Count(chunk, "<") != strings.Count(chunk, ">") {
			t.Errorf("chunk has dangling tag: %q", chunk)
		}
	}
}
