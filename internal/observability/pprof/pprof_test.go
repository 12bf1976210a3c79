package pprof

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "remindbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutesServeIndex(t *testing.T) {
	t.Parallel()
	h := routes(Config{}.withDefaults())

	w := get(t, h, "/debug/pprof/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); !strings.Contains(body, "goroutine") {
		t.Fatalf("index body lacks profile listing: %q", body)
	}
}

func TestCustomPrefixRewrites(t *testing.T) {
	t.Parallel()
	h := routes(Config{Prefix: "/ops/pprof/"}.withDefaults())

	w := get(t, h, "/ops/pprof/goroutine?debug=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prefixed profile status = %d, want %d", w.Code, http.StatusOK)
	}

	w = get(t, h, "/debug/pprof/", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("standard prefix status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTokenGuard(t *testing.T) {
	t.Parallel()
	h := routes(Config{Token: "s3cret"}.withDefaults())

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no token", "/debug/pprof/", nil, http.StatusUnauthorized},
		{"wrong token", "/debug/pprof/?token=guess", nil, http.StatusUnauthorized},
		{"query token", "/debug/pprof/?token=s3cret", nil, http.StatusOK},
		{"bearer token", "/debug/pprof/", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if w := get(t, h, tt.path, tt.header); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestApplyLifecycle(t *testing.T) {
	t.Parallel()
	srv := New(logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	srv.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("no listener after enable")
	}

	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	if err != nil {
		t.Fatalf("index request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Unchanged config keeps the listener.
	srv.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	if got := srv.Addr(); got != addr {
		t.Fatalf("Addr after no-op apply = %q, want %q", got, addr)
	}

	srv.Apply(ctx, Config{Enabled: false})
	if got := srv.Addr(); got != "" {
		t.Fatalf("Addr after disable = %q, want empty", got)
	}
}

func TestApplyRefusesInsecurePublicBind(t *testing.T) {
	t.Parallel()
	srv := New(logx.Nop())
	t.Cleanup(func() { srv.Stop(context.Background()) })

	srv.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"})
	if got := srv.Addr(); got != "" {
		t.Fatalf("Addr = %q, want empty for tokenless public bind", got)
	}

	srv.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0", Token: "s3cret"})
	if srv.Addr() == "" {
		t.Fatal("token-guarded public bind refused")
	}
}

func TestLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{"192.168.1.10:6060", false},
		{"no-port", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			if got := loopbackAddr(tt.addr); got != tt.want {
				t.Fatalf("loopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

