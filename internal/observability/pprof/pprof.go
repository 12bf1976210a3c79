// Package pprof runs the optional debug profiling listener. It stays off a
// public bind unless a token guards it or the config explicitly allows an
// insecure exposure.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

const standardPrefix = "/debug/pprof/"

// Config is the parsed pprof section.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Profiling rates applied on every Apply. Zero keeps the Go default.
	MutexProfileFraction int
	BlockProfileRate     int
	MemProfileRate       int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:6060"
	}
	p := strings.TrimSpace(c.Prefix)
	if p == "" {
		p = standardPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	c.Prefix = p
	return c
}

// Server manages the pprof HTTP listener lifecycle.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	cur  Config
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log}
}

// Apply reconciles the listener with cfg and updates the runtime profiling
// rates. A non-loopback bind without a token is refused unless
// AllowInsecure is set.
func (s *Server) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	// Rates apply even while the listener is down so a later enable
	// captures history.
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	if cfg.MemProfileRate > 0 {
		runtime.MemProfileRate = cfg.MemProfileRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.cur = cfg
		s.stopLocked(ctx)
		return
	}

	if !loopbackAddr(cfg.Addr) && cfg.Token == "" && !cfg.AllowInsecure {
		s.log.Warn("pprof on a non-loopback bind needs a token or allow_insecure, refusing",
			logx.String("addr", cfg.Addr))
		s.cur = cfg
		s.stopLocked(ctx)
		return
	}

	if s.srv != nil && s.cur == cfg {
		return
	}
	s.cur = cfg

	s.stopLocked(ctx)
	s.startLocked(cfg)
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) startLocked(cfg Config) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("pprof listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return
	}

	srv := &http.Server{
		Handler:     routes(cfg),
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout stays 0 unless configured: /profile holds the
		// response open for the whole sampling window.
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("pprof server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("pprof enabled",
		logx.String("addr", addr),
		logx.String("prefix", cfg.Prefix),
		logx.Bool("token_set", cfg.Token != ""),
	)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("pprof shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("pprof disabled", logx.String("addr", addr))
}

// routes builds the handler chain: standard pprof mux, optional prefix
// rewrite, optional token guard.
func routes(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(standardPrefix, netpprof.Index)
	mux.HandleFunc(standardPrefix+"cmdline", netpprof.Cmdline)
	mux.HandleFunc(standardPrefix+"profile", netpprof.Profile)
	mux.HandleFunc(standardPrefix+"symbol", netpprof.Symbol)
	mux.HandleFunc(standardPrefix+"trace", netpprof.Trace)

	h := http.Handler(mux)
	if cfg.Prefix != standardPrefix {
		// netpprof.Index resolves profile names against the standard
		// prefix only, so rewrite the path instead of remounting.
		base := strings.TrimSuffix(cfg.Prefix, "/")
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != base && !strings.HasPrefix(r.URL.Path, base+"/") {
				http.NotFound(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = standardPrefix + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, base), "/")
			mux.ServeHTTP(w, r2)
		})
	}
	if cfg.Token != "" {
		h = tokenGuard(cfg.Token, h)
	}
	return h
}

// tokenGuard accepts the token as a bearer header or a ?token= query so
// both browsers and `go tool pprof` URLs work.
func tokenGuard(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			const prefix = "Bearer "
			if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
				got = strings.TrimSpace(h[len(prefix):])
			}
		}
		if got != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
