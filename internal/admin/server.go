// Package admin serves a local HTTP API for operating the bot: login with
// the configured credentials, user moderation, reminder reactivation,
// aggregate stats and broadcasts. It is designed for a loopback bind; put a
// reverse proxy with TLS in front of it before exposing it any wider.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"remindbot/internal/dispatch"
	"remindbot/internal/engine"
	"remindbot/internal/reminders"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/users"
	logx "remindbot/pkg/logx"
)

// Config is the parsed admin section.
type Config struct {
	Enabled  bool
	Addr     string
	Username string
	Password string
	TokenTTL time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:8880"
	}
	if strings.TrimSpace(c.Username) == "" {
		c.Username = "admin"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 12 * time.Hour
	}
	return c
}

// Services are the collaborators the API reads from and acts on. Nil fields
// degrade the affected endpoints instead of crashing them.
type Services struct {
	Reminders *reminders.Service
	Users     *users.Service
	Dispatch  *dispatch.Service
	Engine    *engine.Service
	Store     storage.Store

	// AdapterUp reports transport liveness for /healthz. Nil means unknown.
	AdapterUp func() bool
}

// Server manages the admin HTTP listener. Apply starts, stops or rebinds it
// to follow config reloads.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	serv *Services

	tokens *tokenStore

	cfg     Config
	srv     *http.Server
	ln      net.Listener
	boundTo string // configured addr the listener was opened with
	addr    string // resolved listener addr
}

func New(log logx.Logger, serv *Services) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if serv == nil {
		serv = &Services{}
	}
	return &Server{log: log, serv: serv, tokens: newTokenStore()}
}

// Apply reconciles the server with cfg. Credential and TTL changes take
// effect without dropping the listener; a password change revokes every
// issued token. An enabled section without a password refuses to serve.
func (s *Server) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled || strings.TrimSpace(cfg.Password) == "" {
		if cfg.Enabled {
			s.log.Warn("admin api enabled without a password, refusing to serve")
		}
		s.cfg = cfg
		s.stopLocked(ctx)
		return
	}

	if s.cfg.Password != "" && s.cfg.Password != cfg.Password {
		s.tokens.revokeAll()
		s.log.Info("admin password changed, sessions revoked")
	}

	rebind := s.srv == nil || s.boundTo != cfg.Addr
	s.cfg = cfg
	if !rebind {
		return
	}

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
		s.log.Error("admin listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.srv = srv
	s.ln = ln
	s.boundTo = cfg.Addr
	s.addr = ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("admin api listening", logx.String("addr", addr))
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
	s.boundTo = ""
	s.addr = ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("admin shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("admin api stopped", logx.String("addr", addr))
}

// handler builds the route tree. A fresh gin engine per bind means a
// rebind never serves half-updated routes.
func (s *Server) handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/healthz", s.handleHealthz)

	api := r.Group("/api")
	api.POST("/login", s.handleLogin)

	authed := api.Group("", s.requireAuth())
	{
		authed.POST("/logout", s.handleLogout)
		authed.GET("/stats", s.handleStats)

		authed.GET("/users", s.handleUsers)
		authed.POST("/users/:id/block", s.handleUserAction("block", "user blocked"))
		authed.POST("/users/:id/unblock", s.handleUserAction("unblock", "user unblocked"))
		authed.POST("/users/:id/whitelist", s.handleUserAction("whitelist", "user whitelisted"))
		authed.POST("/users/:id/unwhitelist", s.handleUserAction("unwhitelist", "user removed from whitelist"))
		authed.PUT("/users/:id/preferences", s.handleUserPreferences)
		authed.GET("/users/:id/reminders", s.handleUserReminders)

		authed.POST("/reminders/:id/reactivate", s.handleReactivate)
		authed.POST("/broadcast", s.handleBroadcast)
	}

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.log.Error("admin request failed", fields...)
		} else {
			s.log.Debug("admin request", fields...)
		}
	}
}

// ctxToken is the gin context key carrying the authenticated bearer token.
const ctxToken = "admin_token"

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" || !s.tokens.valid(tok, time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ctxToken, tok)
		c.Next()
	}
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func (s *Server) credentials() (user, pass string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Username, s.cfg.Password, s.cfg.TokenTTL
}

// broadcastTargets resolves every known non-blocked user to a chat target.
func broadcastTargets(us []*storage.User) []kit.ChatTarget {
	out := make([]kit.ChatTarget, 0, len(us))
	for _, u := range us {
		if u.IsBlocked {
			continue
		}
		out = append(out, kit.ChatTarget{ChatID: u.ID})
	}
	return out
}
