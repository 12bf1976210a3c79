package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Mode selects how unknown and unlisted users are treated.
type Mode string

const (
	// ModeBlocklist admits everyone who is not blocked; unknown users are
	// registered on first contact.
	ModeBlocklist Mode = "blocklist"
	// ModeWhitelist admits only whitelisted users; unknown users are
	// rejected without being registered.
	ModeWhitelist Mode = "whitelist"
)

var (
	ErrBlocked        = errors.New("user is blocked")
	ErrNotWhitelisted = errors.New("user is not whitelisted")
	ErrRateLimited    = errors.New("too many requests")
)

// Settings are the access-control knobs. Zero values select the defaults.
type Settings struct {
	Mode Mode
	// RateLimit interactions per RateWindow per user. Defaults 30 per minute.
	RateLimit  int
	RateWindow time.Duration
}

func (s *Settings) applyDefaults() {
	switch Mode(strings.ToLower(string(s.Mode))) {
	case ModeWhitelist:
		s.Mode = ModeWhitelist
	default:
		s.Mode = ModeBlocklist
	}
	if s.RateLimit <= 0 {
		s.RateLimit = 30
	}
	if s.RateWindow <= 0 {
		s.RateWindow = time.Minute
	}
}

// Service gates inbound traffic and carries the operator-facing user
// actions.
type Service struct {
	log     logx.Logger
	store   storage.Store
	bus     eventbus.Bus
	limiter *RateLimiter

	mu  sync.RWMutex
	set Settings
}

func New(set Settings, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	set.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		store:   store,
		bus:     bus,
		limiter: NewRateLimiter(set.RateLimit, set.RateWindow),
		set:     set,
	}
}

func (s *Service) Apply(set Settings) {
	set.applyDefaults()
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	s.limiter.Configure(set.RateLimit, set.RateWindow)
}

func (s *Service) mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Mode
}

// Gate admits or rejects one inbound interaction. The rate limiter runs
// first so blocked users cannot spend storage reads; a store failure
// rejects (fail closed). In blocklist mode an unknown user is registered
// and admitted; in whitelist mode they are rejected without a row.
func (s *Service) Gate(ctx context.Context, userID int64, username, firstName string) error {
	if !s.limiter.Allow(userID) {
		s.log.Warn("rate limit exceeded", logx.Int64("user_id", userID))
		return ErrRateLimited
	}

	mode := s.mode()
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		if mode == ModeWhitelist {
			s.log.Info("unknown user rejected", logx.Int64("user_id", userID))
			return ErrNotWhitelisted
		}
		if _, err := s.Register(ctx, userID, username, firstName); err != nil {
			return err
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	if u.IsBlocked {
		s.log.Info("blocked user rejected", logx.Int64("user_id", userID))
		return ErrBlocked
	}
	if mode == ModeWhitelist && !u.IsWhitelisted {
		s.log.Info("unlisted user rejected", logx.Int64("user_id", userID))
		return ErrNotWhitelisted
	}
	return nil
}

// Register upserts the user row, refreshing the display fields. Block and
// whitelist flags on an existing row survive.
func (s *Service) Register(ctx context.Context, userID int64, username, firstName string) (*storage.User, error) {
	u := &storage.User{ID: userID, Username: username, FirstName: firstName}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("register user %d: %w", userID, err)
	}
	s.log.Debug("user registered", logx.Int64("user_id", userID))
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*storage.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]*storage.User, error) {
	us, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return us, nil
}

// Block denies a user all further interactions. Their reminders stay put;
// fires for them just stop getting past the gate's dispatch callers.
func (s *Service) Block(ctx context.Context, userID int64) error {
	if err := s.store.SetUserBlocked(ctx, userID, true); err != nil {
		return fmt.Errorf("block user %d: %w", userID, err)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeUserBlocked, Data: userID})
	}
	s.log.Info("user blocked", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) Unblock(ctx context.Context, userID int64) error {
	if err := s.store.SetUserBlocked(ctx, userID, false); err != nil {
		return fmt.Errorf("unblock user %d: %w", userID, err)
	}
	s.log.Info("user unblocked", logx.Int64("user_id", userID))
	return nil
}

// Whitelist lists a user, creating the row first when the operator is
// ahead of the user's first contact.
func (s *Service) Whitelist(ctx context.Context, userID int64) error {
	err := s.store.SetUserWhitelisted(ctx, userID, true)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.store.UpsertUser(ctx, &storage.User{ID: userID}); err != nil {
			return fmt.Errorf("create user %d: %w", userID, err)
		}
		err = s.store.SetUserWhitelisted(ctx, userID, true)
	}
	if err != nil {
		return fmt.Errorf("whitelist user %d: %w", userID, err)
	}
	s.log.Info("user whitelisted", logx.Int64("user_id", userID))
	return nil
}

func (s *Service) Unwhitelist(ctx context.Context, userID int64) error {
	if err := s.store.SetUserWhitelisted(ctx, userID, false); err != nil {
		return fmt.Errorf("unwhitelist user %d: %w", userID, err)
	}
	s.log.Info("user unwhitelisted", logx.Int64("user_id", userID))
	return nil
}

// SetPreferences stores the user's free-form preference JSON verbatim. The
// bot never reads it; it exists for whatever sits behind the admin API.
func (s *Service) SetPreferences(ctx context.Context, userID int64, prefs string) error {
	if err := s.store.SetUserPreferences(ctx, userID, prefs); err != nil {
		return fmt.Errorf("set preferences for user %d: %w", userID, err)
	}
	s.log.Info("user preferences updated", logx.Int64("user_id", userID))
	return nil
}

// recentWindow is how far back a registration still counts as recent in
// Stats.
const recentWindow = 30 * 24 * time.Hour

// Stats are the admin dashboard counters.
type Stats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Recent      int `json:"recent"`
	Blocked     int `json:"blocked"`
	Whitelisted int `json:"whitelisted"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	us, err := s.store.ListUsers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list users: %w", err)
	}
	cutoff := time.Now().Add(-recentWindow)

	var st Stats
	st.Total = len(us)
	for _, u := range us {
		if u.IsBlocked {
			st.Blocked++
		}
		if u.IsWhitelisted {
			st.Whitelisted++
		}
		if u.CreatedAt.After(cutoff) {
			st.Recent++
		}
	}
	st.Active = st.Total - st.Blocked
	return st, nil
}
