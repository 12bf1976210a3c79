package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Engine controls reminder timers and fire execution.
	Engine EngineConfig `json:"engine,omitempty"`

	// Reminders holds user-facing defaults applied when a reminder is created
	// without explicit escalation settings.
	Reminders RemindersConfig `json:"reminders,omitempty"`

	Users    UsersConfig    `json:"users,omitempty"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	// Maintenance controls the periodic reconcile/prune sweeps.
	// If omitted, maintenance runs with defaults.
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`

	Admin AdminConfig `json:"admin,omitempty"`
	Pprof PprofConfig `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Unlike most sections this one has no "disabled" state: reminders must
// survive restarts, so the process refuses to start without a usable store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EngineConfig controls the reminder timer engine.
//
// All durations are Go duration strings (e.g. "30s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - fire_concurrency: 3
//   - queue_size: 64
//   - misfire_grace: "300s"
//   - recovery_reschedule_delay: "30s"
//   - recovery_skip_after: "60m"
//   - timezone: process local time
type EngineConfig struct {
	FireConcurrency int `json:"fire_concurrency,omitempty"`
	QueueSize       int `json:"queue_size,omitempty"`

	// MisfireGrace is how far past its due time a timer callback may run
	// and still be treated as on time.
	MisfireGrace string `json:"misfire_grace,omitempty"`

	// RecoveryRescheduleDelay is applied to moderately overdue reminders
	// found during startup recovery.
	RecoveryRescheduleDelay string `json:"recovery_reschedule_delay,omitempty"`

	// RecoverySkipAfter is the overdue cutoff beyond which startup recovery
	// skips a reminder instead of firing it late.
	RecoverySkipAfter string `json:"recovery_skip_after,omitempty"`

	// Timezone used when resolving wall-clock reminder times (e.g. "Asia/Jakarta").
	Timezone string `json:"timezone,omitempty"`
}

// RemindersConfig holds per-reminder defaults.
//
// Defaults (when fields are omitted/zero):
//   - default_interval_minutes: 5
//   - default_max_notifications: 10
//   - snooze_by: "5m"
type RemindersConfig struct {
	DefaultIntervalMinutes  int    `json:"default_interval_minutes,omitempty"`
	DefaultMaxNotifications int    `json:"default_max_notifications,omitempty"`
	SnoozeBy                string `json:"snooze_by,omitempty"`
}

// UsersConfig controls who may talk to the bot.
//
// Mode:
//   - "blocklist" (default): unknown users are registered and allowed,
//     explicitly blocked users are denied.
//   - "whitelist": only whitelisted users are allowed.
type UsersConfig struct {
	Mode      string          `json:"mode,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig is a sliding-window per-user limit on inbound requests.
//
// Defaults: window "60s", max_requests 30.
type RateLimitConfig struct {
	Window      string `json:"window,omitempty"`
	MaxRequests int    `json:"max_requests,omitempty"`
}

// DispatchConfig controls the outbound delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 512
//   - rate_per_sec: 25
//   - send_timeout: "10s"
//   - retry_max: 3
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - breaker.threshold: 5
//   - breaker.cooldown: "30s"
type DispatchConfig struct {
	Workers       int           `json:"workers,omitempty"`
	QueueSize     int           `json:"queue_size,omitempty"`
	RatePerSec    int           `json:"rate_per_sec,omitempty"`
	SendTimeout   string        `json:"send_timeout,omitempty"`
	RetryMax      int           `json:"retry_max,omitempty"`
	RetryBase     string        `json:"retry_base,omitempty"`
	RetryMaxDelay string        `json:"retry_max_delay,omitempty"`
	Breaker       BreakerConfig `json:"breaker,omitempty"`
}

type BreakerConfig struct {
	Threshold int    `json:"threshold,omitempty"`
	Cooldown  string `json:"cooldown,omitempty"`
}

// MaintenanceConfig controls periodic background sweeps.
//
// Schedules are standard 5-field cron expressions.
//
// Defaults (when the section or fields are omitted):
//   - enabled: true
//   - reconcile_schedule: "*/10 * * * *"
//   - prune_schedule: "30 3 * * *"
//   - history_retention_days: 90
type MaintenanceConfig struct {
	Enabled              *bool  `json:"enabled,omitempty"`
	ReconcileSchedule    string `json:"reconcile_schedule,omitempty"`
	PruneSchedule        string `json:"prune_schedule,omitempty"`
	HistoryRetentionDays int    `json:"history_retention_days,omitempty"`
}

// AdminConfig controls the local admin HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8880").
//   - Password is required when enabled; it is never logged.
type AdminConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty"`     // default: "127.0.0.1:8880"
	Username string `json:"username,omitempty"` // default: "admin"
	Password string `json:"password,omitempty"` // required when enabled (do not log)
	TokenTTL string `json:"token_ttl,omitempty"` // default: "12h"
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
