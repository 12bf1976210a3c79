package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens
// or the admin password).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.ThreadID != newCfg.Logging.Telegram.ThreadID ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Engine
	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.fire_concurrency", newCfg.Engine.FireConcurrency),
			logx.Int("engine.queue_size", newCfg.Engine.QueueSize),
			logx.String("engine.misfire_grace", strings.TrimSpace(newCfg.Engine.MisfireGrace)),
			logx.String("engine.timezone", strings.TrimSpace(newCfg.Engine.Timezone)),
		)
	}

	// Reminders (per-reminder defaults)
	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Int("reminders.default_interval_minutes", newCfg.Reminders.DefaultIntervalMinutes),
			logx.Int("reminders.default_max_notifications", newCfg.Reminders.DefaultMaxNotifications),
			logx.String("reminders.snooze_by", strings.TrimSpace(newCfg.Reminders.SnoozeBy)),
		)
	}

	// Users (access control)
	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		changed = append(changed, "users")
		attrs = append(attrs,
			logx.String("users.mode", strings.TrimSpace(newCfg.Users.Mode)),
			logx.String("users.rate_limit.window", strings.TrimSpace(newCfg.Users.RateLimit.Window)),
			logx.Int("users.rate_limit.max_requests", newCfg.Users.RateLimit.MaxRequests),
		)
	}

	// Dispatch (outbound pipeline)
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.queue_size", newCfg.Dispatch.QueueSize),
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.retry_max", newCfg.Dispatch.RetryMax),
			logx.Int("dispatch.breaker.threshold", newCfg.Dispatch.Breaker.Threshold),
		)
	}

	// Maintenance: section may be nil (omitted). Treat nil as defaults.
	defM := &MaintenanceConfig{
		ReconcileSchedule:    "*/10 * * * *",
		PruneSchedule:        "30 3 * * *",
		HistoryRetentionDays: 90,
	}
	oldM := oldCfg.Maintenance
	newM := newCfg.Maintenance
	if oldM == nil {
		oldM = defM
	}
	if newM == nil {
		newM = defM
	}
	if !reflect.DeepEqual(*oldM, *newM) {
		changed = append(changed, "maintenance")
		enabled := true
		if newM.Enabled != nil {
			enabled = *newM.Enabled
		}
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", enabled),
			logx.String("maintenance.reconcile_schedule", strings.TrimSpace(newM.ReconcileSchedule)),
			logx.String("maintenance.prune_schedule", strings.TrimSpace(newM.PruneSchedule)),
			logx.Int("maintenance.history_retention_days", newM.HistoryRetentionDays),
		)
	}

	// Admin (never log password)
	if oldCfg.Admin.Enabled != newCfg.Admin.Enabled ||
		strings.TrimSpace(oldCfg.Admin.Addr) != strings.TrimSpace(newCfg.Admin.Addr) ||
		strings.TrimSpace(oldCfg.Admin.Username) != strings.TrimSpace(newCfg.Admin.Username) ||
		strings.TrimSpace(oldCfg.Admin.TokenTTL) != strings.TrimSpace(newCfg.Admin.TokenTTL) ||
		(strings.TrimSpace(oldCfg.Admin.Password) != "") != (strings.TrimSpace(newCfg.Admin.Password) != "") {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
			logx.Bool("admin.password_set", strings.TrimSpace(newCfg.Admin.Password) != ""),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		strings.TrimSpace(oldCfg.Pprof.ReadTimeout) != strings.TrimSpace(newCfg.Pprof.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.WriteTimeout) != strings.TrimSpace(newCfg.Pprof.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Pprof.IdleTimeout) != strings.TrimSpace(newCfg.Pprof.IdleTimeout) ||
		oldCfg.Pprof.MutexProfileFraction != newCfg.Pprof.MutexProfileFraction ||
		oldCfg.Pprof.BlockProfileRate != newCfg.Pprof.BlockProfileRate ||
		oldCfg.Pprof.MemProfileRate != newCfg.Pprof.MemProfileRate ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
