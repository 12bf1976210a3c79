package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/engine"
)

// mapEngineConfig validates and converts the engine section. Zero values pass
// through; the engine applies its own documented defaults.
func mapEngineConfig(cfg *Config) (engine.Config, error) {
	var out engine.Config
	if cfg == nil {
		return out, nil
	}
	ec := cfg.Engine

	if ec.FireConcurrency < 0 {
		return out, fmt.Errorf("engine.fire_concurrency must be >= 0")
	}
	if ec.QueueSize < 0 {
		return out, fmt.Errorf("engine.queue_size must be >= 0")
	}
	out.FireConcurrency = ec.FireConcurrency
	out.QueueSize = ec.QueueSize

	var err error
	out.MisfireGrace, err = parseDurationOrDefault("engine.misfire_grace", ec.MisfireGrace, 0)
	if err != nil {
		return out, err
	}
	out.RescheduleDelay, err = parseDurationOrDefault("engine.recovery_reschedule_delay", ec.RecoveryRescheduleDelay, 0)
	if err != nil {
		return out, err
	}
	out.SkipAfter, err = parseDurationOrDefault("engine.recovery_skip_after", ec.RecoverySkipAfter, 0)
	if err != nil {
		return out, err
	}

	if tz := strings.TrimSpace(ec.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return out, fmt.Errorf("engine.timezone: invalid %q: %w", tz, err)
		}
		out.Location = loc
	}
	return out, nil
}

// mapMaintenanceConfig converts the maintenance section, treating an omitted
// section as the documented defaults. The engine reads this only at Start, so
// bad cron specs are rejected here where they can still fail a config load.
func mapMaintenanceConfig(cfg *Config) (engine.MaintenanceConfig, error) {
	out := engine.MaintenanceConfig{
		Enabled:           true,
		ReconcileSchedule: "*/10 * * * *",
		PruneSchedule:     "30 3 * * *",
		HistoryRetention:  90 * 24 * time.Hour,
	}
	if cfg == nil || cfg.Maintenance == nil {
		return out, nil
	}
	mc := cfg.Maintenance

	if mc.Enabled != nil {
		out.Enabled = *mc.Enabled
	}
	if s := strings.TrimSpace(mc.ReconcileSchedule); s != "" {
		out.ReconcileSchedule = s
	}
	if s := strings.TrimSpace(mc.PruneSchedule); s != "" {
		out.PruneSchedule = s
	}
	if mc.HistoryRetentionDays < 0 {
		return out, fmt.Errorf("maintenance.history_retention_days must be >= 0")
	}
	if mc.HistoryRetentionDays > 0 {
		out.HistoryRetention = time.Duration(mc.HistoryRetentionDays) * 24 * time.Hour
	}

	if out.Enabled {
		if _, err := cron.ParseStandard(out.ReconcileSchedule); err != nil {
			return out, fmt.Errorf("maintenance.reconcile_schedule: invalid %q: %w", out.ReconcileSchedule, err)
		}
		if _, err := cron.ParseStandard(out.PruneSchedule); err != nil {
			return out, fmt.Errorf("maintenance.prune_schedule: invalid %q: %w", out.PruneSchedule, err)
		}
	}
	return out, nil
}
