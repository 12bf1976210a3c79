package engine

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// reconcileSweep repairs drift between storage and the in-memory schedule.
//
// It only touches reminders with NO armed job at all: an armed job (primary
// or follow-up) means the schedule is already live and must not be disturbed,
// so a pending escalation or a snoozed-but-armed reminder stays exactly as
// it is. Lost timers (arm failures, dropped fires) get re-armed here.
func (s *Service) reconcileSweep(ctx context.Context) {
	cfg := s.snapshotCfg()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reminders, err := s.store.ListActiveReminders(ctx)
	if err != nil {
		s.log.Warn("reconcile: listing active reminders failed", logx.Err(err))
		return
	}

	var rearmed int
	for _, r := range reminders {
		if s.HasJobs(r.ID) {
			continue
		}
		now := time.Now()
		next := r.NextNotification

		switch {
		case next.IsZero():
			s.log.Warn("reconcile: active reminder has no due time",
				logx.Int64("reminder_id", r.ID))

		case next.After(now):
			if _, err := s.Schedule(r.ID, next); err != nil {
				s.log.Warn("reconcile: arm failed",
					logx.Int64("reminder_id", r.ID), logx.Err(err))
				continue
			}
			rearmed++
			s.log.Info("reconcile: re-armed lost timer",
				logx.Int64("reminder_id", r.ID),
				logx.Time("due", next),
			)

		default:
			overdue := now.Sub(next)
			if overdue > cfg.SkipAfter {
				// Same dormancy policy as recovery. Debug level because this
				// repeats every sweep until the owner acts.
				s.log.Debug("reconcile: reminder dormant",
					logx.Int64("reminder_id", r.ID),
					logx.Duration("overdue", overdue),
				)
				continue
			}
			if _, err := s.Schedule(r.ID, now.Add(cfg.RescheduleDelay)); err != nil {
				s.log.Warn("reconcile: catch-up arm failed",
					logx.Int64("reminder_id", r.ID), logx.Err(err))
				continue
			}
			rearmed++
		}
	}

	// The inverse pass: drop jobs whose reminder vanished or went terminal.
	for _, job := range s.Jobs() {
		r, err := s.store.GetReminder(ctx, job.ReminderID)
		if err == nil && r.Status == storage.StatusActive {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if s.Cancel(job.ReminderID) {
			s.log.Debug("reconcile: cancelled stale jobs",
				logx.Int64("reminder_id", job.ReminderID))
		}
	}

	if rearmed > 0 {
		s.log.Info("reconcile sweep finished", logx.Int("rearmed", rearmed))
	}
}

// pruneSweep trims old notification history.
func (s *Service) pruneSweep(ctx context.Context) {
	s.cmu.Lock()
	retention := s.mcfg.HistoryRetention
	s.cmu.Unlock()
	if retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-retention)
	removed, err := s.store.PruneNotificationLog(ctx, cutoff)
	if err != nil {
		s.log.Warn("prune: notification history cleanup failed", logx.Err(err))
		return
	}
	if removed > 0 {
		s.log.Info("pruned notification history",
			logx.Int64("removed", removed),
			logx.Time("cutoff", cutoff),
		)
	}
}
