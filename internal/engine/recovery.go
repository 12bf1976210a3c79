package engine

import (
	"context"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Recover rebuilds the in-memory schedule from persisted reminder rows.
//
// Policy per active reminder:
//   - due in the future: arm at the stored time
//   - overdue by at most SkipAfter: arm at now+RescheduleDelay (catch-up
//     without a thundering herd at process start)
//   - overdue beyond SkipAfter: leave un-armed and warn; the row stays
//     active in storage until its owner interacts with it
//
// Failures are isolated per row; one bad reminder never aborts the pass.
func (s *Service) Recover(ctx context.Context) error {
	cfg := s.snapshotCfg()
	start := time.Now()

	reminders, err := s.store.ListActiveReminders(ctx)
	if err != nil {
		return err
	}

	var armed, catchup, skipped int
	for _, r := range reminders {
		now := time.Now()
		next := r.NextNotification

		switch {
		case next.IsZero():
			skipped++
			s.log.Warn("recovery: active reminder has no due time",
				logx.Int64("reminder_id", r.ID))
			continue

		case next.After(now):
			if _, err := s.Schedule(r.ID, next); err != nil {
				s.log.Error("recovery: arm failed",
					logx.Int64("reminder_id", r.ID), logx.Err(err))
				continue
			}
			armed++

		default:
			overdue := now.Sub(next)
			if overdue > cfg.SkipAfter {
				skipped++
				s.log.Warn("recovery: reminder too overdue, leaving un-armed",
					logx.Int64("reminder_id", r.ID),
					logx.Duration("overdue", overdue),
				)
				continue
			}
			if _, err := s.Schedule(r.ID, now.Add(cfg.RescheduleDelay)); err != nil {
				s.log.Error("recovery: catch-up arm failed",
					logx.Int64("reminder_id", r.ID), logx.Err(err))
				continue
			}
			catchup++
		}

		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeReminderRecovered,
				Data: eventbus.ReminderEvent{ReminderID: r.ID, UserID: r.UserID, At: next.Unix()},
			})
		}
	}

	s.log.Info("recovery pass finished",
		logx.Int("active", len(reminders)),
		logx.Int("armed", armed),
		logx.Int("catchup", catchup),
		logx.Int("skipped", skipped),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
