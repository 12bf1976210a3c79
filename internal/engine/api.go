package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Job keys are stable contract: Cancel and the reconcile sweep match on them.
//
//	primary   reminder_<id>
//	follow-up notification_<id>_<unixSecondsOfDueTime>

func primaryKey(reminderID int64) string {
	return "reminder_" + strconv.FormatInt(reminderID, 10)
}

func followUpKey(reminderID int64, due time.Time) string {
	return "notification_" + strconv.FormatInt(reminderID, 10) + "_" + strconv.FormatInt(due.Unix(), 10)
}

func followUpPrefix(reminderID int64) string {
	return "notification_" + strconv.FormatInt(reminderID, 10) + "_"
}

// Schedule arms the primary one-shot job for a reminder. Re-arming the same
// reminder replaces the previous primary job (upsert).
func (s *Service) Schedule(reminderID int64, due time.Time) (string, error) {
	key := primaryKey(reminderID)
	if err := s.arm(key, reminderID, due); err != nil {
		return "", err
	}
	return key, nil
}

// ScheduleFollowUp arms an escalation retry. Each retry carries its own key,
// so outstanding follow-ups never collide and Cancel can sweep them by
// prefix.
func (s *Service) ScheduleFollowUp(reminderID int64, due time.Time) (string, error) {
	key := followUpKey(reminderID, due)
	if err := s.arm(key, reminderID, due); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) arm(key string, reminderID int64, due time.Time) error {
	if s.stopped.Load() {
		return ErrStopped
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()

	// Upsert: stop any existing timer with the same key and bump the version
	// so its pending callback is ignored.
	ver := uint64(1)
	if old, ok := s.jobs[key]; ok {
		if old.timer != nil {
			_ = old.timer.Stop()
		}
		ver = old.ver + 1
	}

	e := &jobEntry{ver: ver, reminderID: reminderID, due: due}
	localVer := ver

	delay := time.Until(due)
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		cur, ok := s.jobs[key]
		if !ok || cur.ver != localVer {
			// Replaced or cancelled since this timer was armed.
			s.tmu.Unlock()
			return
		}
		delete(s.jobs, key)
		s.tmu.Unlock()

		select {
		case s.queue <- fireJob{key: key, reminderID: reminderID, due: due}:
		default:
			// A full queue means fires are backed up; dropping keeps timer
			// callbacks from blocking. The reconcile sweep re-arms lost
			// primaries later.
			s.log.Warn("fire dropped",
				logx.String("key", key),
				logx.Int64("reminder_id", reminderID),
				logx.Err(ErrQueueFull),
			)
		}
	})
	s.jobs[key] = e
	return nil
}

// Cancel removes the primary job and every follow-up for the reminder.
// It reports whether anything was armed; absence is normal, not an error.
func (s *Service) Cancel(reminderID int64) bool {
	pk := primaryKey(reminderID)
	prefix := followUpPrefix(reminderID)

	s.tmu.Lock()
	defer s.tmu.Unlock()

	removed := false
	for key, e := range s.jobs {
		if key != pk && !strings.HasPrefix(key, prefix) {
			continue
		}
		if e.timer != nil {
			_ = e.timer.Stop()
		}
		delete(s.jobs, key)
		removed = true
	}
	return removed
}

// HasJobs reports whether any job (primary or follow-up) is armed for the
// reminder.
func (s *Service) HasJobs(reminderID int64) bool {
	pk := primaryKey(reminderID)
	prefix := followUpPrefix(reminderID)

	s.tmu.Lock()
	defer s.tmu.Unlock()
	for key := range s.jobs {
		if key == pk || strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Jobs returns a due-time ordered snapshot of armed jobs for observability.
func (s *Service) Jobs() []JobInfo {
	s.tmu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for key, e := range s.jobs {
		out = append(out, JobInfo{Key: key, ReminderID: e.reminderID, Due: e.due})
	}
	s.tmu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Due.Equal(out[j].Due) {
			return out[i].Due.Before(out[j].Due)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
