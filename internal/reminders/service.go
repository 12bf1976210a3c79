package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/engine"
	"remindbot/internal/escalate"
	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Notifier is the outbound surface the lifecycle needs. *dispatch.Service
// implements it; tests substitute a recorder.
type Notifier interface {
	SendPrompt(ctx context.Context, r storage.Reminder) (int, error)
	SendFinalWarning(ctx context.Context, r storage.Reminder) error
	DeletePrompt(ctx context.Context, chatID int64, messageID int) error
}

// Service owns the reminder lifecycle. It is the engine's FireHandler: the
// engine tells it when a reminder is due, it decides what that means.
type Service struct {
	log    logx.Logger
	store  storage.Store
	eng    *engine.Service
	notify Notifier
	bus    eventbus.Bus

	mu  sync.RWMutex
	set Settings

	now func() time.Time
}

func New(set Settings, store storage.Store, eng *engine.Service, notify Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	set.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		store:  store,
		eng:    eng,
		notify: notify,
		bus:    bus,
		set:    set,
		now:    time.Now,
	}
}

// Apply swaps the settings. In-flight operations finish with the snapshot
// they started with.
func (s *Service) Apply(set Settings) {
	set.applyDefaults()
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
}

func (s *Service) settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Location is the timezone schedule times are interpreted in. Display
// surfaces use it so rendered times match what the user typed.
func (s *Service) Location() *time.Location {
	return s.settings().Location
}

// Create validates the input, stores the reminder and arms its primary job.
// The returned row carries the assigned id. A stored row whose arming
// failed is still returned alongside the error; the reconcile sweep will
// arm it on the next pass.
func (s *Service) Create(ctx context.Context, in CreateInput) (*storage.Reminder, error) {
	set := s.settings()
	if err := in.normalize(set); err != nil {
		return nil, err
	}

	now := s.now()
	next, err := NextOccurrence(now, in.ScheduleTime, in.IntervalDays, set.Location)
	if err != nil {
		return nil, err
	}

	r := &storage.Reminder{
		UserID:            in.UserID,
		ChatID:            in.ChatID,
		Text:              in.Text,
		ScheduleTime:      in.ScheduleTime,
		IntervalDays:      in.IntervalDays,
		Status:            storage.StatusActive,
		NextNotification:  next,
		NotifyIntervalMin: in.NotifyIntervalMin,
		MaxNotifications:  in.MaxNotifications,
	}
	id, err := s.store.CreateReminder(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("store reminder: %w", err)
	}

	if _, err := s.eng.Schedule(id, next); err != nil {
		s.log.Error("created reminder not armed",
			logx.Int64("reminder_id", id),
			logx.Err(err),
		)
		return r, fmt.Errorf("reminder %d stored but not armed: %w", id, err)
	}

	s.publish(eventbus.TypeReminderCreated, r, 0, next)
	s.log.Info("reminder created",
		logx.Int64("reminder_id", id),
		logx.Int64("user_id", in.UserID),
		logx.String("schedule", in.ScheduleTime),
		logx.Int("interval_days", in.IntervalDays),
		logx.Time("next_at", next),
	)
	return r, nil
}

// Get loads one reminder without any ownership filter; callers that act on
// behalf of a user go through Confirm/Snooze/Delete instead.
func (s *Service) Get(ctx context.Context, id int64) (*storage.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reminder %d: %w", id, err)
	}
	return r, nil
}

// ListActive returns the owner's active reminders, soonest first.
func (s *Service) ListActive(ctx context.Context, ownerID int64) ([]*storage.Reminder, error) {
	rs, err := s.store.ListRemindersByUser(ctx, ownerID, true)
	if err != nil {
		return nil, fmt.Errorf("list reminders for user %d: %w", ownerID, err)
	}
	return rs, nil
}

// ListByUser returns all of the owner's reminders regardless of status.
func (s *Service) ListByUser(ctx context.Context, ownerID int64) ([]*storage.Reminder, error) {
	rs, err := s.store.ListRemindersByUser(ctx, ownerID, false)
	if err != nil {
		return nil, fmt.Errorf("list reminders for user %d: %w", ownerID, err)
	}
	return rs, nil
}

// Counts returns the number of reminders per lifecycle status.
func (s *Service) Counts(ctx context.Context) (map[storage.ReminderStatus]int, error) {
	counts, err := s.store.CountRemindersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reminders: %w", err)
	}
	return counts, nil
}

// Confirm acknowledges the current occurrence. One-shot reminders complete;
// recurring ones reset their attempt counter and re-arm at the next
// occurrence. Requires an active reminder owned by requesterID.
//
// The returned row reflects the post-confirm state so callers can render it
// without another read.
func (s *Service) Confirm(ctx context.Context, id, requesterID int64) (*storage.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reminder %d: %w", id, err)
	}
	if r.UserID != requesterID {
		return nil, ErrNotOwner
	}
	if r.Status != storage.StatusActive {
		return nil, ErrNotActive
	}

	// Escalation stops now regardless of which branch runs below.
	s.eng.Cancel(id)

	now := s.now()
	s.markResponse(ctx, r, "confirm", now)

	if r.IntervalDays == 0 {
		if err := s.store.UpdateReminderStatus(ctx, id, storage.StatusCompleted); err != nil {
			return nil, fmt.Errorf("complete reminder %d: %w", id, err)
		}
		r.Status = storage.StatusCompleted
		s.publish(eventbus.TypeReminderConfirmed, r, r.NotificationCount, time.Time{})
		s.log.Info("reminder completed",
			logx.Int64("reminder_id", id),
			logx.Int64("user_id", requesterID),
		)
		return r, nil
	}

	set := s.settings()
	next, err := NextOccurrence(now, r.ScheduleTime, r.IntervalDays, set.Location)
	if err != nil {
		return nil, fmt.Errorf("reminder %d schedule %q: %w", id, r.ScheduleTime, err)
	}

	attempt := r.NotificationCount
	r.NotificationCount = 0
	r.LastMessageID = 0
	r.NextNotification = next
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("update reminder %d: %w", id, err)
	}
	if _, err := s.eng.Schedule(id, next); err != nil {
		return r, fmt.Errorf("re-arm reminder %d: %w", id, err)
	}

	s.publish(eventbus.TypeReminderConfirmed, r, attempt, next)
	s.log.Info("reminder confirmed",
		logx.Int64("reminder_id", id),
		logx.Int64("user_id", requesterID),
		logx.Time("next_at", next),
	)
	return r, nil
}

// Snooze pushes the stored due time out by the given minutes (settings
// default when minutes <= 0). It deliberately leaves any armed follow-up
// timer alone: the next fire still happens on the escalation schedule, and
// the moved timestamp is what recovery and displays read.
func (s *Service) Snooze(ctx context.Context, id, requesterID int64, minutes int) (*storage.Reminder, int, error) {
	if minutes <= 0 {
		minutes = int(s.settings().SnoozeBy / time.Minute)
	}

	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("load reminder %d: %w", id, err)
	}
	if r.UserID != requesterID {
		return nil, 0, ErrNotOwner
	}

	now := s.now()
	next := now.Add(time.Duration(minutes) * time.Minute)
	if err := s.store.UpdateNextNotification(ctx, id, next); err != nil {
		return nil, 0, fmt.Errorf("snooze reminder %d: %w", id, err)
	}
	s.markResponse(ctx, r, "snooze", now)
	r.NextNotification = next

	s.publish(eventbus.TypeReminderSnoozed, r, r.NotificationCount, next)
	s.log.Info("reminder snoozed",
		logx.Int64("reminder_id", id),
		logx.Int64("user_id", requesterID),
		logx.Int("minutes", minutes),
	)
	return r, minutes, nil
}

// Delete cancels all jobs and removes the row. Owner-only.
func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return fmt.Errorf("load reminder %d: %w", id, err)
	}
	if r.UserID != requesterID {
		return ErrNotOwner
	}

	s.eng.Cancel(id)
	if err := s.store.DeleteReminder(ctx, id); err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}

	s.publish(eventbus.TypeReminderDeleted, r, r.NotificationCount, time.Time{})
	s.log.Info("reminder deleted",
		logx.Int64("reminder_id", id),
		logx.Int64("user_id", requesterID),
	)
	return nil
}

// Reactivate returns a suspended reminder to service: attempt counter
// cleared, due time recomputed, primary job armed. Operator surface, no
// owner check.
func (s *Service) Reactivate(ctx context.Context, id int64) (*storage.Reminder, error) {
	r, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reminder %d: %w", id, err)
	}
	if r.Status != storage.StatusSuspended {
		return nil, ErrNotSuspended
	}

	set := s.settings()
	next, err := NextOccurrence(s.now(), r.ScheduleTime, r.IntervalDays, set.Location)
	if err != nil {
		return nil, fmt.Errorf("reminder %d schedule %q: %w", id, r.ScheduleTime, err)
	}

	r.Status = storage.StatusActive
	r.NotificationCount = 0
	r.LastMessageID = 0
	r.NextNotification = next
	if err := s.store.UpdateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("update reminder %d: %w", id, err)
	}
	if _, err := s.eng.Schedule(id, next); err != nil {
		return r, fmt.Errorf("re-arm reminder %d: %w", id, err)
	}

	s.publish(eventbus.TypeReminderReactivated, r, 0, next)
	s.log.Info("reminder reactivated",
		logx.Int64("reminder_id", id),
		logx.Time("next_at", next),
	)
	return r, nil
}

// HandleFire runs one due notification. The engine already dropped fires
// outside the misfire grace; everything here starts from a fresh read so a
// confirm or delete that raced the timer wins.
//
// A transport failure leaves the attempt uncounted and arms nothing; the
// reconcile sweep re-arms the primary later.
func (s *Service) HandleFire(ctx context.Context, reminderID int64, due time.Time) error {
	r, err := s.store.GetReminder(ctx, reminderID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("fire for missing reminder", logx.Int64("reminder_id", reminderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reminder %d: %w", reminderID, err)
	}
	if r.Status != storage.StatusActive {
		s.log.Warn("fire skipped, reminder not active",
			logx.Int64("reminder_id", reminderID),
			logx.String("status", string(r.Status)),
		)
		return nil
	}

	// Replace rather than stack prompts. Losing the delete is harmless.
	if r.LastMessageID != 0 {
		if err := s.notify.DeletePrompt(ctx, r.ChatID, r.LastMessageID); err != nil {
			s.log.Debug("previous prompt not deleted",
				logx.Int64("reminder_id", reminderID),
				logx.Int("message_id", r.LastMessageID),
				logx.Err(err),
			)
		}
	}

	msgID, err := s.notify.SendPrompt(ctx, *r)
	if err != nil {
		return fmt.Errorf("reminder %d: %w", reminderID, err)
	}

	now := s.now()
	if err := s.store.UpdateLastMessageID(ctx, reminderID, msgID); err != nil {
		s.log.Warn("message id not persisted",
			logx.Int64("reminder_id", reminderID),
			logx.Err(err),
		)
	}
	if _, err := s.store.AppendNotificationLog(ctx, &storage.NotificationEntry{
		ReminderID: reminderID,
		MessageID:  msgID,
		SentAt:     now,
	}); err != nil {
		s.log.Warn("notification history not recorded",
			logx.Int64("reminder_id", reminderID),
			logx.Err(err),
		)
	}

	newCount, err := s.store.IncrementNotificationCount(ctx, reminderID)
	if err != nil {
		return fmt.Errorf("count attempt for reminder %d: %w", reminderID, err)
	}
	s.publish(eventbus.TypeReminderFired, r, newCount, due)

	if newCount < r.MaxNotifications {
		// Delay grows from the attempt just delivered, i.e. the
		// pre-increment counter.
		delayMin := escalate.NextDelayMinutes(r.NotificationCount, r.NotifyIntervalMin)
		next := now.Add(time.Duration(delayMin) * time.Minute)
		if _, err := s.eng.ScheduleFollowUp(reminderID, next); err != nil {
			return fmt.Errorf("arm follow-up for reminder %d: %w", reminderID, err)
		}
		s.log.Info("reminder fired",
			logx.Int64("reminder_id", reminderID),
			logx.Int("attempt", newCount),
			logx.Int("max", r.MaxNotifications),
			logx.Int("next_in_min", delayMin),
		)
		return nil
	}

	if err := s.notify.SendFinalWarning(ctx, *r); err != nil {
		s.log.Warn("final warning undelivered",
			logx.Int64("reminder_id", reminderID),
			logx.Err(err),
		)
	}
	if err := s.store.UpdateReminderStatus(ctx, reminderID, storage.StatusSuspended); err != nil {
		return fmt.Errorf("suspend reminder %d: %w", reminderID, err)
	}
	s.publish(eventbus.TypeReminderSuspended, r, newCount, time.Time{})
	s.log.Info("reminder suspended after max attempts",
		logx.Int64("reminder_id", reminderID),
		logx.Int("attempts", newCount),
	)
	return nil
}

// markResponse stamps the user's button press on the latest history row.
// History is best-effort everywhere, so failures only log.
func (s *Service) markResponse(ctx context.Context, r *storage.Reminder, response string, at time.Time) {
	if r.LastMessageID == 0 {
		return
	}
	if err := s.store.SetNotificationResponse(ctx, r.ID, r.LastMessageID, response, at); err != nil {
		s.log.Debug("response not recorded",
			logx.Int64("reminder_id", r.ID),
			logx.String("response", response),
			logx.Err(err),
		)
	}
}

func (s *Service) publish(typ string, r *storage.Reminder, attempt int, at time.Time) {
	if s.bus == nil {
		return
	}
	ev := eventbus.ReminderEvent{ReminderID: r.ID, UserID: r.UserID, Attempt: attempt}
	if !at.IsZero() {
		ev.At = at.Unix()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
