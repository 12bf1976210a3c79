package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// memStore is a map-backed Store used by tests and throwaway runs.
// It mirrors sqlite semantics (ErrNotFound, ordering) so services can be
// exercised against either driver.
type memStore struct {
	log logx.Logger

	mu        sync.RWMutex
	nextRemID int64
	nextLogID int64
	reminders map[int64]*Reminder
	users     map[int64]*User
	logs      []*NotificationEntry
}

func openMemory(log logx.Logger) Store {
	return &memStore{
		log:       log,
		nextRemID: 1,
		nextLogID: 1,
		reminders: map[int64]*Reminder{},
		users:     map[int64]*User{},
	}
}

func (s *memStore) Close() error { return nil }

func cloneReminder(r *Reminder) *Reminder {
	cp := *r
	return &cp
}

func cloneUser(u *User) *User {
	cp := *u
	return &cp
}

// ---- reminders ----

func (s *memStore) CreateReminder(_ context.Context, r *Reminder) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusActive
	}
	if r.ChatID == 0 {
		r.ChatID = r.UserID
	}
	r.ID = s.nextRemID
	s.nextRemID++
	s.reminders[r.ID] = cloneReminder(r)
	return r.ID, nil
}

func (s *memStore) GetReminder(_ context.Context, id int64) (*Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReminder(r), nil
}

func (s *memStore) ListRemindersByUser(_ context.Context, userID int64, onlyActive bool) ([]*Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Reminder
	for _, r := range s.reminders {
		if r.UserID != userID {
			continue
		}
		if onlyActive && r.Status != StatusActive {
			continue
		}
		out = append(out, cloneReminder(r))
	}
	sortReminders(out)
	return out, nil
}

func (s *memStore) ListActiveReminders(_ context.Context) ([]*Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Reminder
	for _, r := range s.reminders {
		if r.Status != StatusActive {
			continue
		}
		out = append(out, cloneReminder(r))
	}
	sortReminders(out)
	return out, nil
}

func sortReminders(rs []*Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].NextNotification.Equal(rs[j].NextNotification) {
			return rs[i].NextNotification.Before(rs[j].NextNotification)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *memStore) UpdateReminder(_ context.Context, r *Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reminders[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.reminders[r.ID] = cloneReminder(r)
	return nil
}

func (s *memStore) UpdateReminderStatus(_ context.Context, id int64, status ReminderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) UpdateLastMessageID(_ context.Context, id int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.LastMessageID = messageID
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) UpdateNextNotification(_ context.Context, id int64, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.NextNotification = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) IncrementNotificationCount(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return 0, ErrNotFound
	}
	r.NotificationCount++
	r.UpdatedAt = time.Now().UTC()
	return r.NotificationCount, nil
}

func (s *memStore) DeleteReminder(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *memStore) CountRemindersByStatus(_ context.Context) (map[ReminderStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[ReminderStatus]int{}
	for _, r := range s.reminders {
		out[r.Status]++
	}
	return out, nil
}

// ---- users ----

func (s *memStore) UpsertUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if cur, ok := s.users[u.ID]; ok {
		cur.Username = u.Username
		cur.FirstName = u.FirstName
		cur.UpdatedAt = now
		*u = *cur
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *memStore) GetUser(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memStore) ListUsers(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) SetUserBlocked(_ context.Context, id int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsBlocked = blocked
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) SetUserWhitelisted(_ context.Context, id int64, listed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsWhitelisted = listed
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) SetUserPreferences(_ context.Context, id int64, prefs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Preferences = prefs
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- notification history ----

func (s *memStore) AppendNotificationLog(_ context.Context, e *NotificationEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}
	e.ID = s.nextLogID
	s.nextLogID++
	cp := *e
	s.logs = append(s.logs, &cp)
	return e.ID, nil
}

func (s *memStore) SetNotificationResponse(_ context.Context, reminderID int64, messageID int, response string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	// Newest first.
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if e.ReminderID != reminderID {
			continue
		}
		if messageID != 0 && e.MessageID != messageID {
			continue
		}
		e.Response = response
		e.RespondedAt = at
		return nil
	}
	return nil
}

func (s *memStore) ListNotificationLog(_ context.Context, reminderID int64, limit int) ([]*NotificationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*NotificationEntry
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.logs[i].ReminderID != reminderID {
			continue
		}
		cp := *s.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) PruneNotificationLog(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.logs[:0]
	var removed int64
	for _, e := range s.logs {
		if e.SentAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.logs = kept
	return removed, nil
}
