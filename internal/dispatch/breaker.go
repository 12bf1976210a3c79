package dispatch

import (
	"sync"
	"time"
)

// chatState tracks consecutive send failures for a single chat.
//
// Consecutive-failure breaker with cooldown:
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures and, once failures >= threshold,
//     opens the circuit for an exponentially increasing cooldown.
type chatState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

type breakerStore struct {
	mu sync.Mutex
	m  map[int64]*chatState
}

// resetAfter closes a circuit opportunistically when the last failure is old.
const breakerResetAfter = 5 * time.Minute

func (s *breakerStore) get(chatID int64) *chatState {
	if s.m == nil {
		s.m = make(map[int64]*chatState)
	}
	st := s.m[chatID]
	if st == nil {
		st = &chatState{}
		s.m[chatID] = st
	}
	return st
}

func (s *breakerStore) isOpen(now time.Time, chatID int64, threshold int) (bool, time.Time) {
	if threshold < 0 {
		return false, time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(chatID)
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > breakerResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

func (s *breakerStore) record(now time.Time, chatID int64, threshold int, cooldown, maxCooldown time.Duration, failed bool) {
	if threshold < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(chatID)
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > breakerResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}

	if !failed {
		st.fails = 0
		st.openUntil = time.Time{}
		st.lastFailure = time.Time{}
		return
	}

	st.fails++
	st.lastFailure = now
	if st.fails < threshold {
		return
	}

	// Exponential cooldown after tripping.
	pow := st.fails - threshold
	d := cooldown
	for i := 0; i < pow; i++ {
		d *= 2
		if d >= maxCooldown {
			d = maxCooldown
			break
		}
	}
	if d > maxCooldown {
		d = maxCooldown
	}
	st.openUntil = now.Add(d)
}

func (s *breakerStore) snapshot(now time.Time) (total, open int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = len(s.m)
	for _, st := range s.m {
		if st == nil {
			continue
		}
		if !st.openUntil.IsZero() && now.Before(st.openUntil) {
			open++
		}
	}
	return total, open
}
