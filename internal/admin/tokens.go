package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenStore holds issued bearer tokens in memory. Tokens do not survive a
// restart; operators log in again.
type tokenStore struct {
	mu sync.Mutex
	m  map[string]time.Time // token -> expiry
}

func newTokenStore() *tokenStore {
	return &tokenStore{m: map[string]time.Time{}}
}

// issue mints a fresh token and sweeps expired ones while it holds the lock.
func (ts *tokenStore) issue(now time.Time, ttl time.Duration) (string, time.Time) {
	tok := uuid.NewString()
	exp := now.Add(ttl)

	ts.mu.Lock()
	for t, e := range ts.m {
		if now.After(e) {
			delete(ts.m, t)
		}
	}
	ts.m[tok] = exp
	ts.mu.Unlock()
	return tok, exp
}

func (ts *tokenStore) valid(tok string, now time.Time) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	exp, ok := ts.m[tok]
	if !ok {
		return false
	}
	if now.After(exp) {
		delete(ts.m, tok)
		return false
	}
	return true
}

func (ts *tokenStore) revoke(tok string) {
	ts.mu.Lock()
	delete(ts.m, tok)
	ts.mu.Unlock()
}

func (ts *tokenStore) revokeAll() {
	ts.mu.Lock()
	ts.m = map[string]time.Time{}
	ts.mu.Unlock()
}
