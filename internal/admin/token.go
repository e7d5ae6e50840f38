// internal/admin/token.go
//
// Single-use security tokens for destructive admin actions.
//
// Each reset or populate call must present a token minted by the previous
// response (or by the settings page for the first call).  Tokens are
// random, scoped to one action name, expire after a short TTL, and are
// consumed on first use, so a replayed request fails verification.
package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenTTL bounds how long an issued token stays valid.  Generous enough
// for a human clicking through the admin UI, short enough to limit replay.
const TokenTTL = 12 * time.Hour

// TokenStore is a process-wide nonce registry.  Safe for concurrent use.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time // "action:token" -> expiry
	now    func() time.Time
}

// NewTokenStore builds an empty registry.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]time.Time), now: time.Now}
}

// Issue mints a fresh token bound to action.
func (s *TokenStore) Issue(action string) string {
	tok := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.tokens[action+":"+tok] = s.now().Add(TokenTTL)
	return tok
}

// Consume verifies and invalidates a token.  False for unknown, expired,
// wrong-action, or already-used tokens.
func (s *TokenStore) Consume(action, tok string) bool {
	if tok == "" {
		return false
	}
	key := action + ":" + tok
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[key]
	if !ok {
		return false
	}
	delete(s.tokens, key)
	return s.now().Before(exp)
}

// prune drops expired entries.  Caller holds the lock.
func (s *TokenStore) prune() {
	now := s.now()
	for key, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, key)
		}
	}
}
