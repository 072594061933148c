// FILE: tokenstore.go
// Package main – Environment-backed TokenStore (spec.md §6.3's narrow
// load_tokens/store_tokens fetch interface; the actual secret backend is
// out of scope).
//
// Reads OAuth1.0a credentials for each environment from process env vars,
// the same getEnv-based lookup idiom config.go/env.go use everywhere else.
// StoreTokens only updates the in-memory copy (spec.md's out-of-scope
// pubsub listener is what would persist an operator-pushed refresh; this
// store just needs to hand back what it was given).
package main

import (
	"strconv"
	"sync"
	"time"
)

// EnvTokenStore loads a TokenSet per environment from ETRADE_* / ETRADE_SANDBOX_*
// environment variables, and keeps operator-pushed updates in memory.
type EnvTokenStore struct {
	mu       sync.Mutex
	override map[string]TokenSet
}

func NewEnvTokenStore() *EnvTokenStore {
	return &EnvTokenStore{override: map[string]TokenSet{}}
}

func (s *EnvTokenStore) LoadTokens(env string) (TokenSet, error) {
	s.mu.Lock()
	if ts, ok := s.override[env]; ok {
		s.mu.Unlock()
		return ts, nil
	}
	s.mu.Unlock()

	prefix := "ETRADE_"
	if env == "sandbox" {
		prefix = "ETRADE_SANDBOX_"
	}
	key := getEnv(prefix+"CONSUMER_KEY", "")
	if key == "" {
		return TokenSet{}, newErr("tokenstore", ErrConfigInvalid, errNoTokenFor(env))
	}
	issuedAt := time.Now().UTC()
	if raw := getEnv(prefix+"TOKEN_ISSUED_AT", ""); raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			issuedAt = time.Unix(unix, 0).UTC()
		}
	}
	return TokenSet{
		ConsumerKey:       key,
		ConsumerSecret:    getEnv(prefix+"CONSUMER_SECRET", ""),
		AccessToken:       getEnv(prefix+"ACCESS_TOKEN", ""),
		AccessTokenSecret: getEnv(prefix+"ACCESS_TOKEN_SECRET", ""),
		IssuedAt:          issuedAt,
		LastUsedAt:        issuedAt,
	}, nil
}

func (s *EnvTokenStore) StoreTokens(env string, t TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[env] = t
	return nil
}

type noTokenError struct{ env string }

func (e noTokenError) Error() string { return "no tokens configured for environment " + e.env }
func errNoTokenFor(env string) error { return noTokenError{env: env} }
