package usertoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps user tokens in process memory. Useful for tests and for hosts without
// a session mechanism of their own.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]map[string]token.UserAccessToken // subject -> entry key -> token
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tokens: make(map[string]map[string]token.UserAccessToken),
	}
}

func (s *InMemoryStore) GetToken(_ context.Context, principal *Principal, parameters oauthmodel.UserAccessTokenParameters) (*token.UserAccessToken, error) {
	if !principal.IsAuthenticated() {
		return nil, fmt.Errorf("principal is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.tokens[principal.Subject]
	if !ok {
		return nil, nil
	}
	t, ok := entries[EntryKey(parameters)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) StoreToken(_ context.Context, principal *Principal, accessToken string, expiration time.Time, refreshToken string, parameters oauthmodel.UserAccessTokenParameters) error {
	if !principal.IsAuthenticated() {
		return fmt.Errorf("principal is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[principal.Subject]; !ok {
		s.tokens[principal.Subject] = make(map[string]token.UserAccessToken)
	}
	s.tokens[principal.Subject][EntryKey(parameters)] = token.UserAccessToken{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiration:   expiration,
	}
	return nil
}

func (s *InMemoryStore) ClearToken(_ context.Context, principal *Principal, parameters oauthmodel.UserAccessTokenParameters) error {
	if !principal.IsAuthenticated() {
		return fmt.Errorf("principal is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.tokens[principal.Subject]
	if !ok {
		return nil
	}
	delete(entries, EntryKey(parameters))

	if len(entries) == 0 {
		delete(s.tokens, principal.Subject)
	}
	return nil
}
