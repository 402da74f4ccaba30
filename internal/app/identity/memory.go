package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps users and refresh tokens in process memory. It backs
// the server's --memory-store mode and handler tests.
type MemoryRepository struct {
	mu      sync.Mutex
	users   map[string]User
	refresh map[string]RefreshToken
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:   map[string]User{},
		refresh: map[string]RefreshToken{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) EnsureSchema(context.Context) error { return nil }

func (m *MemoryRepository) CreateUser(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryRepository) FindUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemoryRepository) FindUserByID(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryRepository) CreateRefreshToken(_ context.Context, token RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token.TokenHash] = token
	return nil
}

// FindRefreshTokenByHash matches the Postgres query: revoked or expired
// tokens are not found.
func (m *MemoryRepository) FindRefreshTokenByHash(_ context.Context, tokenHash string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.refresh[tokenHash]
	if !ok || rt.RevokedAt != nil || !rt.ExpiresAt.After(m.now()) {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (m *MemoryRepository) RevokeRefreshToken(_ context.Context, tokenID string) error {
	m.revoke(func(rt RefreshToken) bool { return rt.TokenID == tokenID })
	return nil
}

func (m *MemoryRepository) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revoke(func(rt RefreshToken) bool { return rt.UserID == userID })
	return nil
}

func (m *MemoryRepository) revoke(match func(RefreshToken) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for hash, rt := range m.refresh {
		if rt.RevokedAt == nil && match(rt) {
			rt.RevokedAt = &now
			m.refresh[hash] = rt
		}
	}
}
