package identity

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps identities in a map. Used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*Identity
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*Identity),
		now:   time.Now,
	}
}

func (s *MemoryStore) FindByName(_ context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyIdentity(u), nil
}

func (s *MemoryStore) VerifyPassword(ctx context.Context, username, password string) (*Identity, error) {
	u, err := s.FindByName(ctx, username)
	if err != nil {
		if err == ErrUserNotFound {
			return nil, rejectUnknownUser(password)
		}
		return nil, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *MemoryStore) ListClaims(ctx context.Context, username string) (Claims, error) {
	u, err := s.FindByName(ctx, username)
	if err != nil {
		return nil, err
	}
	return u.Claims, nil
}

func (s *MemoryStore) Create(_ context.Context, id Identity, password string, claims ...Claim) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeUsername(id.Username)
	if _, exists := s.users[key]; exists {
		return ErrUserExists
	}

	var set Claims
	for _, c := range claims {
		set = set.Add(c)
	}

	s.users[key] = &Identity{
		Username:     id.Username,
		FullName:     id.FullName,
		PasswordHash: hash,
		Claims:       set,
		CreatedAt:    s.now().UTC(),
	}
	return nil
}

func (s *MemoryStore) AddClaim(_ context.Context, username string, claim Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		return ErrUserNotFound
	}
	u.Claims = u.Claims.Add(claim)
	return nil
}

func (s *MemoryStore) RemoveClaim(_ context.Context, username string, claim Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		return ErrUserNotFound
	}
	u.Claims = u.Claims.Remove(claim)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored identities.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func copyIdentity(u *Identity) *Identity {
	c := *u
	c.Claims = u.Claims.Clone()
	return &c
}
