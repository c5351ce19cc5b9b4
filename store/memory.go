package store

import (
	"context"
	"sync"
	"time"

	"github.com/authgate/authgate"
)

// MemoryUserStore is a map-backed [authgate.UserStore] for tests and local
// development.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*authgate.User
	byEmail map[string]string
}

// NewMemoryUserStore describes the newmemoryuserstore operation and its observable behavior.
//
// NewMemoryUserStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*authgate.User),
		byEmail: make(map[string]string),
	}
}

// FindByEmail describes the findbyemail operation and its observable behavior.
//
// FindByEmail may return an error when input validation, dependency calls, or security checks fail.
// FindByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*authgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

// FindByID describes the findbyid operation and its observable behavior.
//
// FindByID may return an error when input validation, dependency calls, or security checks fail.
// FindByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*authgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryUserStore) Create(_ context.Context, user *authgate.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return authgate.ErrUserExists
	}
	s.byID[user.ID] = cloneUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryUserStore) Save(_ context.Context, user *authgate.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[user.ID]
	if !ok {
		return authgate.ErrUserNotFound
	}
	if existing.Email != user.Email {
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.ID
	}
	s.byID[user.ID] = cloneUser(user)
	return nil
}

func cloneUser(u *authgate.User) *authgate.User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}

// MemoryTokenStore is a map-backed [authgate.RefreshTokenStore].
type MemoryTokenStore struct {
	mu      sync.Mutex
	records map[string]authgate.RefreshTokenRecord
	byUser  map[string][]string
}

// NewMemoryTokenStore describes the newmemorytokenstore operation and its observable behavior.
//
// NewMemoryTokenStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryTokenStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		records: make(map[string]authgate.RefreshTokenRecord),
		byUser:  make(map[string][]string),
	}
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryTokenStore) Create(_ context.Context, record authgate.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record
	s.byUser[record.UserID] = append(s.byUser[record.UserID], record.ID)
	return nil
}

// FindLive describes the findlive operation and its observable behavior.
//
// FindLive may return an error when input validation, dependency calls, or security checks fail.
// FindLive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryTokenStore) FindLive(_ context.Context, userID string) ([]authgate.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var live []authgate.RefreshTokenRecord
	for _, id := range s.byUser[userID] {
		record, ok := s.records[id]
		if ok && record.Live(now) {
			live = append(live, record)
		}
	}
	return live, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryTokenStore) Revoke(_ context.Context, recordID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok || record.Revoked {
		return false, nil
	}
	record.Revoked = true
	s.records[recordID] = record
	return true, nil
}

// RevokeAll describes the revokeall operation and its observable behavior.
//
// RevokeAll may return an error when input validation, dependency calls, or security checks fail.
// RevokeAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryTokenStore) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		record, ok := s.records[id]
		if ok && !record.Revoked {
			record.Revoked = true
			s.records[id] = record
		}
	}
	return nil
}

// DeleteAll describes the deleteall operation and its observable behavior.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
// DeleteAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryTokenStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byUser[userID] {
		delete(s.records, id)
	}
	delete(s.byUser, userID)
	return nil
}
