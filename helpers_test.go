package authgate

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

// memUserStore is a minimal in-process UserStore for engine tests.
type memUserStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	byEmail map[string]string

	failSave bool
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *memUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrUserExists
	}
	out := *user
	s.byID[user.ID] = &out
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *memUserStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return ErrStoreUnavailable
	}
	if _, ok := s.byID[user.ID]; !ok {
		return ErrUserNotFound
	}
	out := *user
	s.byID[user.ID] = &out
	return nil
}

func (s *memUserStore) get(t *testing.T, email string) *User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		t.Fatalf("user %q not in store", email)
	}
	out := *s.byID[id]
	return &out
}

// memTokenStore is a minimal in-process RefreshTokenStore for engine tests.
type memTokenStore struct {
	mu      sync.Mutex
	records map[string]RefreshTokenRecord
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{records: make(map[string]RefreshTokenRecord)}
}

func (s *memTokenStore) Create(_ context.Context, record RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *memTokenStore) FindLive(_ context.Context, userID string) ([]RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var live []RefreshTokenRecord
	for _, record := range s.records {
		if record.UserID == userID && record.Live(now) {
			live = append(live, record)
		}
	}
	return live, nil
}

func (s *memTokenStore) Revoke(_ context.Context, recordID string) (bool, error) {
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

func (s *memTokenStore) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		if record.UserID == userID {
			record.Revoked = true
			s.records[id] = record
		}
	}
	return nil
}

func (s *memTokenStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		if record.UserID == userID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memTokenStore) liveCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	count := 0
	for _, record := range s.records {
		if record.UserID == userID && record.Live(now) {
			count++
		}
	}
	return count
}

func (s *memTokenStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// captureSender records dispatched messages and can be told to fail.
type captureSender struct {
	mu       sync.Mutex
	messages []Message
	fail     bool
}

func (s *captureSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp down")
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *captureSender) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var otpPattern = regexp.MustCompile(`\b(\d{6})\b`)

func (s *captureSender) lastOTP(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no messages dispatched")
	}
	match := otpPattern.FindStringSubmatch(s.messages[len(s.messages)-1].Body)
	if match == nil {
		t.Fatalf("no code in message body %q", s.messages[len(s.messages)-1].Body)
	}
	return match[1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-test-access-secret-1!")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-test-refresh-sec-2!!")
	cfg.Password.PasswordCost = 4
	cfg.Password.OTPCost = 4
	cfg.Password.RefreshCost = 4
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *memUserStore
	tokens *memTokenStore
	sender *captureSender
}

func newTestEngine(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	users := newMemUserStore()
	tokens := newMemTokenStore()
	sender := &captureSender{}

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithTokenStore(tokens).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine: engine,
		users:  users,
		tokens: tokens,
		sender: sender,
	}
}

// registerUser creates an account and returns its id.
func (env *testEnv) registerUser(t *testing.T, email, password string) string {
	t.Helper()
	user, err := env.engine.Register(context.Background(), email, password, "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user.ID
}

// loginAndVerify walks the full password+OTP flow and returns the session.
func (env *testEnv) loginAndVerify(t *testing.T, email, password string) *Session {
	t.Helper()
	ctx := context.Background()
	if err := env.engine.Login(ctx, email, password); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	session, err := env.engine.VerifyOTP(ctx, email, env.sender.lastOTP(t))
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	return session
}
