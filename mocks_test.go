package taskman_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-taskman"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements taskman.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*taskman.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*taskman.User)
	return user, args.Error(1)
}

func (m *MockUserStore) GetByUsername(ctx context.Context, username string) (*taskman.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*taskman.User)
	return user, args.Error(1)
}

func (m *MockUserStore) Register(ctx context.Context, data taskman.UserCreate) (*taskman.User, error) {
	args := m.Called(ctx, data)
	user, _ := args.Get(0).(*taskman.User)
	return user, args.Error(1)
}

// MockTokenService implements taskman.TokenService
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Validate(token string) (*taskman.SessionClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*taskman.SessionClaims)
	return claims, args.Error(1)
}

func (m *MockTokenService) Issue(subject string, typ taskman.TokenType, ttl time.Duration) (string, time.Time, error) {
	args := m.Called(subject, typ, ttl)
	exp, _ := args.Get(1).(time.Time)
	return args.String(0), exp, args.Error(2)
}

func (m *MockTokenService) IssuePair(subject string) (taskman.TokenPair, error) {
	args := m.Called(subject)
	pair, _ := args.Get(0).(taskman.TokenPair)
	return pair, args.Error(1)
}

func (m *MockTokenService) Decode(token string) (*taskman.SessionClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*taskman.SessionClaims)
	return claims, args.Error(1)
}

func (m *MockTokenService) DecodeType(token string, typ taskman.TokenType) (*taskman.SessionClaims, error) {
	args := m.Called(token, typ)
	claims, _ := args.Get(0).(*taskman.SessionClaims)
	return claims, args.Error(1)
}

// MockPasswordHasher implements taskman.PasswordAuthenticator
type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) ComparePasswordAndHash(password, hash string) error {
	args := m.Called(password, hash)
	return args.Error(0)
}

type capturingSink struct {
	mu     sync.Mutex
	events []taskman.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt taskman.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []taskman.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]taskman.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}
