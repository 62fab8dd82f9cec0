package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"meetings-backend/internal/models"
	"meetings-backend/internal/storage"
)

type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*models.User{}, byEmail: map[string]*models.User{}}
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	if _, ok := m.byEmail[u.Email]; ok {
		return storage.ErrEmailTaken
	}
	u.CreatedAt = time.Now()
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[strings.ToLower(email)], nil
}

func (m *memUsers) UpsertExternalUser(_ context.Context, id, email, provider string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	u := &models.User{ID: id, Email: email, Provider: provider, CreatedAt: time.Now()}
	m.byID[id] = u
	m.byEmail[email] = u
	return u, nil
}

type memAccounts struct {
	mu       sync.Mutex
	balances map[string]int
}

func (a *memAccounts) EnsureAccount(_ context.Context, userID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balances == nil {
		a.balances = map[string]int{}
	}
	if _, ok := a.balances[userID]; !ok {
		a.balances[userID] = 100
	}
	return a.balances[userID], nil
}

type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (r *memRevoker) RevokeToken(jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = map[string]time.Duration{}
	}
	r.revoked[jti] = ttl
	return nil
}

func (r *memRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[jti]
	return ok, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func (n *captureNotifier) Publish(userID string, ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[string][]models.Event{}
	}
	n.events[userID] = append(n.events[userID], ev)
}

type testEnv struct {
	svc      *Service
	users    *memUsers
	accounts *memAccounts
	revoker  *memRevoker
	notifier *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		users:    newMemUsers(),
		accounts: &memAccounts{},
		revoker:  &memRevoker{},
		notifier: &captureNotifier{},
	}
	env.svc = NewService(env.users, env.accounts, issuer, env.revoker, env.notifier, zap.NewNop())
	env.svc.bcryptCost = bcrypt.MinCost
	return env
}
