//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"premium-access/internal/domain"
	"premium-access/internal/domain/model"
	"premium-access/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// testClock is a movable clock for deterministic expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockTxManager runs the callback without a real transaction; repositories
// accept a nil tx handle.
type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

var _ repository.TransactionManager = mockTxManager{}

// memCodeRepo is an in-memory PremiumCodeRepository.
type memCodeRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.PremiumCode
	byTok map[string]string // normalized token -> id

	SaveFunc func(ctx context.Context, tx repository.Tx, code *model.PremiumCode) error
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{
		byID:  make(map[string]*model.PremiumCode),
		byTok: make(map[string]string),
	}
}

var _ repository.PremiumCodeRepository = (*memCodeRepo)(nil)

func cloneCode(c *model.PremiumCode) *model.PremiumCode {
	cp := *c
	cp.UsedBy = append([]string(nil), c.UsedBy...)
	cp.UsedAt = append([]time.Time(nil), c.UsedAt...)
	return &cp
}

func (m *memCodeRepo) Save(ctx context.Context, tx repository.Tx, code *model.PremiumCode) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.byTok[code.Code]; ok && existingID != code.ID {
		return domain.ErrAlreadyExists
	}
	m.byID[code.ID] = cloneCode(code)
	m.byTok[code.Code] = code.ID
	return nil
}

func (m *memCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PremiumCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(c), nil
}

func (m *memCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PremiumCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTok[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCode(m.byID[id]), nil
}

func (m *memCodeRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PremiumCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PremiumCode
	for _, c := range m.byID {
		if c.HasRedeemer(userID) {
			out = append(out, cloneCode(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCodeRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	return nil
}

// memSessionRepo is an in-memory SessionRepository.
type memSessionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserSession // key userID+"/"+deviceID

	UpsertFunc func(ctx context.Context, sess *model.UserSession) error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[string]*model.UserSession)}
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

func sessKey(userID, deviceID string) string { return userID + "/" + deviceID }

func cloneSession(s *model.UserSession) *model.UserSession {
	cp := *s
	return &cp
}

func (m *memSessionRepo) Upsert(ctx context.Context, sess *model.UserSession) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, sess)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey(sess.UserID, sess.DeviceID)
	if existing, ok := m.store[key]; ok {
		existing.LastActivity = sess.LastActivity
		existing.DeviceInfo = sess.DeviceInfo
		return nil
	}
	m.store[key] = cloneSession(sess)
	return nil
}

func (m *memSessionRepo) Find(ctx context.Context, userID, deviceID string) (*model.UserSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[sessKey(userID, deviceID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memSessionRepo) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey(userID, deviceID)
	if _, ok := m.store[key]; !ok {
		return false, nil
	}
	delete(m.store, key)
	return true, nil
}

func (m *memSessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.store {
		if s.UserID == userID {
			delete(m.store, key)
			n++
		}
	}
	return n, nil
}

func (m *memSessionRepo) ListActive(ctx context.Context, userID string, activeSince time.Time) ([]*model.UserSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserSession
	for _, s := range m.store {
		if s.UserID != userID {
			continue
		}
		if s.LastActivity.Before(activeSince) {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (m *memSessionRepo) CountActive(ctx context.Context, userID string, activeSince time.Time) (int, error) {
	sessions, err := m.ListActive(ctx, userID, activeSince)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (m *memSessionRepo) DeleteStale(ctx context.Context, lastActivityBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.store {
		if s.LastActivity.Before(lastActivityBefore) {
			delete(m.store, key)
			n++
		}
	}
	return n, nil
}

// memLocker is a process-local Locker stand-in.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return "", domain.ErrLockNotAcquired
	}
	token := key + "-token"
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
