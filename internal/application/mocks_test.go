package application

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/outbox"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/domain/transaction"
	redisinfra "github.com/farmlog/activity-reservation/internal/infrastructure/redis"
)

// === Mock implementations ===

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) HasPending(ctx context.Context, activityID, requesterID string) (bool, error) {
	args := m.Called(ctx, activityID, requesterID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, requesterID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListByActivityOwner(ctx context.Context, ownerID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListAll(ctx context.Context, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, r *reservation.Reservation, from reservation.Status) error {
	args := m.Called(ctx, tx, r, from)
	return args.Error(0)
}

func (m *MockReservationRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

// MockActivityRepository implements activity.Repository
type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) Create(ctx context.Context, a *activity.Activity) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockActivityRepository) GetByID(ctx context.Context, id string) (*activity.Activity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*activity.Activity), args.Error(1)
}

// MockCapacityLedger implements booking.CapacityLedger
type MockCapacityLedger struct {
	mock.Mock
}

func (m *MockCapacityLedger) TryConfirm(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	args := m.Called(ctx, tx, activityID, partySize)
	return args.Error(0)
}

func (m *MockCapacityLedger) Release(ctx context.Context, tx transaction.Tx, activityID string, partySize int) error {
	args := m.Called(ctx, tx, activityID, partySize)
	return args.Error(0)
}

// MockOutboxRepository implements outbox.Repository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Insert(ctx context.Context, tx transaction.Tx, e *outbox.Event) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Event), args.Error(1)
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockLockManager implements redisinfra.LockManagerInterface
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

func (m *MockLockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryInterval time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl, maxRetries, retryInterval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

// MockLock implements redisinfra.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAvailabilityCache implements redisinfra.AvailabilityCacheInterface
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) GetRemaining(ctx context.Context, activityID string) (int, error) {
	args := m.Called(ctx, activityID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) Version(ctx context.Context, activityID string) (int64, error) {
	args := m.Called(ctx, activityID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAvailabilityCache) SetRemaining(ctx context.Context, activityID string, remaining int, version int64, ttl time.Duration) error {
	args := m.Called(ctx, activityID, remaining, version, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, activityID string) error {
	args := m.Called(ctx, activityID)
	return args.Error(0)
}

// versionedCache は世代番号付き残席キャッシュのプロセス内実装
type versionedCache struct {
	mu        sync.Mutex
	remaining map[string]int
	versions  map[string]int64
}

func newVersionedCache() *versionedCache {
	return &versionedCache{remaining: map[string]int{}, versions: map[string]int64{}}
}

func (c *versionedCache) GetRemaining(_ context.Context, activityID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.remaining[activityID]
	if !ok {
		return 0, redisinfra.ErrCacheMiss
	}
	return v, nil
}

func (c *versionedCache) Version(_ context.Context, activityID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[activityID], nil
}

func (c *versionedCache) SetRemaining(_ context.Context, activityID string, remaining int, version int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[activityID] == version {
		c.remaining[activityID] = remaining
	}
	return nil
}

func (c *versionedCache) Invalidate(_ context.Context, activityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[activityID]++
	delete(c.remaining, activityID)
	return nil
}
