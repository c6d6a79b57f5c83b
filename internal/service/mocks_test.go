package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, b *models.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking).Clone(), args.Error(1)
}

func (m *mockStore) Subscribe(ctx context.Context, id string, fn func(*models.Booking)) (func(), error) {
	args := m.Called(ctx, id, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func (m *mockStore) Query(ctx context.Context, q models.BookingQuery) (*models.BookingPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingPage), args.Error(1)
}

func (m *mockStore) ConditionalUpdate(ctx context.Context, id string, expected models.BookingStatus, p models.BookingPatch) error {
	return m.Called(ctx, id, expected, p).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetCaregiver(ctx context.Context, id string) (*models.CaregiverProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CaregiverProfile), args.Error(1)
}

func (m *mockDirectory) ListCaregivers(ctx context.Context, f models.CaregiverFilter) ([]*models.CaregiverProfile, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CaregiverProfile), args.Error(1)
}

func (m *mockDirectory) SaveCaregiver(ctx context.Context, p *models.CaregiverProfile) error {
	return m.Called(ctx, p).Error(0)
}

type mockKV struct {
	mock.Mock
}

func (m *mockKV) Claim(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *mockKV) Complete(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockKV) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockKV) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) AcceptanceToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateIntent(ctx context.Context, amount int64, currency, bookingID string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

// memStore is an in-memory BookingStore with a real conditional update.
// readGate, when set, is called after every read; tests use it to line up
// concurrent readers before any of them writes.
type memStore struct {
	mu       sync.Mutex
	seq      int
	records  map[string]*models.Booking
	writes   int
	readGate func()
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.Booking)}
}

func (s *memStore) Insert(_ context.Context, b *models.Booking) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c := b.Clone()
	c.ID = fmt.Sprintf("bk-%d", s.seq)
	s.records[c.ID] = c
	s.writes++
	return c.ID, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	b, ok := s.records[id]
	var out *models.Booking
	if ok {
		out = b.Clone()
	}
	gate := s.readGate
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrNotFound
	}
	if gate != nil {
		gate()
	}
	return out, nil
}

func (s *memStore) Subscribe(_ context.Context, id string, fn func(*models.Booking)) (func(), error) {
	b, err := s.GetByID(context.Background(), id)
	if err != nil {
		return nil, err
	}
	fn(b)
	return func() {}, nil
}

func (s *memStore) Query(_ context.Context, q models.BookingQuery) (*models.BookingPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.records {
		if q.OwnerID != "" && b.OwnerID != q.OwnerID {
			continue
		}
		if q.CaregiverID != "" && b.CaregiverID != q.CaregiverID {
			continue
		}
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return &models.BookingPage{Bookings: out}, nil
}

func (s *memStore) ConditionalUpdate(_ context.Context, id string, expected models.BookingStatus, p models.BookingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != expected {
		return domain.ErrConflict
	}
	b.Apply(p)
	s.writes++
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) get(id string) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

func (s *memStore) put(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[b.ID] = b.Clone()
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
