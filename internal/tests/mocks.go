package tests

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/mail"
	"rental/internal/redis"
	"rental/internal/repository"
	"rental/internal/service"
)

// ──────────────────────────────────────────────
// MOCK DATABASE
// ──────────────────────────────────────────────

type memState struct {
	rentals  map[string]*domain.RentalRequest
	payments map[string]*domain.Payment
	receipts map[string]*domain.Receipt // keyed by payment ID
	vehicles map[string]*domain.Vehicle
	users    map[string]*domain.User
}

func newMemState() memState {
	return memState{
		rentals:  make(map[string]*domain.RentalRequest),
		payments: make(map[string]*domain.Payment),
		receipts: make(map[string]*domain.Receipt),
		vehicles: make(map[string]*domain.Vehicle),
		users:    make(map[string]*domain.User),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	for k, v := range s.rentals {
		cp := *v
		c.rentals[k] = &cp
	}
	for k, v := range s.payments {
		cp := *v
		c.payments[k] = &cp
	}
	for k, v := range s.receipts {
		cp := *v
		c.receipts[k] = &cp
	}
	for k, v := range s.vehicles {
		cp := *v
		c.vehicles[k] = &cp
	}
	for k, v := range s.users {
		cp := *v
		c.users[k] = &cp
	}
	return c
}

// MockDB is an in-memory implementation of repository.Transactor.
// Transactions run one at a time and roll back by restoring a snapshot.
type MockDB struct {
	mu    sync.Mutex
	state memState

	MaxRetries int

	// Counters for verification
	TxCount        int32
	TxAttemptCount int32
	RollbackCount  int32

	// Error injection
	SerializationFailures int32 // commits to fail with ErrSerialization
}

// NewMockDB creates an empty database.
func NewMockDB() *MockDB {
	return &MockDB{state: newMemState(), MaxRetries: 3}
}

// AddVehicle adds a vehicle to the directory.
func (m *MockDB) AddVehicle(v *domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.state.vehicles[v.ID] = &cp
}

// AddUser adds a user to the directory.
func (m *MockDB) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.state.users[u.ID] = &cp
}

// AddRental adds a rental request directly.
func (m *MockDB) AddRental(r *domain.RentalRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.state.rentals[r.ID] = &cp
}

// AddPayment adds a payment directly.
func (m *MockDB) AddPayment(p *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.state.payments[p.ID] = &cp
}

// GetRental returns a copy of the rental for test assertions.
func (m *MockDB) GetRental(id string) *domain.RentalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.rentals[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// GetPayment returns a copy of the payment for test assertions.
func (m *MockDB) GetPayment(id string) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.payments[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// CountPayments returns how many payments exist for a rental in the given status.
func (m *MockDB) CountPayments(rentalID string, status domain.PaymentStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.state.payments {
		if p.RentalRequestID == rentalID && p.Status == status {
			n++
		}
	}
	return n
}

// PaymentsFor returns every payment of a rental request, oldest first.
func (m *MockDB) PaymentsFor(rentalID string) []*domain.Payment {
	p := &memPayments{s: &memStore{db: m}}
	return p.list(func(p *domain.Payment) bool { return p.RentalRequestID == rentalID })
}

// CountReceipts returns how many receipt records are stored.
func (m *MockDB) CountReceipts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.receipts)
}

func (m *MockDB) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	atomic.AddInt32(&m.TxCount, 1)

	for attempt := 0; ; attempt++ {
		atomic.AddInt32(&m.TxAttemptCount, 1)
		err := m.runOnce(ctx, fn)
		if !errors.Is(err, repository.ErrSerialization) || attempt >= m.MaxRetries {
			return err
		}
	}
}

func (m *MockDB) runOnce(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	// A cancelled context cannot begin a transaction.
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	err := fn(ctx, &memStore{db: m, inTx: true})
	if err == nil && atomic.LoadInt32(&m.SerializationFailures) > 0 {
		atomic.AddInt32(&m.SerializationFailures, -1)
		err = repository.ErrSerialization
	}
	if err != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		m.state = snapshot
	}
	return err
}

func (m *MockDB) Store() repository.Store {
	return &memStore{db: m}
}

// memStore is a view of MockDB. Outside a transaction every call takes the lock.
type memStore struct {
	db   *MockDB
	inTx bool
}

func (s *memStore) guard() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

func (s *memStore) Rentals() repository.RentalRepository   { return &memRentals{s} }
func (s *memStore) Payments() repository.PaymentRepository { return &memPayments{s} }
func (s *memStore) Receipts() repository.ReceiptRepository { return &memReceipts{s} }
func (s *memStore) Vehicles() repository.VehicleDirectory  { return &memVehicles{s} }

// ──────────────────────────────────────────────
// MOCK RENTAL REPOSITORY
// ──────────────────────────────────────────────

type memRentals struct{ s *memStore }

func (r *memRentals) Create(ctx context.Context, rental *domain.RentalRequest) error {
	defer r.s.guard()()
	st := r.s.db.state
	if _, ok := st.rentals[rental.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *rental
	st.rentals[rental.ID] = &cp
	return nil
}

func (r *memRentals) GetByID(ctx context.Context, id string) (*domain.RentalRequest, error) {
	defer r.s.guard()()
	rental, ok := r.s.db.state.rentals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rental
	return &cp, nil
}

func (r *memRentals) GetByIDForUpdate(ctx context.Context, id string) (*domain.RentalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *memRentals) Update(ctx context.Context, rental *domain.RentalRequest) error {
	defer r.s.guard()()
	st := r.s.db.state
	if _, ok := st.rentals[rental.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *rental
	st.rentals[rental.ID] = &cp
	return nil
}

func (r *memRentals) ListBlocking(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.RentalRequest, error) {
	defer r.s.guard()()
	var out []*domain.RentalRequest
	for _, rental := range r.s.db.state.rentals {
		if rental.VehicleID != vehicleID || rental.ID == excludeID || !rental.Status.Blocks() {
			continue
		}
		if clock.Overlaps(start, end, rental.StartDate, rental.EndDate) {
			cp := *rental
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRentals) ListByCustomer(ctx context.Context, customerID string) ([]*domain.RentalRequest, error) {
	return r.list(func(x *domain.RentalRequest) bool { return x.CustomerID == customerID }), nil
}

func (r *memRentals) ListByVehicle(ctx context.Context, vehicleID string) ([]*domain.RentalRequest, error) {
	return r.list(func(x *domain.RentalRequest) bool { return x.VehicleID == vehicleID }), nil
}

func (r *memRentals) ListDueForCompletion(ctx context.Context, today time.Time) ([]*domain.RentalRequest, error) {
	return r.list(func(x *domain.RentalRequest) bool { return x.DueForCompletion(today) }), nil
}

func (r *memRentals) list(keep func(*domain.RentalRequest) bool) []*domain.RentalRequest {
	defer r.s.guard()()
	var out []*domain.RentalRequest
	for _, rental := range r.s.db.state.rentals {
		if keep(rental) {
			cp := *rental
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

type memPayments struct{ s *memStore }

func (r *memPayments) Create(ctx context.Context, payment *domain.Payment) error {
	defer r.s.guard()()
	st := r.s.db.state
	for _, p := range st.payments {
		if p.RentalRequestID == payment.RentalRequestID && p.Status != domain.PaymentStatusFailed {
			return repository.ErrDuplicate
		}
	}
	cp := *payment
	st.payments[payment.ID] = &cp
	return nil
}

func (r *memPayments) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	defer r.s.guard()()
	p, ok := r.s.db.state.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPayments) GetPendingByRental(ctx context.Context, rentalRequestID string) (*domain.Payment, error) {
	defer r.s.guard()()
	for _, p := range r.s.db.state.payments {
		if p.RentalRequestID == rentalRequestID && p.Status == domain.PaymentStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPayments) ListByRental(ctx context.Context, rentalRequestID string) ([]*domain.Payment, error) {
	return r.list(func(p *domain.Payment) bool { return p.RentalRequestID == rentalRequestID }), nil
}

func (r *memPayments) ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Payment, error) {
	return r.list(func(p *domain.Payment) bool {
		return p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff)
	}), nil
}

func (r *memPayments) RecordProviderRef(ctx context.Context, id, providerRef string) error {
	defer r.s.guard()()
	p, ok := r.s.db.state.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.ProviderRef = providerRef
	return nil
}

func (r *memPayments) Settle(ctx context.Context, payment *domain.Payment) error {
	defer r.s.guard()()
	st := r.s.db.state
	existing, ok := st.payments[payment.ID]
	if !ok || existing.Status != domain.PaymentStatusPending {
		return repository.ErrNotFound
	}
	cp := *payment
	st.payments[payment.ID] = &cp
	return nil
}

func (r *memPayments) list(keep func(*domain.Payment) bool) []*domain.Payment {
	defer r.s.guard()()
	var out []*domain.Payment
	for _, p := range r.s.db.state.payments {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ──────────────────────────────────────────────
// MOCK RECEIPT REPOSITORY
// ──────────────────────────────────────────────

type memReceipts struct{ s *memStore }

func (r *memReceipts) Create(ctx context.Context, rec *domain.Receipt) error {
	defer r.s.guard()()
	st := r.s.db.state
	if _, ok := st.receipts[rec.PaymentID]; ok {
		return repository.ErrDuplicate
	}
	cp := *rec
	st.receipts[rec.PaymentID] = &cp
	return nil
}

func (r *memReceipts) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	defer r.s.guard()()
	rec, ok := r.s.db.state.receipts[paymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ──────────────────────────────────────────────
// MOCK VEHICLE DIRECTORY
// ──────────────────────────────────────────────

type memVehicles struct{ s *memStore }

func (r *memVehicles) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	defer r.s.guard()()
	v, ok := r.s.db.state.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memVehicles) LockVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	return r.GetVehicle(ctx, id)
}

func (r *memVehicles) GetUser(ctx context.Context, id string) (*domain.User, error) {
	defer r.s.guard()()
	u, ok := r.s.db.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu     sync.Mutex
	locks  map[string]string // rental request ID -> holder token
	issued int

	AcquireCallCount int32
	ReleaseCallCount int32

	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

func (m *MockLockStore) AcquirePaymentLock(ctx context.Context, rentalRequestID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[rentalRequestID]; held {
		return "", false, nil
	}
	m.issued++
	token := fmt.Sprintf("lock-%d", m.issued)
	m.locks[rentalRequestID] = token
	return token, true, nil
}

func (m *MockLockStore) ReleasePaymentLock(ctx context.Context, rentalRequestID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[rentalRequestID] == token {
		delete(m.locks, rentalRequestID)
	}
	return nil
}

// Hold takes a lock on behalf of another process.
func (m *MockLockStore) Hold(rentalRequestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[rentalRequestID] = "held-elsewhere"
}

// Expire drops a lock as if its TTL had run out.
func (m *MockLockStore) Expire(rentalRequestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, rentalRequestID)
}

// Held reports whether anyone holds the lock.
func (m *MockLockStore) Held(rentalRequestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[rentalRequestID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is a mock implementation of CacheStoreInterface.
type MockCacheStore struct {
	mu       sync.Mutex
	vehicles map[string]*redis.CachedVehicle

	GetCallCount        int32
	HitCount            int32
	InvalidateCallCount int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{vehicles: make(map[string]*redis.CachedVehicle)}
}

func (m *MockCacheStore) GetVehicle(ctx context.Context, vehicleID string) (*redis.CachedVehicle, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	cp := *v
	return &cp, nil
}

func (m *MockCacheStore) SetVehicle(ctx context.Context, vehicle *redis.CachedVehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *vehicle
	m.vehicles[vehicle.ID] = &cp
	return nil
}

func (m *MockCacheStore) InvalidateVehicle(ctx context.Context, vehicleID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vehicles, vehicleID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK SETTLEMENT PROVIDER
// ──────────────────────────────────────────────

// MockSettlementProvider is a mock implementation of SettlementProvider.
type MockSettlementProvider struct {
	mu       sync.Mutex
	requests []service.SettlementRequest

	SettleCallCount int32

	// Error injection
	SettleError error
	Delay       time.Duration // Blocks until the delay passes or ctx is done
	Ref         string

	// OnSettle runs once the charge has gone through, before Settle returns.
	OnSettle func()
}

// NewMockSettlementProvider creates a provider that always succeeds.
func NewMockSettlementProvider() *MockSettlementProvider {
	return &MockSettlementProvider{Ref: "chrg_mock"}
}

func (m *MockSettlementProvider) Settle(ctx context.Context, req service.SettlementRequest) (string, error) {
	atomic.AddInt32(&m.SettleCallCount, 1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.SettleError != nil {
		return "", m.SettleError
	}
	if m.OnSettle != nil {
		m.OnSettle()
	}
	return m.Ref, nil
}

// Requests returns the settlement requests seen so far.
func (m *MockSettlementProvider) Requests() []service.SettlementRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.SettlementRequest(nil), m.requests...)
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER AND MAILER
// ──────────────────────────────────────────────

// MockPublisher records published events.
type MockPublisher struct {
	mu   sync.Mutex
	keys []string

	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.PublishError
}

// Keys returns the routing keys published so far.
func (m *MockPublisher) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// Count returns how many events with the routing key were published.
func (m *MockPublisher) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.keys {
		if k == key {
			n++
		}
	}
	return n
}

// MockMailer records sent messages.
type MockMailer struct {
	mu       sync.Mutex
	messages []mail.Message

	SendError error
}

// NewMockMailer creates a new mock mailer.
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

func (m *MockMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.SendError
}

// Messages returns the messages sent so far.
func (m *MockMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// Ensure mocks implement interfaces.
var (
	_ repository.Transactor      = (*MockDB)(nil)
	_ redis.LockStoreInterface   = (*MockLockStore)(nil)
	_ redis.CacheStoreInterface  = (*MockCacheStore)(nil)
	_ service.SettlementProvider = (*MockSettlementProvider)(nil)
	_ service.EventPublisher     = (*MockPublisher)(nil)
	_ service.Mailer             = (*MockMailer)(nil)
)
