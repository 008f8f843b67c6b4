package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paymentAdapter "enrollment/internal/adapters/payment"
	enrollmentDomain "enrollment/internal/domain/enrollment"
	waitlistDomain "enrollment/internal/domain/waitlist"
	workshopDomain "enrollment/internal/domain/workshop"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

// --- mock workshop store ---

type mockWorkshopStore struct {
	mu        sync.Mutex
	workshops map[string]workshopDomain.Workshop
}

func newMockWorkshopStore(workshops ...workshopDomain.Workshop) *mockWorkshopStore {
	m := &mockWorkshopStore{workshops: make(map[string]workshopDomain.Workshop)}
	for _, w := range workshops {
		m.workshops[w.ID] = w
	}
	return m
}

// GetByID implements WorkshopStore for testing.
// PRE: id is non-empty
// POST: returns the workshop or ErrNotFound
func (m *mockWorkshopStore) GetByID(_ context.Context, id string) (workshopDomain.Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workshops[id]
	if !ok {
		return workshopDomain.Workshop{}, workshopDomain.ErrNotFound
	}
	return w, nil
}

func (m *mockWorkshopStore) setCapacity(id string, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.workshops[id]
	w.Capacity = capacity
	m.workshops[id] = w
}

// --- mock enrollment store ---

type mockEnrollmentStore struct {
	mu          sync.Mutex
	enrollments map[string]enrollmentDomain.Enrollment
}

func newMockEnrollmentStore() *mockEnrollmentStore {
	return &mockEnrollmentStore{enrollments: make(map[string]enrollmentDomain.Enrollment)}
}

// Create implements EnrollmentStore for testing.
// PRE: enrollment is valid
// POST: enrollment is persisted
func (m *mockEnrollmentStore) Create(_ context.Context, e enrollmentDomain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.enrollments[e.ID]; exists {
		return errors.New("duplicate enrollment id")
	}
	m.enrollments[e.ID] = e
	return nil
}

// GetByID implements EnrollmentStore for testing.
// PRE: id is non-empty
// POST: returns the enrollment or ErrNotFound
func (m *mockEnrollmentStore) GetByID(_ context.Context, id string) (enrollmentDomain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return enrollmentDomain.Enrollment{}, enrollmentDomain.ErrNotFound
	}
	return e, nil
}

// GetByReference implements EnrollmentStore for testing.
// PRE: paymentRef is non-empty
// POST: returns the enrollment or ErrNotFound
func (m *mockEnrollmentStore) GetByReference(_ context.Context, paymentRef string) (enrollmentDomain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.PaymentReference == paymentRef && paymentRef != "" {
			return e, nil
		}
	}
	return enrollmentDomain.Enrollment{}, enrollmentDomain.ErrNotFound
}

// CountHoldingSeats implements EnrollmentStore for testing.
// POST: returns the count of pending and completed enrollments
func (m *mockEnrollmentStore) CountHoldingSeats(_ context.Context, workshopID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.enrollments {
		if e.WorkshopID == workshopID && e.HoldsSeat() {
			count++
		}
	}
	return count, nil
}

// UpdateStatus implements EnrollmentStore for testing.
// POST: returns true iff the row matched status=from
func (m *mockEnrollmentStore) UpdateStatus(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	m.enrollments[id] = e
	return true, nil
}

// MarkRefunded implements EnrollmentStore for testing.
// POST: returns true iff the row was completed without a refund reference
func (m *mockEnrollmentStore) MarkRefunded(_ context.Context, id, refundRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok || e.Status != enrollmentDomain.StatusCompleted || e.RefundReference != "" {
		return false, nil
	}
	e.Status = enrollmentDomain.StatusRefunded
	e.RefundReference = refundRef
	m.enrollments[id] = e
	return true, nil
}

// SetPaymentReference implements EnrollmentStore for testing.
// POST: returns true iff the row had no reference yet
func (m *mockEnrollmentStore) SetPaymentReference(_ context.Context, id, paymentRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok || e.PaymentReference != "" {
		return false, nil
	}
	e.PaymentReference = paymentRef
	m.enrollments[id] = e
	return true, nil
}

func (m *mockEnrollmentStore) get(id string) enrollmentDomain.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[id]
}

func (m *mockEnrollmentStore) put(e enrollmentDomain.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = e
}

// --- mock waitlist store ---

type mockWaitlistStore struct {
	mu      sync.Mutex
	entries map[string]waitlistDomain.Entry
}

func newMockWaitlistStore() *mockWaitlistStore {
	return &mockWaitlistStore{entries: make(map[string]waitlistDomain.Entry)}
}

// Append implements WaitlistStore for testing.
// PRE: entry is valid
// POST: entry is persisted
func (m *mockWaitlistStore) Append(_ context.Context, e waitlistDomain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.WorkshopID == e.WorkshopID && existing.Position == e.Position {
			return errors.New("duplicate waitlist position")
		}
	}
	m.entries[e.ID] = e
	return nil
}

// GetByToken implements WaitlistStore for testing.
// POST: returns the entry holding the token or ErrNotFound
func (m *mockWaitlistStore) GetByToken(_ context.Context, workshopID, token string) (waitlistDomain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.WorkshopID == workshopID && e.ClaimToken == token && token != "" {
			return e, nil
		}
	}
	return waitlistDomain.Entry{}, waitlistDomain.ErrNotFound
}

// NextPosition implements WaitlistStore for testing.
// POST: returns MAX(position)+1 for the workshop
func (m *mockWaitlistStore) NextPosition(_ context.Context, workshopID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, e := range m.entries {
		if e.WorkshopID == workshopID && e.Position > max {
			max = e.Position
		}
	}
	return max + 1, nil
}

// HeadWaiting implements WaitlistStore for testing.
// POST: returns the waiting entry with the lowest position or ErrNotFound
func (m *mockWaitlistStore) HeadWaiting(_ context.Context, workshopID string) (waitlistDomain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var head waitlistDomain.Entry
	found := false
	for _, e := range m.entries {
		if e.WorkshopID != workshopID || e.Status != waitlistDomain.StatusWaiting {
			continue
		}
		if !found || e.Position < head.Position {
			head = e
			found = true
		}
	}
	if !found {
		return waitlistDomain.Entry{}, waitlistDomain.ErrNotFound
	}
	return head, nil
}

// Offer implements WaitlistStore for testing.
// POST: returns true iff the entry was waiting
func (m *mockWaitlistStore) Offer(_ context.Context, id, token string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != waitlistDomain.StatusWaiting {
		return false, nil
	}
	e.Status = waitlistDomain.StatusClaimOffered
	e.ClaimToken = token
	e.ClaimExpiresAt = expiresAt
	m.entries[id] = e
	return true, nil
}

// MarkClaimed implements WaitlistStore for testing.
// POST: returns true iff the entry held an outstanding offer
func (m *mockWaitlistStore) MarkClaimed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != waitlistDomain.StatusClaimOffered {
		return false, nil
	}
	e.Status = waitlistDomain.StatusClaimed
	m.entries[id] = e
	return true, nil
}

// MarkExpired implements WaitlistStore for testing.
// POST: returns true iff the entry held an outstanding offer; token cleared
func (m *mockWaitlistStore) MarkExpired(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != waitlistDomain.StatusClaimOffered {
		return false, nil
	}
	e.Status = waitlistDomain.StatusExpired
	e.ClaimToken = ""
	e.ClaimExpiresAt = time.Time{}
	m.entries[id] = e
	return true, nil
}

// Requeue implements WaitlistStore for testing.
// POST: returns true iff the entry was claim_offered or claimed
func (m *mockWaitlistStore) Requeue(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || (e.Status != waitlistDomain.StatusClaimOffered && e.Status != waitlistDomain.StatusClaimed) {
		return false, nil
	}
	e.Status = waitlistDomain.StatusWaiting
	e.ClaimToken = ""
	e.ClaimExpiresAt = time.Time{}
	m.entries[id] = e
	return true, nil
}

// ListExpiredOffers implements WaitlistStore for testing.
// POST: returns claim_offered entries with expiry at or before now
func (m *mockWaitlistStore) ListExpiredOffers(_ context.Context, now time.Time) ([]waitlistDomain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []waitlistDomain.Entry
	for _, e := range m.entries {
		if e.OfferExpired(now) {
			due = append(due, e)
		}
	}
	return due, nil
}

func (m *mockWaitlistStore) get(id string) waitlistDomain.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

// --- mock dedup store ---

type mockDedupStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMockDedupStore() *mockDedupStore {
	return &mockDedupStore{seen: make(map[string]time.Time)}
}

// MarkSeen implements DedupStore for testing.
// POST: returns true iff the id was not already recorded
func (m *mockDedupStore) MarkSeen(_ context.Context, eventID string, receivedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[eventID]; dup {
		return false, nil
	}
	m.seen[eventID] = receivedAt
	return true, nil
}

// Forget implements DedupStore for testing.
// POST: the id is fresh again
func (m *mockDedupStore) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

// PurgeBefore implements DedupStore for testing.
// POST: returns the number of marks removed
func (m *mockDedupStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, id)
			purged++
		}
	}
	return purged, nil
}

// --- mock payment provider ---

type mockProvider struct {
	checkoutCalls int32
	refundCalls   int32
	failCheckout  bool
	failRefund    bool
}

// CreateCheckout implements the payment Provider for testing.
// POST: returns a deterministic reference derived from the enrollment id
func (m *mockProvider) CreateCheckout(_ context.Context, req paymentAdapter.CheckoutRequest) (paymentAdapter.Checkout, error) {
	atomic.AddInt32(&m.checkoutCalls, 1)
	if m.failCheckout {
		return paymentAdapter.Checkout{}, errors.New("provider unavailable")
	}
	return paymentAdapter.Checkout{
		Reference: "cs-" + req.EnrollmentID,
		URL:       "https://pay.test/cs-" + req.EnrollmentID,
	}, nil
}

// CreateRefund implements the payment Provider for testing.
// POST: returns a deterministic refund reference
func (m *mockProvider) CreateRefund(_ context.Context, paymentReference string, _ int64, _ string, _ string) (string, error) {
	atomic.AddInt32(&m.refundCalls, 1)
	if m.failRefund {
		return "", errors.New("provider unavailable")
	}
	return "re-" + paymentReference, nil
}

// --- counting notifier ---

type countingNotifier struct {
	mu        sync.Mutex
	confirmed []string // enrollment ids
	offered   []string // waitlist entry ids
	refunded  []string // enrollment ids
}

func (n *countingNotifier) EnrollmentConfirmed(_ context.Context, e enrollmentDomain.Enrollment, _ workshopDomain.Workshop) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, e.ID)
}

func (n *countingNotifier) ClaimOffered(_ context.Context, e waitlistDomain.Entry, _ workshopDomain.Workshop) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offered = append(n.offered, e.ID)
}

func (n *countingNotifier) RefundIssued(_ context.Context, e enrollmentDomain.Enrollment, _ workshopDomain.Workshop) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded = append(n.refunded, e.ID)
}

func (n *countingNotifier) offeredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.offered)
}

// --- test fixture ---

type fixture struct {
	workshops   *mockWorkshopStore
	enrollments *mockEnrollmentStore
	waitlist    *mockWaitlistStore
	dedup       *mockDedupStore
	provider    *mockProvider
	notifier    *countingNotifier
	core        *Core

	clockMu sync.Mutex
	clock   time.Time
}

// now is the fixture's settable clock, injected as the core's Now.
func (f *fixture) now() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.clock
}

// setNow moves the fixture clock.
func (f *fixture) setNow(t time.Time) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = t
}

// seqID returns a concurrency-safe sequential id generator.
func seqID(prefix string) func() string {
	var n int32
	return func() string {
		return fmt.Sprintf("%s-%03d", prefix, atomic.AddInt32(&n, 1))
	}
}

// newFixture wires a core over mock stores with deterministic time and ids.
func newFixture(workshops ...workshopDomain.Workshop) *fixture {
	f := &fixture{
		workshops:   newMockWorkshopStore(workshops...),
		enrollments: newMockEnrollmentStore(),
		waitlist:    newMockWaitlistStore(),
		dedup:       newMockDedupStore(),
		provider:    &mockProvider{},
		notifier:    &countingNotifier{},
		clock:       fixedTime,
	}
	tokens := seqID("tok")
	f.core = NewCore(
		Config{ClaimTTL: 48 * time.Hour, DedupRetention: 72 * time.Hour},
		Deps{
			WorkshopStore:   f.workshops,
			EnrollmentStore: f.enrollments,
			WaitlistStore:   f.waitlist,
			DedupStore:      f.dedup,
			Provider:        f.provider,
			Notifier:        f.notifier,
			Now:             f.now,
			GenerateID:      seqID("id"),
			GenerateToken:   func() (string, error) { return tokens(), nil },
		},
	)
	return f
}

func smallWorkshop(id string, capacity int, waitlist bool) workshopDomain.Workshop {
	return workshopDomain.Workshop{
		ID:              id,
		Title:           "Test Workshop",
		Capacity:        capacity,
		WaitlistEnabled: waitlist,
		PriceCents:      4500,
		Currency:        "nzd",
	}
}

func customer(name string) enrollmentDomain.Customer {
	return enrollmentDomain.Customer{Name: name, Email: name + "@example.com"}
}
