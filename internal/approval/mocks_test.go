package approval_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/history"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

// mockRepository keeps payments in memory and honours the version check.
type mockRepository struct {
	mu       sync.Mutex
	payments map[int64]payment.Payment
	nextID   int64
	ledger   *history.MemoryLedger

	shouldFail  bool
	failApply   bool
	readBarrier *sync.WaitGroup
}

func newMockRepository(ledger *history.MemoryLedger) *mockRepository {
	return &mockRepository{
		payments: make(map[int64]payment.Payment),
		ledger:   ledger,
	}
}

func (m *mockRepository) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

func (m *mockRepository) SetFailApply(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failApply = fail
}

func (m *mockRepository) SetReadBarrier(wg *sync.WaitGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBarrier = wg
}

func (m *mockRepository) Create(_ context.Context, p *payment.Payment, voucher approval.VoucherFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return fmt.Errorf("%w: mock failure", approval.ErrStoreUnavailable)
	}

	m.nextID++
	p.ID = m.nextID
	if voucher != nil {
		v := voucher(p.ID, p.CreatedAt)
		p.VoucherNumber = &v
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*payment.Payment, error) {
	m.mu.Lock()
	p, ok := m.payments[id]
	fail := m.shouldFail
	barrier := m.readBarrier
	m.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: mock failure", approval.ErrStoreUnavailable)
	}
	if !ok {
		return nil, approval.ErrPaymentNotFound
	}
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return &p, nil
}

func (m *mockRepository) GetByVerificationToken(_ context.Context, token string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.VerificationToken == token {
			found := p
			return &found, nil
		}
	}
	return nil, approval.ErrPaymentNotFound
}

func (m *mockRepository) ApplyTransition(ctx context.Context, change *approval.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail || m.failApply {
		return fmt.Errorf("%w: mock failure", approval.ErrStoreUnavailable)
	}

	stored, ok := m.payments[change.Payment.ID]
	if !ok {
		return approval.ErrPaymentNotFound
	}
	if stored.Version != change.ExpectedVersion {
		return approval.ErrConcurrentModification
	}

	if _, err := m.ledger.Record(ctx, change.Entry); err != nil {
		return fmt.Errorf("%w: %w", approval.ErrStoreUnavailable, err)
	}
	next := *change.Payment
	next.Version = change.ExpectedVersion + 1
	m.payments[next.ID] = next
	return nil
}

func (m *mockRepository) snapshot(id int64) payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *mockRepository) put(p payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
}

type mockPoster struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockPoster) Post(_ context.Context, p *payment.Payment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("LEDGER-%d", p.ID), nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type failingResolver struct{}

func (failingResolver) HasCapability(context.Context, int64, permission.Capability) (bool, error) {
	return false, errors.New("connection refused")
}
