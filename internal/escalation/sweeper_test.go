package escalation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/escalation"
	"github.com/frahmantamala/payment-approval/internal/notification"
)

func TestEscalation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Escalation Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticPayments struct {
	payments []*payment.Payment
	err      error
}

func (s *staticPayments) ListInStates(_ context.Context, states []payment.State) ([]*payment.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*payment.Payment
	for _, p := range s.payments {
		for _, st := range states {
			if p.LifecycleState == st {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type logRow struct {
	id     int64
	claim  escalation.Claim
	status string
	key    string
}

type memLog struct {
	mu   sync.Mutex
	rows []*logRow
	keys map[string]bool
}

func newMemLog() *memLog {
	return &memLog{keys: make(map[string]bool)}
}

func (m *memLog) SentSince(_ context.Context, paymentID int64, kind notification.Kind, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.claim.PaymentID == paymentID && r.claim.Kind == kind && r.status != "failed" && !r.claim.At.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLog) Claim(_ context.Context, c escalation.Claim) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[c.DedupeKey] {
		return 0, false, nil
	}
	m.keys[c.DedupeKey] = true
	row := &logRow{id: int64(len(m.rows) + 1), claim: c, status: "pending", key: c.DedupeKey}
	m.rows = append(m.rows, row)
	return row.id, true, nil
}

func (m *memLog) MarkSent(_ context.Context, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id-1].status = "sent"
	return nil
}

func (m *memLog) MarkFailed(_ context.Context, id int64, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id-1]
	row.status = "failed"
	delete(m.keys, row.key)
	row.key = ""
	return nil
}

func (m *memLog) count(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.status == status {
			n++
		}
	}
	return n
}

type delivery struct {
	recipient string
	kind      notification.Kind
	paymentID int64
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []delivery
	failOn map[int64]error
}

func (f *fakeSender) Send(_ context.Context, recipient string, kind notification.Kind, paymentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[paymentID]; err != nil {
		return err
	}
	f.sent = append(f.sent, delivery{recipient, kind, paymentID})
	return nil
}

func (f *fakeSender) deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.sent...)
}

var _ = Describe("Sweeper", func() {
	var (
		now     time.Time
		source  *staticPayments
		log     *memLog
		sender  *fakeSender
		sweeper *escalation.Sweeper
		ctx     context.Context
		inStage func(id int64, state payment.State, age time.Duration) *payment.Payment
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
		source = &staticPayments{}
		log = newMemLog()
		sender = &fakeSender{failOn: map[int64]error{}}
		sweeper = escalation.NewSweeper(source, log, sender, escalation.DefaultConfig(), discard)

		inStage = func(id int64, state payment.State, age time.Duration) *payment.Payment {
			entered := now.Add(-age)
			p := &payment.Payment{ID: id, LifecycleState: state}
			switch state {
			case payment.StateUnderReview:
				p.SubmittedAt = &entered
			case payment.StateForApproval:
				p.ReviewedAt = &entered
			case payment.StateForAuthorization:
				p.ApprovedAt = &entered
			}
			source.payments = append(source.payments, p)
			return p
		}
	})

	It("escalates once and stays quiet inside the cooldown window", func() {
		inStage(1, payment.StateForApproval, 80*time.Hour)

		report, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Escalations).To(Equal(1))
		Expect(sender.deliveries()).To(ConsistOf(delivery{"role:manage", notification.KindEscalation, 1}))

		report, err = sweeper.Run(ctx, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Escalations).To(BeZero())
		Expect(report.Reminders).To(BeZero())
		Expect(sender.deliveries()).To(HaveLen(1))
	})

	It("escalates again once the cooldown has passed", func() {
		inStage(1, payment.StateForApproval, 80*time.Hour)
		_, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())

		report, err := sweeper.Run(ctx, now.Add(7*24*time.Hour+time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Escalations).To(Equal(1))
		Expect(sender.deliveries()).To(HaveLen(2))
	})

	It("sends at most one reminder per day to the stage role", func() {
		inStage(2, payment.StateUnderReview, 30*time.Hour)

		report, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(Equal(1))

		report, err = sweeper.Run(ctx, now.Add(2*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(BeZero())
		Expect(sender.deliveries()).To(ConsistOf(delivery{"role:review", notification.KindReminder, 2}))

		report, err = sweeper.Run(ctx, now.Add(24*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(Equal(1))
	})

	It("routes reminders by stage", func() {
		inStage(3, payment.StateForApproval, 25*time.Hour)
		inStage(4, payment.StateForAuthorization, 25*time.Hour)

		_, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(sender.deliveries()).To(ConsistOf(
			delivery{"role:approve", notification.KindReminder, 3},
			delivery{"role:authorize", notification.KindReminder, 4},
		))
	})

	It("ignores fresh payments and payments outside a stage", func() {
		inStage(5, payment.StateUnderReview, 2*time.Hour)
		inStage(6, payment.StateApproved, 200*time.Hour)

		report, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Scanned).To(Equal(1))
		Expect(sender.deliveries()).To(BeEmpty())
	})

	It("uses the configured time zone for the reminder day", func() {
		jakarta := time.FixedZone("WIB", 7*3600)
		cfg := escalation.DefaultConfig()
		cfg.Location = jakarta
		sweeper = escalation.NewSweeper(source, log, sender, cfg, discard)
		now = time.Date(2024, 5, 10, 16, 30, 0, 0, time.UTC) // 23:30 WIB
		inStage(7, payment.StateUnderReview, 30*time.Hour)

		_, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())

		// 01:30 WIB the next day: a new calendar day locally, same day in UTC
		report, err := sweeper.Run(ctx, now.Add(2*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(Equal(1))
	})

	It("swallows per-payment send failures and retries them on the next run", func() {
		inStage(8, payment.StateUnderReview, 30*time.Hour)
		inStage(9, payment.StateUnderReview, 30*time.Hour)
		sender.failOn[8] = errors.New("broker down")

		report, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Failed).To(Equal(1))
		Expect(report.Reminders).To(Equal(1))
		Expect(log.count("failed")).To(Equal(1))

		delete(sender.failOn, 8)
		report, err = sweeper.Run(ctx, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(Equal(1))
		Expect(sender.deliveries()).To(ContainElement(delivery{"role:review", notification.KindReminder, 8}))
	})

	It("keeps sweeping past a malformed payment", func() {
		source.payments = append(source.payments, &payment.Payment{ID: 10, LifecycleState: payment.StateForApproval})
		inStage(11, payment.StateForApproval, 30*time.Hour)

		report, err := sweeper.Run(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Failed).To(Equal(1))
		Expect(report.Reminders).To(Equal(1))
	})

	It("returns an error when payments cannot be listed", func() {
		source.err = errors.New("db gone")

		_, err := sweeper.Run(ctx, now)
		Expect(err).To(MatchError(ContainSubstring("db gone")))
	})

	It("does not double-send when runs overlap", func() {
		for i := int64(1); i <= 20; i++ {
			inStage(100+i, payment.StateForApproval, 80*time.Hour)
		}

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := sweeper.Run(ctx, now)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(sender.deliveries()).To(HaveLen(20))
		Expect(log.count("sent")).To(Equal(20))
	})
})

var _ = Describe("keys", func() {
	It("formats reminder and escalation keys", func() {
		day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
		Expect(escalation.ReminderKey(4, payment.StateForApproval, day)).To(Equal("reminder:4:for_approval:2024-05-10"))
		Expect(escalation.EscalationKey(4, payment.StateForApproval, 2)).To(Equal("escalation:4:for_approval:2"))
	})
})
