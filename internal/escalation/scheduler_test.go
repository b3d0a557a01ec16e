package escalation_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/escalation"
)

var _ = Describe("Scheduler", func() {
	It("rejects an invalid schedule", func() {
		sweeper := escalation.NewSweeper(&staticPayments{}, newMemLog(), &fakeSender{}, escalation.DefaultConfig(), discard)
		_, err := escalation.NewScheduler(sweeper, "every now and then", time.UTC, discard)
		Expect(err).To(HaveOccurred())
	})

	It("sweeps at the injected clock time", func() {
		fixed := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
		submitted := fixed.Add(-30 * time.Hour)
		source := &staticPayments{payments: []*payment.Payment{
			{ID: 1, LifecycleState: payment.StateUnderReview, SubmittedAt: &submitted},
		}}
		sender := &fakeSender{failOn: map[int64]error{}}
		sweeper := escalation.NewSweeper(source, newMemLog(), sender, escalation.DefaultConfig(), discard)

		s, err := escalation.NewScheduler(sweeper, "", time.UTC, discard,
			escalation.WithSchedulerClock(func() time.Time { return fixed }))
		Expect(err).NotTo(HaveOccurred())

		report, err := s.Tick(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Reminders).To(Equal(1))
	})

	It("returns from Run once the context is cancelled", func() {
		sweeper := escalation.NewSweeper(&staticPayments{}, newMemLog(), &fakeSender{}, escalation.DefaultConfig(), discard)
		s, err := escalation.NewScheduler(sweeper, "@every 1s", time.UTC, discard)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
