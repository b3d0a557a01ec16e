package internal

import (
	"context"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestInternal(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Internal Suite")
}

var _ = ginkgo.Describe("Config", func() {
	var cfg *Config

	ginkgo.BeforeEach(func() {
		ginkgo.GinkgoT().Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
		ginkgo.GinkgoT().Setenv("APPROVAL_RATES", "eur=1.08, IDR=0.000064,broken")
		cfg = LoadConfigFromEnv()
	})

	ginkgo.It("loads defaults from the environment", func() {
		gomega.Expect(cfg.Validate()).To(gomega.Succeed())
		gomega.Expect(cfg.Escalation.ReminderAfter).To(gomega.Equal(24 * time.Hour))
		gomega.Expect(cfg.Escalation.EscalateAfter).To(gomega.Equal(72 * time.Hour))
		gomega.Expect(cfg.Escalation.EscalationCooldown).To(gomega.Equal(7 * 24 * time.Hour))
		gomega.Expect(cfg.Approval.Rates).To(gomega.Equal(map[string]string{"EUR": "1.08", "IDR": "0.000064"}))
	})

	ginkgo.It("rejects a short jwt secret", func() {
		cfg.Security.JWTSecret = "short"
		gomega.Expect(cfg.Validate()).To(gomega.MatchError(gomega.ContainSubstring("jwt_secret")))
	})

	ginkgo.It("requires escalate_after to be at least reminder_after", func() {
		cfg.Escalation.EscalateAfter = time.Hour
		gomega.Expect(cfg.Validate()).To(gomega.MatchError(gomega.ContainSubstring("escalate_after")))
	})

	ginkgo.It("rejects an unknown timezone", func() {
		cfg.Escalation.Timezone = "Mars/Olympus"
		gomega.Expect(cfg.Validate()).To(gomega.HaveOccurred())
	})

	ginkgo.It("rejects a non-numeric threshold", func() {
		cfg.Approval.AuthorizationThreshold = "lots"
		gomega.Expect(cfg.Validate()).To(gomega.MatchError(gomega.ContainSubstring("authorization_threshold")))
	})

	ginkgo.It("collects every failing section", func() {
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns + 1
		cfg.Posting.BaseURL = "not a url"
		err := cfg.Validate()
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("database config")))
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("posting config")))
	})
})

var _ = ginkgo.Describe("Context helpers", func() {
	ginkgo.It("round-trips the actor id", func() {
		ctx := ContextWithActorID(context.Background(), 42)
		gomega.Expect(ActorIDFromContext(ctx)).To(gomega.Equal(int64(42)))
		gomega.Expect(ActorIDFromContext(context.Background())).To(gomega.BeZero())
	})
})
