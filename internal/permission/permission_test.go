package permission_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-approval/internal/permission"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

var _ = Describe("StaticResolver", func() {
	var (
		resolver *permission.StaticResolver
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		resolver = permission.NewStaticResolver().
			Grant(1, permission.CapabilityReview).
			Grant(2, permission.CapabilityApprove, permission.CapabilityManage)
	})

	It("reports granted capabilities", func() {
		ok, err := resolver.HasCapability(ctx, 1, permission.CapabilityReview)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("does not let manage imply stage capabilities", func() {
		ok, err := resolver.HasCapability(ctx, 2, permission.CapabilityReview)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("returns false for unknown actors", func() {
		ok, err := resolver.HasCapability(ctx, 99, permission.CapabilityPost)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("rejects unknown capability names", func() {
		_, err := resolver.HasCapability(ctx, 1, permission.Capability("delete"))
		Expect(err).To(MatchError(permission.ErrUnknownCapability))
	})

	It("forgets revoked capabilities", func() {
		resolver.Revoke(2, permission.CapabilityApprove)
		ok, err := resolver.HasCapability(ctx, 2, permission.CapabilityApprove)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})
