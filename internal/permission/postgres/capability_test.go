package postgres_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-approval/internal/permission"
	"github.com/frahmantamala/payment-approval/internal/permission/postgres"
)

func TestCapabilityRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Capability Repository Suite")
}

const schema = `
CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL, is_active BOOLEAN NOT NULL DEFAULT 1);
CREATE TABLE permissions (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE);
CREATE TABLE user_permissions (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL, permission_id INTEGER NOT NULL);
INSERT INTO users (id, email, is_active) VALUES (1, 'reviewer@example.com', 1), (2, 'inactive@example.com', 0);
INSERT INTO permissions (id, name) VALUES (1, 'review'), (2, 'approve'), (3, 'manage');
INSERT INTO user_permissions (user_id, permission_id) VALUES (1, 1), (1, 3), (2, 2);
`

var _ = Describe("CapabilityRepository", func() {
	var (
		db   *sqlx.DB
		repo *postgres.CapabilityRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = sqlx.Connect("sqlite3", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		db.SetMaxOpenConns(1)
		_, err = db.Exec(schema)
		Expect(err).NotTo(HaveOccurred())

		repo = postgres.NewCapabilityRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("finds a granted capability", func() {
		ok, err := repo.HasCapability(ctx, 1, permission.CapabilityReview)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("reports a missing capability", func() {
		ok, err := repo.HasCapability(ctx, 1, permission.CapabilityPost)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("ignores grants of inactive users", func() {
		ok, err := repo.HasCapability(ctx, 2, permission.CapabilityApprove)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("lists capabilities in name order", func() {
		caps, err := repo.Capabilities(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(caps).To(Equal([]permission.Capability{permission.CapabilityManage, permission.CapabilityReview}))
	})

	It("surfaces store errors", func() {
		Expect(db.Close()).To(Succeed())
		_, err := repo.HasCapability(ctx, 1, permission.CapabilityReview)
		Expect(err).To(HaveOccurred())

		db, _ = sqlx.Connect("sqlite3", ":memory:")
	})
})
