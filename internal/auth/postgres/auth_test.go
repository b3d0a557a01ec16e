package postgres

import (
	"context"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-approval/internal/auth"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

func TestAuthRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Repository Suite")
}

var _ = ginkgo.Describe("Repository", func() {
	var (
		db   *gorm.DB
		repo *Repository
		ctx  context.Context
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB, err := db.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB.SetMaxOpenConns(1)

		gomega.Expect(db.AutoMigrate(&user.User{}, &user.Permission{}, &user.UserPermission{})).To(gomega.Succeed())

		users := []user.User{
			{ID: 1, Email: "ana@example.com", Name: "Ana", PasswordHash: "hash-a", IsActive: true},
			{ID: 2, Email: "ben@example.com", Name: "Ben", PasswordHash: "hash-b", IsActive: true},
		}
		gomega.Expect(db.Create(&users).Error).To(gomega.Succeed())
		gomega.Expect(db.Model(&user.User{}).Where("id = ?", 2).Update("is_active", false).Error).To(gomega.Succeed())

		perms := []user.Permission{
			{ID: 1, Name: string(permission.CapabilityReview)},
			{ID: 2, Name: string(permission.CapabilityApprove)},
			{ID: 3, Name: "legacy_export"},
		}
		gomega.Expect(db.Create(&perms).Error).To(gomega.Succeed())
		grants := []user.UserPermission{
			{UserID: 1, PermissionID: 2},
			{UserID: 1, PermissionID: 1},
			{UserID: 1, PermissionID: 3},
		}
		gomega.Expect(db.Create(&grants).Error).To(gomega.Succeed())

		repo = NewRepository(db)
		ctx = context.Background()
	})

	ginkgo.Describe("GetCredentials", func() {
		ginkgo.It("returns the hash and activity flag", func() {
			creds, err := repo.GetCredentials(ctx, "ben@example.com")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(creds.UserID).To(gomega.Equal(int64(2)))
			gomega.Expect(creds.PasswordHash).To(gomega.Equal("hash-b"))
			gomega.Expect(creds.IsActive).To(gomega.BeFalse())
		})

		ginkgo.It("returns ErrUserNotFound for an unknown email", func() {
			_, err := repo.GetCredentials(ctx, "nobody@example.com")
			gomega.Expect(err).To(gomega.MatchError(auth.ErrUserNotFound))
		})
	})

	ginkgo.Describe("GetUserWithCapabilities", func() {
		ginkgo.It("loads known capabilities sorted by name", func() {
			u, err := repo.GetUserWithCapabilities(ctx, 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(u.Name).To(gomega.Equal("Ana"))
			gomega.Expect(u.Capabilities).To(gomega.Equal([]permission.Capability{
				permission.CapabilityApprove,
				permission.CapabilityReview,
			}))
		})

		ginkgo.It("treats inactive users as missing", func() {
			_, err := repo.GetUserWithCapabilities(ctx, 2)
			gomega.Expect(err).To(gomega.MatchError(auth.ErrUserNotFound))
		})
	})
})
