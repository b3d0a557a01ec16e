package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/permission"
	"github.com/frahmantamala/payment-approval/pkg/logger"
)

const seedPassword = "password"

type seedUser struct {
	Email        string
	Name         string
	Capabilities []permission.Capability
}

var seedUsers = []seedUser{
	{Email: "fadhil@mail.com", Name: "Fadhil"},
	{Email: "rina@mail.com", Name: "Rina Reviewer", Capabilities: []permission.Capability{permission.CapabilityReview}},
	{Email: "andi@mail.com", Name: "Andi Approver", Capabilities: []permission.Capability{permission.CapabilityApprove}},
	{Email: "sari@mail.com", Name: "Sari Authorizer", Capabilities: []permission.Capability{permission.CapabilityAuthorize}},
	{Email: "budi@mail.com", Name: "Budi Poster", Capabilities: []permission.Capability{permission.CapabilityPost}},
	{Email: "padil@mail.com", Name: "Padil Manager", Capabilities: permission.All},
}

var permissionDescriptions = map[permission.Capability]string{
	permission.CapabilityReview:    "Can review payments under review",
	permission.CapabilityApprove:   "Can approve reviewed payments",
	permission.CapabilityAuthorize: "Can authorize payments above the threshold",
	permission.CapabilityPost:      "Can post approved payments to the ledger",
	permission.CapabilityManage:    "Can act on any stage and cancel any payment",
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users, capabilities and payments for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := openGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := gdb.Exec("TRUNCATE notification_log, approval_history, payments, user_permissions, permissions, users RESTART IDENTITY CASCADE").Error; err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		ids, err := seedIdentities(gdb, string(hash))
		if err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}

		lg := logger.LoggerWrapper()
		stack, err := buildApproval(cfg, db, gdb, events.NewEventBus(lg), lg)
		if err != nil {
			log.Fatalf("failed to build approval service: %v", err)
		}
		if err := seedPayments(context.Background(), stack.Service, ids); err != nil {
			log.Fatalf("failed to seed payments: %v", err)
		}

		fmt.Println("Seeding complete. All users share the password:", seedPassword)
	},
}

func seedIdentities(db *gorm.DB, passwordHash string) (map[string]int64, error) {
	perms := make(map[permission.Capability]int64, len(permission.All))
	for _, c := range permission.All {
		p := user.Permission{Name: string(c), Description: permissionDescriptions[c]}
		if err := db.Where(user.Permission{Name: p.Name}).FirstOrCreate(&p).Error; err != nil {
			return nil, fmt.Errorf("permission %s: %w", c, err)
		}
		perms[c] = p.ID
	}

	ids := make(map[string]int64, len(seedUsers))
	for _, su := range seedUsers {
		var u user.User
		err := db.Where("email = ?", su.Email).First(&u).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			u = user.User{Email: su.Email, Name: su.Name, PasswordHash: passwordHash, IsActive: true}
			if err := db.Create(&u).Error; err != nil {
				return nil, fmt.Errorf("user %s: %w", su.Email, err)
			}
			fmt.Println("Seeded user:", su.Email)
		case err != nil:
			return nil, fmt.Errorf("user %s: %w", su.Email, err)
		default:
			fmt.Println("user already exists; will ensure permissions:", su.Email)
		}
		ids[su.Email] = u.ID

		for _, c := range su.Capabilities {
			grant := user.UserPermission{UserID: u.ID, PermissionID: perms[c]}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error; err != nil {
				return nil, fmt.Errorf("grant %s to %s: %w", c, su.Email, err)
			}
		}
	}
	return ids, nil
}

// seedPayments walks a few payments through the workflow so every stage has data.
func seedPayments(ctx context.Context, svc *approval.Service, ids map[string]int64) error {
	owner := ids["fadhil@mail.com"]
	reviewer := ids["rina@mail.com"]
	approver := ids["andi@mail.com"]

	samples := []struct {
		dto   approval.CreatePaymentDTO
		steps []approval.Action
	}{
		{
			dto: approval.CreatePaymentDTO{Amount: "250.00", Currency: "USD", Direction: "outbound", PartnerRef: "VENDOR-001", JournalRef: "JRN-OPS"},
		},
		{
			dto:   approval.CreatePaymentDTO{Amount: "1200.00", Currency: "USD", Direction: "inbound", PartnerRef: "CUSTOMER-042", JournalRef: "JRN-AR"},
			steps: []approval.Action{approval.ActionSubmit},
		},
		{
			dto:   approval.CreatePaymentDTO{Amount: "8000.00", Currency: "USD", Direction: "outbound", PartnerRef: "VENDOR-007", JournalRef: "JRN-AP"},
			steps: []approval.Action{approval.ActionSubmit, approval.ActionReview},
		},
		{
			dto:   approval.CreatePaymentDTO{Amount: "50000.00", Currency: "USD", Direction: "outbound", PartnerRef: "VENDOR-099", JournalRef: "JRN-CAPEX"},
			steps: []approval.Action{approval.ActionSubmit, approval.ActionReview, approval.ActionApprove},
		},
	}

	actors := map[approval.Action]int64{
		approval.ActionSubmit:  owner,
		approval.ActionReview:  reviewer,
		approval.ActionApprove: approver,
	}

	for _, s := range samples {
		p, err := svc.Create(ctx, owner, s.dto)
		if err != nil {
			return fmt.Errorf("create %s: %w", s.dto.PartnerRef, err)
		}
		for _, action := range s.steps {
			if _, err := svc.Do(ctx, action, p.ID, actors[action], "seeded"); err != nil {
				return fmt.Errorf("%s payment %d: %w", action, p.ID, err)
			}
		}
		fmt.Println("Seeded payment for", s.dto.PartnerRef)
	}
	return nil
}
