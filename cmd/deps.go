package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-approval/internal"
	"github.com/frahmantamala/payment-approval/internal/approval"
	approvalpg "github.com/frahmantamala/payment-approval/internal/approval/postgres"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/currency"
	historypg "github.com/frahmantamala/payment-approval/internal/history/postgres"
	"github.com/frahmantamala/payment-approval/internal/notification"
	permissionpg "github.com/frahmantamala/payment-approval/internal/permission/postgres"
	"github.com/frahmantamala/payment-approval/internal/posting"
)

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// openGorm shares the sqlx pool with gorm.
func openGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

func policyConfig(cfg internal.ApprovalConfig) (approval.PolicyConfig, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(cfg.AuthorizationThreshold))
	if err != nil {
		return approval.PolicyConfig{}, fmt.Errorf("authorization_threshold: %w", err)
	}
	return approval.PolicyConfig{
		Threshold:         threshold,
		ReferenceCurrency: strings.ToUpper(cfg.ReferenceCurrency),
	}, nil
}

type approvalStack struct {
	Service  *approval.Service
	Policy   *approval.Policy
	Payments *approvalpg.PaymentRepository
}

func buildApproval(cfg *internal.Config, sqlDB *sqlx.DB, gdb *gorm.DB, bus *events.EventBus, lg *slog.Logger) (*approvalStack, error) {
	pcfg, err := policyConfig(cfg.Approval)
	if err != nil {
		return nil, err
	}
	converter, err := currency.ParseRates(pcfg.ReferenceCurrency, cfg.Approval.Rates)
	if err != nil {
		return nil, fmt.Errorf("approval rates: %w", err)
	}
	policy := approval.NewPolicy(pcfg, converter)

	ledger := historypg.NewLedger(gdb)
	payments := approvalpg.NewPaymentRepository(gdb, ledger)
	resolver := permissionpg.NewCapabilityRepository(sqlDB)

	var poster approval.Poster = posting.LocalPoster{}
	if cfg.Posting.BaseURL != "" {
		poster = posting.NewClient(posting.Config{
			BaseURL: cfg.Posting.BaseURL,
			APIKey:  cfg.Posting.APIKey,
			Timeout: cfg.Posting.Timeout,
		}, lg)
	}

	svc := approval.NewService(payments, ledger, resolver, policy, poster, bus,
		approval.Settings{AutoPostOnApproval: cfg.Approval.AutoPostOnApproval}, lg,
		approval.WithVoucherPrefix(cfg.Approval.VoucherPrefix))

	return &approvalStack{Service: svc, Policy: policy, Payments: payments}, nil
}

// buildSender returns a NATS sender when a url is configured, else a log sender.
// The returned connection is nil for the log sender.
func buildSender(cfg internal.NotificationConfig, lg *slog.Logger) (notification.Sender, *nats.Conn, error) {
	if cfg.NATSURL == "" {
		return notification.NewLogSender(lg), nil, nil
	}
	nc, err := notification.Connect(cfg.NATSURL, lg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return notification.NewNATSSender(nc, cfg.SubjectPrefix, lg), nc, nil
}
