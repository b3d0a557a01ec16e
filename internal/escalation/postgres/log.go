package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
	"github.com/frahmantamala/payment-approval/internal/escalation"
	"github.com/frahmantamala/payment-approval/internal/notification"
)

// NotificationLog stores notification attempts in notification_log.
type NotificationLog struct {
	db *gorm.DB
}

func NewNotificationLog(db *gorm.DB) *NotificationLog {
	return &NotificationLog{db: db}
}

func (l *NotificationLog) SentSince(ctx context.Context, paymentID int64, kind notification.Kind, since time.Time) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).
		Model(&workflow.NotificationLog{}).
		Where("payment_id = ? AND kind = ? AND status IN ? AND created_at >= ?",
			paymentID, string(kind),
			[]workflow.NotificationStatus{workflow.NotificationPending, workflow.NotificationSent},
			since.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("query notification log: %w", err)
	}
	return n > 0, nil
}

// Claim inserts a pending row. A conflicting dedupe key inserts nothing and reports claimed == false.
func (l *NotificationLog) Claim(ctx context.Context, c escalation.Claim) (int64, bool, error) {
	key := c.DedupeKey
	row := workflow.NotificationLog{
		PaymentID: c.PaymentID,
		Kind:      string(c.Kind),
		Stage:     string(c.Stage),
		Recipient: c.Recipient,
		Status:    workflow.NotificationPending,
		DedupeKey: &key,
		CreatedAt: c.At.UTC(),
	}

	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return 0, false, fmt.Errorf("claim notification %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return row.ID, true, nil
}

func (l *NotificationLog) MarkSent(ctx context.Context, id int64, at time.Time) error {
	err := l.db.WithContext(ctx).
		Model(&workflow.NotificationLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  workflow.NotificationSent,
			"sent_at": at.UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark notification %d sent: %w", id, err)
	}
	return nil
}

func (l *NotificationLog) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := cause.Error()
	err := l.db.WithContext(ctx).
		Model(&workflow.NotificationLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     workflow.NotificationFailed,
			"error":      msg,
			"dedupe_key": gorm.Expr("NULL"),
		}).Error
	if err != nil {
		return fmt.Errorf("mark notification %d failed: %w", id, err)
	}
	return nil
}

// ListForPayment returns every attempt for a payment, oldest first.
func (l *NotificationLog) ListForPayment(ctx context.Context, paymentID int64) ([]workflow.NotificationLog, error) {
	var rows []workflow.NotificationLog
	err := l.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}
