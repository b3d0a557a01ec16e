package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/notification"
)

type Config struct {
	ReminderAfter time.Duration
	EscalateAfter time.Duration
	// Cooldown is the rolling window in which a second escalation is suppressed.
	Cooldown time.Duration
	// Location defines the calendar day used for "one reminder per day".
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		ReminderAfter: 24 * time.Hour,
		EscalateAfter: 72 * time.Hour,
		Cooldown:      7 * 24 * time.Hour,
		Location:      time.UTC,
	}
}

// PaymentSource lists payments waiting in an approval stage.
type PaymentSource interface {
	ListInStates(ctx context.Context, states []payment.State) ([]*payment.Payment, error)
}

// Claim is a notification slot the sweeper wants to use.
type Claim struct {
	PaymentID int64
	Kind      notification.Kind
	Stage     payment.State
	Recipient string
	DedupeKey string
	At        time.Time
}

// Log is the notification log. Claim must be atomic on DedupeKey: when two callers claim
// the same key exactly one gets claimed == true.
type Log interface {
	// SentSince reports whether a pending or sent notification of kind exists for the payment at or after since.
	SentSince(ctx context.Context, paymentID int64, kind notification.Kind, since time.Time) (bool, error)
	Claim(ctx context.Context, c Claim) (id int64, claimed bool, err error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// MarkFailed records the failure and releases the dedupe key so a later run can retry.
	MarkFailed(ctx context.Context, id int64, cause error) error
}

// Report summarises one sweep.
type Report struct {
	Scanned     int `json:"scanned"`
	Reminders   int `json:"reminders"`
	Escalations int `json:"escalations"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

func (r Report) String() string {
	return fmt.Sprintf("scanned=%d reminders=%d escalations=%d skipped=%d failed=%d",
		r.Scanned, r.Reminders, r.Escalations, r.Skipped, r.Failed)
}

func ReminderKey(paymentID int64, stage payment.State, day time.Time) string {
	return fmt.Sprintf("reminder:%d:%s:%s", paymentID, stage, day.Format("2006-01-02"))
}

// EscalationKey buckets escalations by cooldown period since the escalation threshold was crossed.
func EscalationKey(paymentID int64, stage payment.State, bucket int64) string {
	return fmt.Sprintf("escalation:%d:%s:%d", paymentID, stage, bucket)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
