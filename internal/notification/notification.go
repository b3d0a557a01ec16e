package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-approval/internal/permission"
)

type Kind string

const (
	KindReminder      Kind = "reminder"
	KindEscalation    Kind = "escalation"
	KindStageAssigned Kind = "stage_assigned"
	KindApproved      Kind = "approved"
	KindRejected      Kind = "rejected"
	KindPosted        Kind = "posted"
)

// Sender delivers one notification. Delivery is best effort: callers log failures and move on.
type Sender interface {
	Send(ctx context.Context, recipient string, kind Kind, paymentID int64) error
}

// RoleRecipient addresses everyone holding a capability.
func RoleRecipient(c permission.Capability) string {
	return "role:" + string(c)
}

func UserRecipient(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// LogSender writes notifications to the log. Used when no broker is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, recipient string, kind Kind, paymentID int64) error {
	s.logger.InfoContext(ctx, "notification",
		"kind", kind,
		"recipient", recipient,
		"payment_id", paymentID)
	return nil
}
