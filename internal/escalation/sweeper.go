package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/notification"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeReminder
	outcomeEscalation
	outcomeSkipped
	outcomeFailed
)

// Sweeper finds payments stuck in a stage and sends reminders or escalations.
// Concurrent runs are safe: the notification log's dedupe key decides who sends.
type Sweeper struct {
	payments PaymentSource
	log      Log
	sender   notification.Sender
	cfg      Config
	logger   *slog.Logger
}

func NewSweeper(payments PaymentSource, log Log, sender notification.Sender, cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sweeper{payments: payments, log: log, sender: sender, cfg: cfg, logger: logger}
}

// Run performs one sweep at now. Only a failure to list payments is returned;
// per-payment failures are logged and counted.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	payments, err := s.payments.ListInStates(ctx, payment.Stages)
	if err != nil {
		return report, fmt.Errorf("list in-flight payments: %w", err)
	}

	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		switch s.sweepOne(ctx, p, now) {
		case outcomeReminder:
			report.Reminders++
		case outcomeEscalation:
			report.Escalations++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
		}
	}

	s.logger.Info("escalation sweep finished",
		"scanned", report.Scanned,
		"reminders", report.Reminders,
		"escalations", report.Escalations,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, p *payment.Payment, now time.Time) outcome {
	entered := p.StageEnteredAt()
	if entered == nil {
		s.logger.Warn("payment in stage without a stage timestamp", "payment_id", p.ID, "state", p.LifecycleState)
		return outcomeFailed
	}
	age := now.Sub(*entered)

	// past the escalation threshold only escalations are sent
	if age >= s.cfg.EscalateAfter {
		sent, err := s.log.SentSince(ctx, p.ID, notification.KindEscalation, now.Add(-s.cfg.Cooldown))
		if err != nil {
			s.logFailure(err, p, notification.KindEscalation)
			return outcomeFailed
		}
		if sent {
			return outcomeSkipped
		}
		bucket := int64((age - s.cfg.EscalateAfter) / s.cfg.Cooldown)
		return s.deliver(ctx, p, Claim{
			PaymentID: p.ID,
			Kind:      notification.KindEscalation,
			Stage:     p.LifecycleState,
			Recipient: notification.RoleRecipient(permission.CapabilityManage),
			DedupeKey: EscalationKey(p.ID, p.LifecycleState, bucket),
			At:        now,
		}, outcomeEscalation)
	}

	if age >= s.cfg.ReminderAfter {
		today := startOfDay(now, s.cfg.Location)
		sent, err := s.log.SentSince(ctx, p.ID, notification.KindReminder, today)
		if err != nil {
			s.logFailure(err, p, notification.KindReminder)
			return outcomeFailed
		}
		if sent {
			return outcomeSkipped
		}
		role, _ := approval.StageCapability(p.LifecycleState)
		return s.deliver(ctx, p, Claim{
			PaymentID: p.ID,
			Kind:      notification.KindReminder,
			Stage:     p.LifecycleState,
			Recipient: notification.RoleRecipient(role),
			DedupeKey: ReminderKey(p.ID, p.LifecycleState, today),
			At:        now,
		}, outcomeReminder)
	}

	return outcomeNone
}

func (s *Sweeper) deliver(ctx context.Context, p *payment.Payment, c Claim, success outcome) outcome {
	id, claimed, err := s.log.Claim(ctx, c)
	if err != nil {
		s.logFailure(err, p, c.Kind)
		return outcomeFailed
	}
	if !claimed {
		s.logger.Debug("notification already claimed", "payment_id", p.ID, "dedupe_key", c.DedupeKey)
		return outcomeSkipped
	}

	if err := s.sender.Send(ctx, c.Recipient, c.Kind, p.ID); err != nil {
		s.logFailure(err, p, c.Kind)
		if markErr := s.log.MarkFailed(ctx, id, err); markErr != nil {
			s.logger.Error("failed to release notification claim", "error", markErr, "notification_id", id)
		}
		return outcomeFailed
	}

	if err := s.log.MarkSent(ctx, id, c.At); err != nil {
		// the pending row still blocks a duplicate send
		s.logger.Error("failed to mark notification sent", "error", err, "notification_id", id)
	}

	s.logger.Info("notification sent",
		"payment_id", p.ID,
		"kind", c.Kind,
		"stage", c.Stage,
		"recipient", c.Recipient)
	return success
}

func (s *Sweeper) logFailure(err error, p *payment.Payment, kind notification.Kind) {
	s.logger.Error("escalation sweep failed for payment",
		"error", err,
		"payment_id", p.ID,
		"state", p.LifecycleState,
		"kind", kind)
}
