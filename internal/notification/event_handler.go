package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

// EventHandler turns committed transitions into notifications.
type EventHandler struct {
	sender Sender
	logger *slog.Logger
}

func NewEventHandler(sender Sender, logger *slog.Logger) *EventHandler {
	return &EventHandler{sender: sender, logger: logger}
}

func (h *EventHandler) HandlePaymentTransitioned(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentTransitionedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment transitioned handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentTransitionedEvent, got %T", event)
	}

	var errs []error
	for recipient, kind := range Recipients(e) {
		if err := h.sender.Send(ctx, recipient, kind, e.PaymentID); err != nil {
			h.logger.Warn("notification send failed",
				"error", err,
				"payment_id", e.PaymentID,
				"recipient", recipient,
				"kind", kind)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recipients decides who hears about a transition.
func Recipients(e *events.PaymentTransitionedEvent) map[string]Kind {
	out := make(map[string]Kind, 2)
	to := payment.State(e.ToState)

	switch to {
	case payment.StateUnderReview:
		out[RoleRecipient(permission.CapabilityReview)] = KindStageAssigned
	case payment.StateForApproval:
		out[RoleRecipient(permission.CapabilityApprove)] = KindStageAssigned
	case payment.StateForAuthorization:
		out[RoleRecipient(permission.CapabilityAuthorize)] = KindStageAssigned
	case payment.StateApproved:
		out[UserRecipient(e.OwnerID)] = KindApproved
		out[RoleRecipient(permission.CapabilityPost)] = KindStageAssigned
	case payment.StatePosted:
		out[UserRecipient(e.OwnerID)] = KindPosted
	}

	if e.Action == "reject" {
		out[UserRecipient(e.OwnerID)] = KindRejected
	}
	return out
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentTransitioned, h.HandlePaymentTransitioned)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{events.EventTypePaymentTransitioned})
}
