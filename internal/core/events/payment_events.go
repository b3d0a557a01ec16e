package events

import (
	"time"

	"github.com/google/uuid"
)

const EventTypePaymentTransitioned = "payment.transitioned"

// PaymentTransitionedEvent is published after a lifecycle transition commits.
type PaymentTransitionedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	VoucherNumber string `json:"voucher_number"`
	Action        string `json:"action"`
	FromState     string `json:"from_state"`
	ToState       string `json:"to_state"`
	ActorID       int64  `json:"actor_id"`
	OwnerID       int64  `json:"owner_id"`
}

func NewPaymentTransitionedEvent(paymentID int64, voucher, action, from, to string, actorID, ownerID int64) *PaymentTransitionedEvent {
	return &PaymentTransitionedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentTransitioned,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"voucher_number": voucher,
				"action":         action,
				"from_state":     from,
				"to_state":       to,
				"actor_id":       actorID,
				"owner_id":       ownerID,
			},
		},
		PaymentID:     paymentID,
		VoucherNumber: voucher,
		Action:        action,
		FromState:     from,
		ToState:       to,
		ActorID:       actorID,
		OwnerID:       ownerID,
	}
}
