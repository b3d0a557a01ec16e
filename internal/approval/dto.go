package approval

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payment-approval/internal"
	"github.com/frahmantamala/payment-approval/internal/core/common/validation"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
)

type CreatePaymentDTO struct {
	Amount     string  `json:"amount"`
	Currency   string  `json:"currency"`
	Direction  string  `json:"direction"`
	PartnerRef string  `json:"partner_ref"`
	JournalRef string  `json:"journal_ref"`
	Memo       *string `json:"memo,omitempty"`
}

func (d *CreatePaymentDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("amount", d.Amount).Required().PositiveDecimal(errors.ErrCodeInvalidAmount)
	v.Field("currency", d.Currency).Required().CurrencyCode()
	v.Field("direction", d.Direction).Required().
		OneOf(errors.ErrCodeInvalidDirection, string(payment.DirectionInbound), string(payment.DirectionOutbound))
	v.Field("partner_ref", d.PartnerRef).Required().MaxLength(128)
	v.Field("journal_ref", d.JournalRef).MaxLength(128)
	v.Field("memo", d.Memo).MaxLength(1000)
	return v.Validate()
}

// ParsedAmount is only meaningful after Validate succeeded.
func (d *CreatePaymentDTO) ParsedAmount() decimal.Decimal {
	amount, _ := decimal.NewFromString(strings.TrimSpace(d.Amount))
	return amount
}

type TransitionRequest struct {
	Comment string `json:"comment"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type TransitionResponse struct {
	Payment *payment.Payment `json:"payment"`
	Warning string           `json:"warning,omitempty"`
}

type HistoryResponse struct {
	PaymentID int64          `json:"payment_id"`
	Entries   []HistoryEntry `json:"entries"`
}

type HistoryEntry struct {
	ID        int64   `json:"id"`
	ActorID   int64   `json:"actor_id"`
	FromState string  `json:"from_state"`
	ToState   string  `json:"to_state"`
	Action    string  `json:"action"`
	Comment   *string `json:"comment,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// VerificationView is the public projection served for a verification link.
type VerificationView struct {
	VoucherNumber  *string `json:"voucher_number"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	Direction      string  `json:"direction"`
	PartnerRef     string  `json:"partner_ref"`
	LifecycleState string  `json:"lifecycle_state"`
	UpdatedAt      string  `json:"updated_at"`
}

func NewVerificationView(p *payment.Payment) VerificationView {
	return VerificationView{
		VoucherNumber:  p.VoucherNumber,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		Direction:      string(p.Direction),
		PartnerRef:     p.PartnerRef,
		LifecycleState: string(p.LifecycleState),
		UpdatedAt:      p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewHistoryResponse(paymentID int64, entries []*workflow.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{PaymentID: paymentID, Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:        e.ID,
			ActorID:   e.ActorID,
			FromState: e.FromState,
			ToState:   e.ToState,
			Action:    e.Action,
			Comment:   e.Comment,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return resp
}
