package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateDraft            State = "draft"
	StateUnderReview      State = "under_review"
	StateForApproval      State = "for_approval"
	StateForAuthorization State = "for_authorization"
	StateApproved         State = "approved"
	StatePosted           State = "posted"
	StateCancelled        State = "cancelled"
)

// States lists every lifecycle state in path order.
var States = []State{
	StateDraft,
	StateUnderReview,
	StateForApproval,
	StateForAuthorization,
	StateApproved,
	StatePosted,
	StateCancelled,
}

// Stages are the in-flight states that wait on a reviewer, approver or authorizer.
var Stages = []State{StateUnderReview, StateForApproval, StateForAuthorization}

func (s State) IsTerminal() bool {
	return s == StatePosted || s == StateCancelled
}

func (s State) IsStage() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

func (s State) Valid() bool {
	for _, st := range States {
		if st == s {
			return true
		}
	}
	return false
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

type Payment struct {
	ID                    int64           `gorm:"primaryKey" json:"id"`
	VoucherNumber         *string         `gorm:"column:voucher_number;uniqueIndex" json:"voucher_number"`
	Amount                decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null" json:"amount"`
	Currency              string          `gorm:"column:currency;size:3;not null" json:"currency"`
	Direction             Direction       `gorm:"column:direction;not null" json:"direction"`
	PartnerRef            string          `gorm:"column:partner_ref;not null" json:"partner_ref"`
	JournalRef            string          `gorm:"column:journal_ref" json:"journal_ref"`
	Memo                  *string         `gorm:"column:memo" json:"memo,omitempty"`
	LifecycleState        State           `gorm:"column:lifecycle_state;not null;index" json:"lifecycle_state"`
	Version               int64           `gorm:"column:version;not null;default:1" json:"version"`
	RequiresAuthorization bool            `gorm:"column:requires_authorization;not null;default:false" json:"requires_authorization"`
	CreatedBy             int64           `gorm:"column:created_by;not null" json:"created_by"`

	SubmittedBy     *int64     `gorm:"column:submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt     *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy      *int64     `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ApprovedBy      *int64     `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	AuthorizedBy    *int64     `gorm:"column:authorized_by" json:"authorized_by,omitempty"`
	AuthorizedAt    *time.Time `gorm:"column:authorized_at" json:"authorized_at,omitempty"`
	PostedBy        *int64     `gorm:"column:posted_by" json:"posted_by,omitempty"`
	PostedAt        *time.Time `gorm:"column:posted_at" json:"posted_at,omitempty"`
	CancelledBy     *int64     `gorm:"column:cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RejectedBy      *int64     `gorm:"column:rejected_by" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	RejectionReason *string    `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`

	VerificationToken string    `gorm:"column:verification_token;uniqueIndex;not null" json:"verification_token"`
	PostingRef        *string   `gorm:"column:posting_ref" json:"posting_ref,omitempty"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// StageEnteredAt is the moment the payment entered its current stage, nil outside a stage.
func (p *Payment) StageEnteredAt() *time.Time {
	switch p.LifecycleState {
	case StateUnderReview:
		return p.SubmittedAt
	case StateForApproval:
		return p.ReviewedAt
	case StateForAuthorization:
		return p.ApprovedAt
	default:
		return nil
	}
}

func (p *Payment) IsOwnedBy(actorID int64) bool {
	return p.CreatedBy == actorID
}
