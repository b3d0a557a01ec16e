package approval

import (
	"context"
	"time"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
	"github.com/frahmantamala/payment-approval/internal/core/events"
)

// VoucherFunc renders the voucher number of a freshly inserted payment.
type VoucherFunc func(id int64, createdAt time.Time) string

// Repository persists payments. ApplyTransition must write the payment and its history
// entry atomically and fail with ErrConcurrentModification when the version moved.
type Repository interface {
	Create(ctx context.Context, p *payment.Payment, voucher VoucherFunc) error
	GetByID(ctx context.Context, id int64) (*payment.Payment, error)
	GetByVerificationToken(ctx context.Context, token string) (*payment.Payment, error)
	ApplyTransition(ctx context.Context, change *Change) error
}

type Change struct {
	Payment         *payment.Payment
	ExpectedVersion int64
	Entry           *workflow.HistoryEntry
}

// Poster pushes an approved payment to the external ledger and returns its reference there.
type Poster interface {
	Post(ctx context.Context, p *payment.Payment) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TransitionContext describes a transition that passed the built-in guards.
type TransitionContext struct {
	Current *payment.Payment
	Action  Action
	To      payment.State
	ActorID int64
	Comment string
}

// TransitionHook can veto a transition before it is written.
type TransitionHook interface {
	BeforeTransition(ctx context.Context, tc TransitionContext) error
}

type TransitionHookFunc func(ctx context.Context, tc TransitionContext) error

func (f TransitionHookFunc) BeforeTransition(ctx context.Context, tc TransitionContext) error {
	return f(ctx, tc)
}

type Settings struct {
	AutoPostOnApproval bool
}

// Result is the outcome of a committed transition. PostingErr is set when the
// auto-post cascade failed; the transition itself still stands.
type Result struct {
	Payment    *payment.Payment
	PostingErr error
}
