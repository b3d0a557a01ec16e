package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	historypg "github.com/frahmantamala/payment-approval/internal/history/postgres"
)

type PaymentRepository struct {
	db     *gorm.DB
	ledger *historypg.Ledger
}

func NewPaymentRepository(db *gorm.DB, ledger *historypg.Ledger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		ledger: ledger,
	}
}

// Create inserts the payment and assigns its voucher number in the same transaction.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment, voucher approval.VoucherFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if voucher == nil {
			return nil
		}

		number := voucher(p.ID, p.CreatedAt)
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND voucher_number IS NULL", p.ID).
			Update("voucher_number", number)
		if res.Error != nil {
			return res.Error
		}
		p.VoucherNumber = &number
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: create payment: %w", approval.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "get payment")
	}
	return &p, nil
}

func (r *PaymentRepository) GetByVerificationToken(ctx context.Context, token string) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).Where("verification_token = ?", token).First(&p).Error; err != nil {
		return nil, translate(err, "get payment by token")
	}
	return &p, nil
}

// ListInStates returns payments in any of the given states, oldest first.
func (r *PaymentRepository) ListInStates(ctx context.Context, states []payment.State) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("lifecycle_state IN ?", states).
		Order("id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, translate(err, "list payments")
	}
	return payments, nil
}

// ApplyTransition writes the new workflow fields guarded by the expected version
// and appends the history entry in one transaction.
func (r *PaymentRepository) ApplyTransition(ctx context.Context, change *approval.Change) error {
	p := change.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND version = ?", p.ID, change.ExpectedVersion).
			Updates(map[string]interface{}{
				"lifecycle_state":        p.LifecycleState,
				"requires_authorization": p.RequiresAuthorization,
				"submitted_by":           p.SubmittedBy,
				"submitted_at":           p.SubmittedAt,
				"reviewed_by":            p.ReviewedBy,
				"reviewed_at":            p.ReviewedAt,
				"approved_by":            p.ApprovedBy,
				"approved_at":            p.ApprovedAt,
				"authorized_by":          p.AuthorizedBy,
				"authorized_at":          p.AuthorizedAt,
				"posted_by":              p.PostedBy,
				"posted_at":              p.PostedAt,
				"cancelled_by":           p.CancelledBy,
				"cancelled_at":           p.CancelledAt,
				"rejected_by":            p.RejectedBy,
				"rejected_at":            p.RejectedAt,
				"rejection_reason":       p.RejectionReason,
				"posting_ref":            p.PostingRef,
				"version":                gorm.Expr("version + 1"),
				"updated_at":             p.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return approval.ErrConcurrentModification
		}

		if _, err := r.ledger.WithTx(tx).Record(ctx, change.Entry); err != nil {
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, approval.ErrConcurrentModification):
		return fmt.Errorf("%w: payment %d at version %d", approval.ErrConcurrentModification, p.ID, change.ExpectedVersion)
	default:
		return fmt.Errorf("%w: apply transition: %w", approval.ErrStoreUnavailable, err)
	}
}

func translate(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return approval.ErrPaymentNotFound
	}
	return fmt.Errorf("%w: %s: %w", approval.ErrStoreUnavailable, op, err)
}
