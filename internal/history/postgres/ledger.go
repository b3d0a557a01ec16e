package postgres

import (
	"context"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
)

const defaultPageSize = 100

type Ledger struct {
	db       *gorm.DB
	pageSize int
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, pageSize: defaultPageSize}
}

// WithTx binds the ledger to an open transaction so an entry commits or rolls back with it.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, pageSize: l.pageSize}
}

func (l *Ledger) WithPageSize(n int) *Ledger {
	if n <= 0 {
		n = defaultPageSize
	}
	return &Ledger{db: l.db, pageSize: n}
}

func (l *Ledger) Record(ctx context.Context, entry *workflow.HistoryEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, fmt.Errorf("record history entry for payment %d: %w", entry.PaymentID, err)
	}
	return entry.ID, nil
}

func (l *Ledger) ListForPayment(ctx context.Context, paymentID int64) iter.Seq2[*workflow.HistoryEntry, error] {
	return func(yield func(*workflow.HistoryEntry, error) bool) {
		var (
			cursorAt time.Time
			cursorID int64
			started  bool
		)
		for {
			q := l.db.WithContext(ctx).
				Where("payment_id = ?", paymentID).
				Order("created_at ASC").
				Order("id ASC").
				Limit(l.pageSize)
			if started {
				q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursorAt, cursorAt, cursorID)
			}

			var page []workflow.HistoryEntry
			if err := q.Find(&page).Error; err != nil {
				yield(nil, fmt.Errorf("list history for payment %d: %w", paymentID, err))
				return
			}

			for i := range page {
				entry := page[i]
				if !yield(&entry, nil) {
					return
				}
			}

			if len(page) < l.pageSize {
				return
			}
			last := page[len(page)-1]
			cursorAt, cursorID, started = last.CreatedAt, last.ID, true
		}
	}
}
