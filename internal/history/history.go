package history

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
)

// Ledger is the append-only transition log.
type Ledger interface {
	Record(ctx context.Context, entry *workflow.HistoryEntry) (int64, error)
	// ListForPayment yields entries oldest first. Every range over the result re-reads the store.
	ListForPayment(ctx context.Context, paymentID int64) iter.Seq2[*workflow.HistoryEntry, error]
}

// Collect drains a ledger sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*workflow.HistoryEntry, error]) ([]*workflow.HistoryEntry, error) {
	entries := make([]*workflow.HistoryEntry, 0)
	for entry, err := range seq {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemoryLedger keeps entries in process. Used by tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []workflow.HistoryEntry
	nextID  int64
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

func (l *MemoryLedger) Record(ctx context.Context, entry *workflow.HistoryEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	entry.ID = l.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	l.entries = append(l.entries, *entry)
	return entry.ID, nil
}

func (l *MemoryLedger) ListForPayment(ctx context.Context, paymentID int64) iter.Seq2[*workflow.HistoryEntry, error] {
	return func(yield func(*workflow.HistoryEntry, error) bool) {
		l.mu.RLock()
		snapshot := make([]workflow.HistoryEntry, 0)
		for _, e := range l.entries {
			if e.PaymentID == paymentID {
				snapshot = append(snapshot, e)
			}
		}
		l.mu.RUnlock()

		for i := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			entry := snapshot[i]
			if !yield(&entry, nil) {
				return
			}
		}
	}
}

// Len reports the number of entries across all payments.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
