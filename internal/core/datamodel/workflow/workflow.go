package workflow

import "time"

// HistoryEntry is one committed lifecycle transition. Rows are insert-only.
type HistoryEntry struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	PaymentID int64     `gorm:"column:payment_id;not null;index:idx_history_payment_order,priority:1" json:"payment_id"`
	ActorID   int64     `gorm:"column:actor_id;not null" json:"actor_id"`
	FromState string    `gorm:"column:from_state;not null" json:"from_state"`
	ToState   string    `gorm:"column:to_state;not null" json:"to_state"`
	Action    string    `gorm:"column:action;not null" json:"action"`
	Comment   *string   `gorm:"column:comment" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_history_payment_order,priority:2" json:"created_at"`
}

func (HistoryEntry) TableName() string {
	return "approval_history"
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationLog records every notification the service tried to send.
// DedupeKey is unique while set; a failed attempt clears it so the slot can be claimed again.
type NotificationLog struct {
	ID        int64              `gorm:"primaryKey" json:"id"`
	PaymentID int64              `gorm:"column:payment_id;not null;index:idx_notification_lookup,priority:1" json:"payment_id"`
	Kind      string             `gorm:"column:kind;not null;index:idx_notification_lookup,priority:2" json:"kind"`
	Stage     string             `gorm:"column:stage;not null;index:idx_notification_lookup,priority:3" json:"stage"`
	Recipient string             `gorm:"column:recipient;not null" json:"recipient"`
	Status    NotificationStatus `gorm:"column:status;not null" json:"status"`
	DedupeKey *string            `gorm:"column:dedupe_key;uniqueIndex" json:"dedupe_key,omitempty"`
	Error     *string            `gorm:"column:error" json:"error,omitempty"`
	CreatedAt time.Time          `gorm:"column:created_at;not null" json:"created_at"`
	SentAt    *time.Time         `gorm:"column:sent_at" json:"sent_at,omitempty"`
}

func (NotificationLog) TableName() string {
	return "notification_log"
}
