package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "notifications.payments"

// Publisher is the subset of *nats.Conn the sender needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON body published for every notification.
type Message struct {
	Kind      Kind      `json:"kind"`
	Recipient string    `json:"recipient"`
	PaymentID int64     `json:"payment_id"`
	SentAt    time.Time `json:"sent_at"`
}

// NATSSender publishes to <prefix>.<kind> for the downstream notifications service.
type NATSSender struct {
	conn   Publisher
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

func NewNATSSender(conn Publisher, subjectPrefix string, logger *slog.Logger) *NATSSender {
	prefix := strings.TrimSuffix(subjectPrefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSender{conn: conn, prefix: prefix, now: time.Now, logger: logger}
}

func (s *NATSSender) Subject(kind Kind) string {
	return s.prefix + "." + string(kind)
}

func (s *NATSSender) Send(ctx context.Context, recipient string, kind Kind, paymentID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		Kind:      kind,
		Recipient: recipient,
		PaymentID: paymentID,
		SentAt:    s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := s.Subject(kind)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	s.logger.Debug("notification published",
		"subject", subject,
		"recipient", recipient,
		"payment_id", paymentID)
	return nil
}

// Connect dials NATS with reconnect logging.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("payment-approval"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
