package posting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
)

const StatusPosted = "posted"

var ErrRejected = errors.New("ledger rejected posting")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client posts approved payments to the external ledger. The voucher number is
// sent as external_id so a retried post of the same payment is idempotent.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type postingRequest struct {
	ExternalID string  `json:"external_id"`
	Amount     string  `json:"amount"`
	Currency   string  `json:"currency"`
	Direction  string  `json:"direction"`
	PartnerRef string  `json:"partner_ref"`
	JournalRef string  `json:"journal_ref,omitempty"`
	Memo       *string `json:"memo,omitempty"`
}

type postingResponse struct {
	Data struct {
		ID         string `json:"id"`
		ExternalID string `json:"external_id"`
		Status     string `json:"status"`
		Reason     string `json:"reason,omitempty"`
	} `json:"data"`
}

func externalID(p *payment.Payment) string {
	if p.VoucherNumber != nil && *p.VoucherNumber != "" {
		return *p.VoucherNumber
	}
	return "payment-" + strconv.FormatInt(p.ID, 10)
}

// Post returns the ledger reference for p.
func (c *Client) Post(ctx context.Context, p *payment.Payment) (string, error) {
	body, err := json.Marshal(postingRequest{
		ExternalID: externalID(p),
		Amount:     p.Amount.String(),
		Currency:   p.Currency,
		Direction:  string(p.Direction),
		PartnerRef: p.PartnerRef,
		JournalRef: p.JournalRef,
		Memo:       p.Memo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal posting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/postings", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Idempotency-Key", externalID(p))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var apiResponse postingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResponse.Data.Status != StatusPosted || apiResponse.Data.ID == "" {
		return "", fmt.Errorf("%w: status %q %s", ErrRejected, apiResponse.Data.Status, apiResponse.Data.Reason)
	}

	c.logger.Info("payment posted to ledger",
		"payment_id", p.ID,
		"external_id", apiResponse.Data.ExternalID,
		"posting_ref", apiResponse.Data.ID)

	return apiResponse.Data.ID, nil
}

// LocalPoster is used when no ledger is configured; it books the payment under its voucher.
type LocalPoster struct{}

func (LocalPoster) Post(_ context.Context, p *payment.Payment) (string, error) {
	return "LOCAL-" + externalID(p), nil
}
