// match-escrow-system/services/ledger_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"match-escrow-system/utils"

	"golang.org/x/time/rate"
)

// ErrLedgerUnavailable means the request never got a verdict from the
// ledger. The transfer may be retried with the same reference.
var ErrLedgerUnavailable = errors.New("ledger service unavailable")

// ErrTransferRejected means the ledger refused the transfer outright.
var ErrTransferRejected = errors.New("transfer rejected by ledger")

type TransferStatus string

const (
	TransferAccepted  TransferStatus = "accepted"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRequest moves amount of asset out of escrow to recipient.
// Reference is the payout id and makes resubmission idempotent.
type TransferRequest struct {
	Reference string `json:"reference"`
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}

type TransferResponse struct {
	TransferID string         `json:"transfer_id"`
	Status     TransferStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
}

type TransferUpdate struct {
	TransferID string         `json:"transfer_id"`
	Reference  string         `json:"reference"`
	Status     TransferStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// LedgerClient talks to the external ledger service.
type LedgerClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewLedgerClient(baseURL, token string, perSecond float64) *LedgerClient {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &LedgerClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.HTTPClient,
		Limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *LedgerClient) do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}
	req.Header.Set("X-Service-Token", c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrLedgerUnavailable, err)
	}
	return body, resp.StatusCode, nil
}

// SubmitTransfer posts one transfer. A 4xx answer is a rejection; a 5xx
// answer or a network error is ErrLedgerUnavailable.
func (c *LedgerClient) SubmitTransfer(ctx context.Context, tr TransferRequest) (*TransferResponse, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	switch {
	case status >= 500:
		log.Printf("[Ledger] /transfers returned %d: %s", status, string(body))
		return nil, fmt.Errorf("%w: status %d", ErrLedgerUnavailable, status)
	case status >= 400:
		log.Printf("[Ledger] /transfers rejected %s with %d: %s", tr.Reference, status, string(body))
		return nil, fmt.Errorf("%w: %d %s", ErrTransferRejected, status, bytes.TrimSpace(body))
	}

	var out TransferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLedgerUnavailable, err)
	}
	if out.Status == "" {
		out.Status = TransferAccepted
	}
	return &out, nil
}

// TransferUpdates lists transfers whose status changed after since.
func (c *LedgerClient) TransferUpdates(ctx context.Context, since time.Time) ([]TransferUpdate, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/transfers")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrLedgerUnavailable, status, string(body))
	}

	var response struct {
		Transfers []TransferUpdate `json:"transfers"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return response.Transfers, nil
}
