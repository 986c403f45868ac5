package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/internal/service"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentProcessor against the processor's REST API.
// Every request carries an Idempotency-Key and a signature over its body.
type Client struct {
	baseURL    string
	apiKey     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a processor client.
func NewClient(baseURL, apiKey string, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

type transferBody struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	PayoutID    string `json:"payout_id"`
}

type refundBody struct {
	ChargeID string `json:"charge_id"`
	Amount   int64  `json:"amount"`
	OrderID  string `json:"order_id"`
}

type createdResponse struct {
	ID string `json:"id"`
}

// CreateTransfer moves funds to a driver's connected account.
func (c *Client) CreateTransfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	return c.post(ctx, "/v1/transfers", req.IdempotencyKey, transferBody{
		Destination: req.Destination,
		Amount:      req.Amount,
		PayoutID:    req.PayoutID.String(),
	})
}

// CreateRefund refunds a captured charge. The order id keys it, so at most
// one refund per order is created however often this is retried.
func (c *Client) CreateRefund(ctx context.Context, req domain.RefundRequest) (string, error) {
	return c.post(ctx, "/v1/refunds", "refund-"+req.OrderID.String(), refundBody{
		ChargeID: req.ChargeID,
		Amount:   req.Amount,
		OrderID:  req.OrderID.String(),
	})
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	req.Header.Set("X-Signature", service.FormatSignatureHeader(ts, c.sigSvc.Sign(c.apiKey, service.SignedPayload(ts, payload))))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("idempotency_key", idempotencyKey).
			Msg("processor: non-2xx response")
		return "", fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var created createdResponse
	if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("POST %s: unreadable response", path)
	}

	c.log.Info().
		Str("path", path).
		Str("id", created.ID).
		Str("idempotency_key", idempotencyKey).
		Msg("processor: request accepted")
	return created.ID, nil
}
