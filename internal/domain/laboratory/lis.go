package laboratory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LIS result statuses reported by the external laboratory system.
const (
	LISStatusPending = "pending"
	LISStatusFinal   = "final"
)

// LISOrder is the body of POST {LIS_URL}/orders.
type LISOrder struct {
	ExternalID uuid.UUID `json:"external_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	TestCode   string    `json:"test_code"`
	Priority   string    `json:"priority"`
	OrderedAt  time.Time `json:"ordered_at"`
}

// LISResult is the body of GET {LIS_URL}/orders/{id}/result.
type LISResult struct {
	Status string   `json:"status"`
	Value  *float64 `json:"value,omitempty"`
	Text   *string  `json:"text,omitempty"`
	Unit   *string  `json:"unit,omitempty"`
}

// LISClient talks JSON over HTTP to an external laboratory information
// system. A client built with an empty base URL is disabled.
type LISClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type LISOption func(*LISClient)

func WithLISHTTPClient(c *http.Client) LISOption {
	return func(l *LISClient) { l.client = c }
}

func NewLISClient(baseURL, apiKey string, timeout time.Duration, opts ...LISOption) *LISClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := &LISClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LISClient) Enabled() bool {
	return l != nil && l.baseURL != ""
}

// SubmitOrder registers an order and returns the LIS order id.
func (l *LISClient) SubmitOrder(ctx context.Context, o LISOrder) (string, error) {
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := l.do(ctx, http.MethodPost, "/orders", o, &out); err != nil {
		return "", err
	}
	if out.OrderID == "" {
		return "", fmt.Errorf("lis: response has no order_id")
	}
	return out.OrderID, nil
}

func (l *LISClient) FetchResult(ctx context.Context, orderID string) (*LISResult, error) {
	var out LISResult
	if err := l.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/result", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *LISClient) do(ctx context.Context, method, path string, body, dst any) error {
	if !l.Enabled() {
		return fmt.Errorf("lis: integration is disabled")
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lis: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("lis: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if l.apiKey != "" {
		req.Header.Set("X-API-Key", l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("lis: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("lis: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lis: %s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("lis: decode response: %w", err)
	}
	return nil
}
