package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPClient implements Gateway against the gateway's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new funds gateway HTTP client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) VerifyPayment(ctx context.Context, reference string) (Verification, error) {
	var v Verification
	err := c.post(ctx, "/v1/payments/verify", "", verifyRequest{Reference: reference}, &v)
	if err != nil {
		return Verification{}, err
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}

func (c *HTTPClient) ReleaseTransfer(ctx context.Context, req ReleaseRequest) (Release, error) {
	if req.IdempotencyKey == "" {
		return Release{}, fmt.Errorf("%w: idempotency key is required", ErrGatewayRejected)
	}

	var r Release
	body := transferRequest{
		PilotID: req.PilotID.String(),
		Amount:  req.Amount.StringFixed(2),
	}
	if err := c.post(ctx, "/v1/transfers", req.IdempotencyKey, body, &r); err != nil {
		return Release{}, err
	}
	if r.TransferRef == "" {
		return Release{}, fmt.Errorf("%w: response carried no transfer reference", ErrGatewayRejected)
	}
	return r, nil
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrGatewayUnreachable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, errorMessage(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

// errorMessage extracts the gateway's error message, falling back to the raw body.
func errorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
}

type verifyRequest struct {
	Reference string `json:"reference"`
}

type transferRequest struct {
	PilotID string `json:"pilot_id"`
	Amount  string `json:"amount"`
}

// Compile-time check that HTTPClient implements Gateway.
var _ Gateway = (*HTTPClient)(nil)
