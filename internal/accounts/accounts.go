// Package accounts answers whether a pilot's account currently permits
// bidding. The answer comes from the external account service and can be
// cached in Redis.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/cache"
)

// ErrLookupUnavailable is returned when the account service cannot answer.
var ErrLookupUnavailable = errors.New("account status lookup unavailable")

// Lookup reports whether a pilot may bid.
type Lookup interface {
	IsBiddingPermitted(ctx context.Context, pilotID uuid.UUID) (bool, error)
}

// HTTPClient implements Lookup against the account service REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// IsBiddingPermitted returns false without error for accounts the service does
// not know.
func (c *HTTPClient) IsBiddingPermitted(ctx context.Context, pilotID uuid.UUID) (bool, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/status", c.baseURL, pilotID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrLookupUnavailable, resp.StatusCode)
	}

	var status struct {
		BiddingPermitted bool   `json:"bidding_permitted"`
		Tier             string `json:"tier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("%w: decoding response: %v", ErrLookupUnavailable, err)
	}
	return status.BiddingPermitted, nil
}

// CachedLookup answers from Redis when it can and falls back to the wrapped
// Lookup. Cache failures are logged and never fail the lookup; errors from the
// wrapped Lookup are not cached.
type CachedLookup struct {
	next  Lookup
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedLookup(next Lookup, c cache.Cache, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, cache: c, ttl: ttl}
}

func (l *CachedLookup) IsBiddingPermitted(ctx context.Context, pilotID uuid.UUID) (bool, error) {
	permitted, found, err := l.cache.GetBiddingPermitted(ctx, pilotID)
	if err != nil {
		slog.Warn("account status cache read failed", "pilot_id", pilotID, "error", err)
	} else if found {
		return permitted, nil
	}

	permitted, err = l.next.IsBiddingPermitted(ctx, pilotID)
	if err != nil {
		return false, err
	}

	if err := l.cache.SetBiddingPermitted(ctx, pilotID, permitted, l.ttl); err != nil {
		slog.Warn("account status cache write failed", "pilot_id", pilotID, "error", err)
	}
	return permitted, nil
}

// StaticLookup permits or denies every pilot. It backs local development when
// no account service is configured.
type StaticLookup bool

func (s StaticLookup) IsBiddingPermitted(context.Context, uuid.UUID) (bool, error) {
	return bool(s), nil
}

var (
	_ Lookup = (*HTTPClient)(nil)
	_ Lookup = (*CachedLookup)(nil)
	_ Lookup = StaticLookup(true)
)
