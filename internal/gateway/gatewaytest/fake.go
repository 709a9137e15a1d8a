// Package gatewaytest provides a scripted in-memory funds gateway.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/skybid/internal/gateway"
)

// Fake is a Gateway whose behavior is scripted per test. With no funcs set,
// every payment verifies and every release succeeds. Like the real gateway it
// honors idempotency keys: a key that already released money returns the
// original receipt without calling ReleaseFunc again.
type Fake struct {
	VerifyFunc  func(ctx context.Context, reference string) (gateway.Verification, error)
	ReleaseFunc func(ctx context.Context, req gateway.ReleaseRequest) (gateway.Release, error)

	mu       sync.Mutex
	verifies []string
	releases []gateway.ReleaseRequest
	receipts map[string]gateway.Release
}

func (f *Fake) VerifyPayment(ctx context.Context, reference string) (gateway.Verification, error) {
	f.mu.Lock()
	f.verifies = append(f.verifies, reference)
	f.mu.Unlock()

	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, reference)
	}
	return gateway.Verification{Reference: reference, Succeeded: true}, nil
}

func (f *Fake) ReleaseTransfer(ctx context.Context, req gateway.ReleaseRequest) (gateway.Release, error) {
	f.mu.Lock()
	f.releases = append(f.releases, req)
	if r, ok := f.receipts[req.IdempotencyKey]; ok {
		f.mu.Unlock()
		return r, nil
	}
	f.mu.Unlock()

	var (
		r   gateway.Release
		err error
	)
	if f.ReleaseFunc != nil {
		r, err = f.ReleaseFunc(ctx, req)
	} else {
		r = gateway.Release{TransferRef: fmt.Sprintf("tr_%s", req.IdempotencyKey)}
	}
	if err != nil {
		return gateway.Release{}, err
	}

	f.mu.Lock()
	if f.receipts == nil {
		f.receipts = make(map[string]gateway.Release)
	}
	f.receipts[req.IdempotencyKey] = r
	f.mu.Unlock()
	return r, nil
}

// Verifies returns the references passed to VerifyPayment.
func (f *Fake) Verifies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifies...)
}

// Releases returns every ReleaseTransfer request, including idempotent replays.
func (f *Fake) Releases() []gateway.ReleaseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.ReleaseRequest(nil), f.releases...)
}

// Paid returns the number of distinct idempotency keys that moved money.
func (f *Fake) Paid() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receipts)
}

var _ gateway.Gateway = (*Fake)(nil)
