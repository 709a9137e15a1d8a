package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies lifecycle errors by how a caller should react to them.
type Kind string

const (
	// KindValidation errors reject malformed input. Nothing was written.
	KindValidation Kind = "validation"
	// KindState errors mean the entity is not in a state that allows the
	// operation. The caller should re-fetch before retrying.
	KindState Kind = "state"
	// KindExternal errors come from a collaborator. The entity stays in its
	// last valid state and the call may be retried.
	KindExternal Kind = "external"
	// KindInvariant errors mean the ledger would have been left inconsistent.
	// The record has been flagged for manual reconciliation.
	KindInvariant Kind = "invariant"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrBudgetTooLow   = errors.New("budget below platform minimum")
	ErrBidTooLow      = errors.New("bid amount below platform minimum")
	ErrUnknownJobType = errors.New("unknown job type")

	ErrJobNotFound            = errors.New("job not found")
	ErrBidNotFound            = errors.New("bid not found")
	ErrJobNotOpen             = errors.New("job is not open for bidding")
	ErrJobAlreadyAssigned     = errors.New("job already assigned")
	ErrInvalidStateTransition = errors.New("invalid job state transition")
	ErrDuplicateBid           = errors.New("pilot already bid on this job")
	ErrSelfBidNotAllowed      = errors.New("clients cannot bid on their own jobs")
	ErrNotJobOwner            = errors.New("caller does not own this job")
	ErrBiddingNotPermitted    = errors.New("pilot account does not permit bidding")

	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrAccountLookupFailed       = errors.New("account status lookup failed")

	ErrInvariantViolation = errors.New("ledger invariant violation")
)

var kinds = map[error]Kind{
	ErrInvalidInput:   KindValidation,
	ErrBudgetTooLow:   KindValidation,
	ErrBidTooLow:      KindValidation,
	ErrUnknownJobType: KindValidation,

	ErrJobNotFound:            KindState,
	ErrBidNotFound:            KindState,
	ErrJobNotOpen:             KindState,
	ErrJobAlreadyAssigned:     KindState,
	ErrInvalidStateTransition: KindState,
	ErrDuplicateBid:           KindState,
	ErrSelfBidNotAllowed:      KindState,
	ErrNotJobOwner:            KindState,
	ErrBiddingNotPermitted:    KindState,

	ErrPaymentVerificationFailed: KindExternal,
	ErrAccountLookupFailed:       KindExternal,

	ErrInvariantViolation: KindInvariant,
}

// Error is the typed error returned by Manager operations. Err always wraps
// one of the package sentinels, so errors.Is works through it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a lifecycle error, or "" for anything else.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func newError(op string, sentinel error) error {
	return &Error{Kind: kinds[sentinel], Op: op, Err: sentinel}
}

func newErrorf(op string, sentinel error, format string, args ...any) error {
	return &Error{Kind: kinds[sentinel], Op: op, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

func wrapError(op string, sentinel, cause error) error {
	return &Error{Kind: kinds[sentinel], Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
