// Package errs provides the typed failure taxonomy shared across the Agora ledger.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a ledger error category. Every failure returned by the
// order engine carries exactly one Code so callers can branch on the
// outcome without string matching.
type Code string

const (
	// CodeNotRegistered indicates the caller has never registered.
	CodeNotRegistered Code = "not_registered"
	// CodeAlreadyRegistered indicates a second registration attempt.
	CodeAlreadyRegistered Code = "already_registered"
	// CodeForbidden indicates the caller's role or identity does not permit the operation.
	CodeForbidden Code = "forbidden"
	// CodeSelfPurchaseForbidden indicates a seller attempted to buy their own listing.
	CodeSelfPurchaseForbidden Code = "self_purchase_forbidden"
	// CodeRequesterCannotResolve indicates the cancellation requester tried to resolve their own request.
	CodeRequesterCannotResolve Code = "requester_cannot_resolve"
	// CodeInvalidParam indicates a parameter outside its documented bounds.
	CodeInvalidParam Code = "invalid_param"
	// CodeInvalidScore indicates a rating score outside the 1..5 range.
	CodeInvalidScore Code = "invalid_score"
	// CodeListingNotFound indicates the referenced listing does not exist.
	CodeListingNotFound Code = "listing_not_found"
	// CodeOrderNotFound indicates the referenced order does not exist.
	CodeOrderNotFound Code = "order_not_found"
	// CodeNoCancellationPending indicates no cancellation request exists for the order.
	CodeNoCancellationPending Code = "no_cancellation_pending"
	// CodeInvalidState indicates the order state does not admit the transition.
	CodeInvalidState Code = "invalid_state"
	// CodeOrderCancelled indicates the order already reached the Cancelled state.
	CodeOrderCancelled Code = "order_cancelled"
	// CodeOrderNotReceived indicates a rating was attempted before receipt.
	CodeOrderNotReceived Code = "order_not_received"
	// CodeAlreadyRated indicates the order was already rated in that direction.
	CodeAlreadyRated Code = "already_rated"
	// CodeCancellationAlreadyPending indicates a cancellation request is already open.
	CodeCancellationAlreadyPending Code = "cancellation_already_pending"
	// CodeInsufficientStock indicates the listing cannot cover the requested quantity.
	CodeInsufficientStock Code = "insufficient_stock"
	// CodeInsufficientPayment indicates the tendered amount is below the order total.
	CodeInsufficientPayment Code = "insufficient_payment"
	// CodeExcessPayment indicates the tendered amount exceeds the order total.
	CodeExcessPayment Code = "excess_payment"
	// CodeIDOverflow indicates an id counter reached its bound.
	CodeIDOverflow Code = "id_overflow"
	// CodeStockOverflow indicates restoring stock would overflow the stock counter.
	CodeStockOverflow Code = "stock_overflow"
	// CodeArithmeticOverflow indicates a reputation accumulator would overflow.
	CodeArithmeticOverflow Code = "arithmetic_overflow"
	// CodeStorage indicates a persistence-layer failure.
	CodeStorage Code = "storage"
)

// E captures structured error information produced across the ledger.
type E struct {
	Op      string
	Code    Code
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:      strings.TrimSpace(op),
		Code:    code,
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the Code carried by err, or the empty Code when err is
// not a ledger error.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
