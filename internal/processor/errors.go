package processor

import (
	"errors"
	"fmt"
	"net/http"
)

// Op names a remote processor operation.
type Op string

const (
	OpCreateHold    Op = "create_hold"
	OpCreatePayment Op = "create_payment"
	OpPaymentStatus Op = "payment_status"
	OpCaptureHold   Op = "capture_hold"
)

// Error is the uniform failure result of a processor call: the upstream
// status code and raw body for non-2xx responses, or a synthesized gateway
// code for transport failures.
type Error struct {
	Op         Op
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor %s failed (%d): %s", e.Op, e.StatusCode, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure looks like an upstream availability
// problem rather than a rejection of the request.
func (e *Error) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
