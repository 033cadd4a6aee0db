// README: Order error taxonomy; every error unwraps to one of the kinds below.
package order

import (
	"errors"
	"fmt"
)

// Kinds. Callers branch on these with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("order state conflict")
	ErrBadRequest         = errors.New("bad request")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

var (
	ErrOrderNotFound   = newKindError(ErrNotFound, "order not found")
	ErrShopNotFound    = newKindError(ErrNotFound, "shop not found")
	ErrRiderNotFound   = newKindError(ErrNotFound, "rider not found")
	ErrProductNotFound = newKindError(ErrNotFound, "product not found")

	ErrNotShopOwner     = newKindError(ErrUnauthorized, "only the shop owner can perform this action")
	ErrNotAssignedRider = newKindError(ErrUnauthorized, "only the assigned rider can perform this action")

	ErrRiderUnavailable = newKindError(ErrPreconditionFailed, "rider unavailable: offline or already on a delivery")
	ErrAlreadyDelivered = newKindError(ErrPreconditionFailed, "cannot cancel an order that has already been delivered")

	// ErrDuplicateOrderNumber is returned by stores when the generated number is taken.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

func invalidTransition(current Status, event string) error {
	return newKindError(ErrInvalidTransition, "cannot %s order: current status is %s", event, current)
}

func invalidPaymentTransition(current, next PaymentStatus) error {
	return newKindError(ErrInvalidTransition, "cannot change payment status from %s to %s", current, next)
}

func badRequest(format string, args ...any) error {
	return newKindError(ErrBadRequest, format, args...)
}
