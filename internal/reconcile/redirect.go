package reconcile

import (
	pkgerrors "github.com/freshfoldapp/freshfold-backend/pkg/errors"
)

// Machine-readable reasons the redirect controller appends to the
// error destination. Browsers land on the order page with one of these
// instead of a raw error.
const (
	RedirectReasonInvalidParameters = "invalid_parameters"
	RedirectReasonPaymentIncomplete = "payment_incomplete"
	RedirectReasonPaymentNotFound   = "payment_not_found"
	RedirectReasonUnknown           = "unknown"
)

// RedirectReason maps a CompleteCheckout failure to its redirect
// reason code.
func RedirectReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return RedirectReasonUnknown
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		return RedirectReasonInvalidParameters
	case pkgerrors.CodeNotFound:
		return RedirectReasonPaymentNotFound
	case pkgerrors.CodeStateConflict:
		return RedirectReasonPaymentIncomplete
	default:
		return RedirectReasonUnknown
	}
}
