package billing

import "errors"

// Typed failures surfaced by the billing core. Callers match with errors.Is.
var (
	// ErrMissingReference means an event payload lacks the identifier needed
	// to locate a local row. Retrying cannot change the outcome; these are
	// logged for manual reconciliation instead.
	ErrMissingReference = errors.New("billing: event payload is missing the order reference")

	// ErrUnknownPrice means a payload or request references a price id that
	// is not registered in the static price table. Configuration drift.
	ErrUnknownPrice = errors.New("billing: price id is not registered")

	// ErrNoCustomerFound means a billing-portal session was requested for a
	// user with no stored provider customer id. User-actionable, not a fault.
	ErrNoCustomerFound = errors.New("billing: no billing customer found for user")

	// ErrSignatureInvalid is returned when webhook signature verification
	// fails. Rejected at the boundary, never reaches reconciliation.
	ErrSignatureInvalid = errors.New("billing: invalid webhook signature")
)
