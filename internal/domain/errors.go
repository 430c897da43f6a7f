package domain

import "errors"

// Storage-level errors.
var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("conflict")
)

// Validation errors.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrCurrencyMismatch = errors.New("currency does not match need")
)

// Ledger errors.
var (
	ErrNeedNotFound       = errors.New("need not found")
	ErrNeedNotVerified    = errors.New("need not verified")
	ErrNeedClosed         = errors.New("need is no longer accepting donations")
	ErrDonationNotFound   = errors.New("donation not found")
	ErrAlreadyConfirmed   = errors.New("donation already confirmed")
	ErrDonationFailed     = errors.New("donation payment failed")
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// Authorization errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
