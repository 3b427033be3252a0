package model

import "errors"

var (
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrInvalidSignature          = errors.New("invalid webhook signature")
	ErrProviderUnavailable       = errors.New("payment provider unavailable")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrNotFound                  = errors.New("not found")
	ErrForbidden                 = errors.New("forbidden")

	// ErrAlreadySettled marks a settlement attempt that lost the race to an
	// earlier one; callers translate it into a no-op success.
	ErrAlreadySettled = errors.New("already settled")
)
