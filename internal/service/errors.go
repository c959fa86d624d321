package service

import "errors"

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProductNotFound     = errors.New("product not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoActivePurchase    = errors.New("no active purchase for listing")
	ErrNotReschedulable    = errors.New("product has no schedule to change")
	ErrForbidden           = errors.New("listing belongs to another user")
	ErrPromotionActive     = errors.New("listing has a scheduled promotion in progress")
	ErrRunInProgress       = errors.New("a run is already in progress")
	// ErrInvalidInput wraps caller mistakes; the wrapped message says which.
	ErrInvalidInput = errors.New("invalid input")
)
