package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUpstream         = errors.New("upstream unavailable")
	ErrMalformed        = errors.New("malformed payload")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrPositionTooLarge = errors.New("position exceeds max size")
	ErrRiskLimit        = errors.New("risk limit reached")
	ErrAlreadyVerified  = errors.New("event already verified")
	ErrSigningFailed    = errors.New("signing failed")
	ErrLockHeld         = errors.New("lock already held")
)
