package models

import "errors"

var (
	ErrInvalidFeePercentage = errors.New("platform fee percentage must be between 0 and 100")
	ErrInvalidTransition    = errors.New("invalid invoice status transition")
)
