package apperrors

import "errors"

// Standardized broker-core errors
var (
	ErrOrderRejected = errors.New("order rejected")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrLotTooCoarse  = errors.New("lot size too coarse")
)
