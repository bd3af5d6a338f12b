package marketplace

import "errors"

var (
	ErrLengthMismatch        = errors.New("marketplace: length mismatch")
	ErrUnauthorized          = errors.New("marketplace: unauthorized")
	ErrCollectionUnavailable = errors.New("marketplace: collection unavailable")
	ErrNilState              = errors.New("marketplace: state not configured")
	ErrNilLedger             = errors.New("marketplace: payment ledger not configured")
	ErrNilRegistry           = errors.New("marketplace: asset registry not configured")
	ErrInvalidListing        = errors.New("marketplace: invalid listing")
	ErrParamsNotFound        = errors.New("marketplace: params not initialised")
)
