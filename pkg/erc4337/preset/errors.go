package preset

import "errors"

var (
	ErrMissingNetwork    = errors.New("network client is required")
	ErrMissingAccount    = errors.New("account adapter is required")
	ErrMissingEntrypoint = errors.New("entrypoint address is required")
	ErrMissingFeeOracle  = errors.New("fees not supplied and no fee oracle configured")

	// ErrMalformedBatch is returned before any network call when the batch legs do not line up.
	ErrMalformedBatch = errors.New("malformed batch")
	// ErrMalformedIntent is returned before any network call for a negative amount, gas or nonce.
	ErrMalformedIntent = errors.New("malformed transaction")
	// ErrMalformedInitCode is returned when initCode is too short to hold a deployer address.
	ErrMalformedInitCode = errors.New("malformed init code")
	ErrEmptySignature    = errors.New("account returned an empty signature")
)
