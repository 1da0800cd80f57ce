package gateway

import "errors"

// Sentinel errors for the gateway domain. The messages double as the
// client-visible "detail" strings of the error responses; existing clients
// match on them, so they are part of the public API surface and must not
// be reworded.
var (
	ErrMissingKey = errors.New("Missing APIKEY header")
	ErrInvalidKey = errors.New("Invalid API key")
	ErrUpstream   = errors.New("Error communicating with ollama service")
	ErrInternal   = errors.New("Internal server error")
)
