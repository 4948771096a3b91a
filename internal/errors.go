package llamaxing

import "errors"

// Sentinel errors for the gateway domain, mapped to HTTP status at the
// server edge (spec §7).
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrModelNotFound   = errors.New("model not found")
	ErrCapabilityGate  = errors.New("model not valid for this endpoint")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)
