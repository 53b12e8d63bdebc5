package apperrors

import "errors"

// Configuration errors. These abort startup.
var (
	ErrNoTargetColumns = errors.New("no tenant target columns configured")
	ErrNoProviders     = errors.New("no tenant identity providers registered")
	ErrInvalidScanMode = errors.New("invalid tenant scan mode")
)

// Per-call errors.
var (
	// ErrParse marks SQL the parser could not handle. Callers degrade to pass-through.
	ErrParse = errors.New("unparsable SQL")
	// ErrUnsupportedStatement marks parsed SQL whose shape cannot be tenant-scoped.
	ErrUnsupportedStatement = errors.New("unsupported statement shape")
	// ErrNoTenant is returned by an identity provider that has no tenant for the call.
	ErrNoTenant = errors.New("no tenant for this context")
	// ErrNoIdentity means every provider in the chain declined.
	ErrNoIdentity = errors.New("no valid tenant identity provided")
)
