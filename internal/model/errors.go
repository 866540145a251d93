package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the recovery core wraps exactly one of these.
var (
	ErrAuthorization = errors.New("authorization error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrState         = errors.New("state error")
	ErrTimelock      = errors.New("timelock error")
)

var (
	// Authorization
	ErrNotOwner    = fmt.Errorf("%w: caller is not the owner", ErrAuthorization)
	ErrNotGuardian = fmt.Errorf("%w: caller is not an active guardian", ErrAuthorization)

	// Validation
	ErrZeroIdentity       = fmt.Errorf("%w: identity must not be the zero address", ErrValidation)
	ErrGuardianExists     = fmt.Errorf("%w: guardian is already active", ErrValidation)
	ErrSameSigner         = fmt.Errorf("%w: new signer equals current signer", ErrValidation)
	ErrTargetMismatch     = fmt.Errorf("%w: new signer does not match pending request", ErrValidation)
	ErrLengthMismatch     = fmt.Errorf("%w: tokens and spenders length mismatch", ErrValidation)
	ErrBatchTooLarge      = fmt.Errorf("%w: batch exceeds maximum size", ErrValidation)
	ErrEmptyBatch         = fmt.Errorf("%w: batch is empty", ErrValidation)
	ErrInvalidWeight      = fmt.Errorf("%w: weight exceeds the maximum total weight", ErrValidation)
	ErrInvalidIdentity    = fmt.Errorf("%w: malformed account address", ErrValidation)
	ErrInvalidSignature   = fmt.Errorf("%w: signature does not match address", ErrValidation)
	ErrChallengeNotFound  = fmt.Errorf("%w: no outstanding login challenge", ErrValidation)
	ErrInvalidRequestBody = fmt.Errorf("%w: invalid JSON body", ErrValidation)

	// Not found
	ErrGuardianNotFound = fmt.Errorf("%w: guardian is not active", ErrNotFound)

	// State
	ErrRecoveryPending   = fmt.Errorf("%w: recovery already pending", ErrState)
	ErrNoRecoveryPending = fmt.Errorf("%w: no recovery pending", ErrState)
	ErrAlreadyApproved   = fmt.Errorf("%w: guardian already approved", ErrState)
	ErrAlreadyExecuted   = fmt.Errorf("%w: recovery already executed", ErrState)
	ErrReentrantCall     = fmt.Errorf("%w: reentrant call", ErrState)

	// Timelock
	ErrDelayNotElapsed = fmt.Errorf("%w: recovery delay has not elapsed", ErrTimelock)
)

// Kind reports the taxonomy name of err, or "" when err carries none.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuthorization):
		return "AuthorizationError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrState):
		return "StateError"
	case errors.Is(err, ErrTimelock):
		return "TimelockError"
	default:
		return ""
	}
}
