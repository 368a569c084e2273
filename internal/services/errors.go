package services

import "errors"

// Ceremony outcome kinds. Handlers map these to HTTP statuses; everything
// crypto-adjacent is surfaced to clients as the same generic failure so the
// response never reveals which check tripped.
var (
	// ErrValidation marks a malformed request (missing email, unparseable
	// authenticator response). Safe to reveal.
	ErrValidation = errors.New("invalid request")
	// ErrNoChallenge means no pending challenge exists for the identity:
	// expired, consumed, or never started.
	ErrNoChallenge = errors.New("no pending challenge")
	// ErrVerificationFailed covers every attestation/assertion check
	// failure: challenge, origin, RP id, signature.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrCloneDetected means the signature counter did not advance.
	// Externally indistinguishable from ErrVerificationFailed.
	ErrCloneDetected = errors.New("authenticator clone detected")
	// ErrConflict marks a credential or identity collision.
	ErrConflict = errors.New("already registered")
	// ErrDependency marks an unavailable cache or store. Ceremonies are not
	// retried internally; the client restarts from phase one.
	ErrDependency = errors.New("dependency unavailable")
)
