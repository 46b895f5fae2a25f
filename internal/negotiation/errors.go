package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied means the gate refused to open a negotiation.
	// User-correctable: sign the agreement, or wait for the open session.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidTransition means the requested state change is not in the
	// session transition table, typically a stale client retry.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrInvalidState means a deposit operation was attempted from the
	// wrong deposit status.
	ErrInvalidState = errors.New("invalid deposit state")

	// ErrNegotiationExpired means the time window has passed. Terminal.
	ErrNegotiationExpired = errors.New("negotiation window expired")

	// ErrPolicyViolation means agent-proposed terms fell outside the
	// configured bounds. The session continues; agreement is not recorded.
	ErrPolicyViolation = errors.New("proposed terms violate policy bounds")

	// ErrUpstreamTimeout means a collaborator (wallet, text generation)
	// was unavailable. Retryable; session state is unchanged.
	ErrUpstreamTimeout = errors.New("upstream collaborator unavailable")

	// ErrNotFound means the session or listing does not exist.
	ErrNotFound = errors.New("negotiation not found")

	// ErrNotParticipant means the actor is neither initiator nor owner.
	ErrNotParticipant = errors.New("actor is not a session participant")
)

// Denial reasons surfaced with ErrAccessDenied.
const (
	DeniedSelfNegotiation  = "self-negotiation"
	DeniedAccessNotGranted = "access-not-granted"
	DeniedAlreadyActive    = "already-active"
	DeniedNotEnabled       = "negotiation-disabled"
)

func denied(reason string) error {
	return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
}
