// Package livesession owns the lifecycle of live-shopping broadcasts:
// session state transitions, the participant roster, chat message
// admission and ordering, and product-highlight signalling. It talks to
// storage and to the media layer only through the PersistenceGateway and
// MediaTransport ports, so handlers and tests can swap either out.
package livesession

import "errors"

// Sentinel errors returned by coordinator operations. Every precondition
// violation maps to exactly one of these so callers can render precise
// feedback; use errors.Is to discriminate.
var (
	// ErrNotFound means the session (or participant) does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden means the actor lacks authority for the operation,
	// e.g. a non-host calling a host-only operation or a non-participant
	// posting chat.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the operation is illegal in the session's
	// current state, e.g. starting a session that is already live.
	ErrInvalidState = errors.New("invalid session state")

	// ErrInvalidSchedule means the requested scheduled time is in the past.
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")

	// ErrValidation means malformed input: empty chat content, content
	// over the cap, or a highlight product outside the session catalog.
	ErrValidation = errors.New("validation failed")

	// ErrChatDisabled means chat was disabled for the session at creation.
	ErrChatDisabled = errors.New("chat is disabled for this session")

	// ErrUnavailable wraps persistence failures. The failed operation had
	// no partial effect.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrMediaTransport wraps media transport failures that occurred after
	// the session state was rolled back to its previous value.
	ErrMediaTransport = errors.New("media transport failure")
)
