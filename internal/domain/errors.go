package domain

import "errors"

// Sentinel errors shared across services and repositories.
var (
	// ErrNotFound is returned when the requested entity does not exist
	// (or was deleted concurrently).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed input rejected before any
	// mutation, e.g. a bad day string or min_players > max_players.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPreconditionNotMet is returned when an operation's state
	// precondition fails and nothing was changed, e.g. leaving a confirmed
	// session or confirming a date as a non-GM.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrStaleConfirmation is returned by ConfirmDate when the chosen day
	// has dropped out of the common availability since the caller last
	// observed it. The caller should re-fetch and retry.
	ErrStaleConfirmation = errors.New("confirmation is stale")

	// ErrConflict is returned by SessionStore.Transact when a concurrent
	// write invalidated the read snapshot. Transient; services retry.
	ErrConflict = errors.New("write conflict")

	// ErrConflictExhausted is returned once the bounded retry loop gives up.
	ErrConflictExhausted = errors.New("write conflict: retries exhausted")

	// ErrForbidden is returned when the requester is not allowed to perform
	// the operation, e.g. deleting a session owned by someone else.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
)
