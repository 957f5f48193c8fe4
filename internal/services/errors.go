// Package services defines the business logic of the alliance bot: the
// verification lifecycle engine, the authorization resolver, nickname
// rendering and alliance administration.
//
// This file centralizes the service-level error taxonomy so that every entry
// point (Discord interactions, the admin HTTP API, the CLI) can map failures
// consistently. Services wrap these sentinels with context using %w; callers
// match them with errors.Is and translate them into user-facing replies or
// HTTP status codes at the transport layer.
package services

import "errors"

var (
	// ErrNotFound indicates that a referenced alliance mapping, request or
	// member does not exist (or the alliance is disabled).
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a request id is already taken in the
	// community.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput covers out-of-bounds IGNs, empty prefixes and malformed
	// interaction tokens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden is returned when the actor may not perform the action, e.g.
	// decide a request of an alliance they do not approve for.
	ErrForbidden = errors.New("forbidden")

	// ErrChannelUnavailable indicates that the alliance's approval channel is
	// missing or does not accept messages.
	ErrChannelUnavailable = errors.New("approval channel unavailable")

	// ErrExternalFailure indicates that the chat platform refused a mutation
	// or could not be reached.
	ErrExternalFailure = errors.New("external failure")
)
