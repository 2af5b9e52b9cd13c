package models

import "fmt"

// Error taxonomy. Every service operation fails with one of these typed
// errors so the REST layer can map each to a distinct status code and the
// client can tell "already handled" apart from "you can't do that".

// ValidationError: malformed input. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError: the request collides with existing state (already queued,
// already in a match, duplicate report). MatchID carries the conflicting
// match so the client can redirect instead of erroring blindly.
type ConflictError struct {
	Msg     string
	MatchID string
}

func (e *ConflictError) Error() string { return e.Msg }

// StateError: the operation is not valid for the match's current status.
type StateError struct {
	Msg    string
	Status string
}

func (e *StateError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s (status %s)", e.Msg, e.Status)
	}
	return e.Msg
}

// AuthorizationError: the caller is not allowed to perform the operation.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// NotFoundError: the referenced entity does not exist.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }
