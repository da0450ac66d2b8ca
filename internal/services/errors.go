// Package services defines the business logic for super actions, manual
// mailbox actions, safe senders and history. This file centralizes the
// service-level error values so that handlers can map them to HTTP results
// consistently.
package services

import (
	"errors"

	"github.com/tbourn/mailsweep-backend/internal/safesender"
)

// Super action errors.
var (
	// ErrInsufficientSafeSenders is returned before any provider call when the
	// user has fewer safe senders than the policy requires.
	ErrInsufficientSafeSenders = errors.New("not enough safe senders")

	// ErrInvalidAction indicates an unknown super action or manual action kind.
	ErrInvalidAction = errors.New("invalid action type")

	// ErrInvalidDays is returned for by-age actions without a non-negative day count.
	ErrInvalidDays = errors.New("days must be zero or greater")

	// ErrActionNotFound indicates the action history row does not exist or is
	// not owned by the caller.
	ErrActionNotFound = errors.New("action not found")

	// ErrUndoExpired is returned once the restore window of a job has passed.
	ErrUndoExpired = errors.New("undo window has expired")

	// ErrNotUndoable is returned for jobs that are still running, failed
	// entirely, or were already undone.
	ErrNotUndoable = errors.New("action cannot be undone")
)

// Mailbox and safe sender errors.
var (
	// ErrNoEmails is returned when a manual action names no messages.
	ErrNoEmails = errors.New("no email ids given")

	// ErrTooManyEmails is returned when a manual action exceeds the per-request cap.
	ErrTooManyEmails = errors.New("too many email ids")

	// ErrInvalidPattern is returned for safe sender patterns that are not an
	// address, *@domain or user@*.
	ErrInvalidPattern = safesender.ErrInvalidPattern

	// ErrDuplicateSafeSender is returned when the pattern is already on the list.
	ErrDuplicateSafeSender = errors.New("safe sender already exists")

	// ErrSafeSenderNotFound indicates the safe sender does not exist or is not
	// owned by the caller.
	ErrSafeSenderNotFound = errors.New("safe sender not found")
)
