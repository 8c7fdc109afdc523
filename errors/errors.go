// Package errors provides error handling for scrapedash.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping and user-facing hints from one import:
//
//	// Wrap with context
//	if err := client.CancelJob(ctx, id); err != nil {
//	    return errors.Wrapf(err, "failed to cancel job %s", id)
//	}
//
//	// Attach the advisory message shown to the user
//	return errors.WithHint(ErrCancelIneligible, "job already finished")
//
// The sentinels below are the dashboard's error taxonomy. None of them is
// fatal to a session; callers match them with errors.Is.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

var (
	// ErrUnknownJob marks an event or action naming a job id the registry has never seen.
	ErrUnknownJob = New("unknown job")

	// ErrDuplicateJob marks a creation event for an id that is already registered.
	ErrDuplicateJob = New("duplicate job")

	// ErrStaleTransition marks a status change that would move a job backwards
	// or out of a terminal status.
	ErrStaleTransition = New("stale status transition")

	// ErrSubmissionRefused marks a batch the gate or the backend declined.
	ErrSubmissionRefused = New("submission refused")

	// ErrCancelIneligible marks a cancel request for a job that is no longer active.
	ErrCancelIneligible = New("cancellation not allowed")

	// ErrChannelClosed marks the end of the push channel.
	ErrChannelClosed = New("push channel closed")

	// ErrPageOutOfRange marks a page selection outside the current partition.
	ErrPageOutOfRange = New("page out of range")

	// ErrMalformedMessage marks a push or snapshot payload that does not match its kind.
	ErrMalformedMessage = New("malformed message")

	// ErrSessionStopped is returned by session calls made after its loop exited.
	ErrSessionStopped = New("session stopped")
)

// Advisory returns the user-facing text for err: its hints when present,
// otherwise the error message itself.
func Advisory(err error) string {
	if err == nil {
		return ""
	}
	if hints := FlattenHints(err); hints != "" {
		return hints
	}
	return err.Error()
}

// IsBenign reports whether err is one of the locally recovered reconciliation
// outcomes that is logged but never surfaced to the user.
func IsBenign(err error) bool {
	return err != nil && IsAny(err, ErrUnknownJob, ErrDuplicateJob, ErrStaleTransition)
}
