// Package common defines sentinel errors and small helpers shared by the
// sync engine and its collaborators. Callers should use errors.Is to match
// the sentinel values, including through *Error.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Caller errors.
	ErrInvalidInput = errors.New("invalid input")

	// Engine error kinds. Every error returned by the sync engine wraps
	// exactly one of these.
	ErrBackendOffline            = errors.New("backend offline")
	ErrWorkspaceInMaintenance    = errors.New("workspace in maintenance")
	ErrWorkspaceNotInMaintenance = errors.New("workspace not in maintenance")
	ErrWorkspaceNotFound         = errors.New("workspace not found")
	ErrWorkspaceNoAccess         = errors.New("no access to workspace")
	ErrSharingNotAllowed         = errors.New("sharing not allowed")
	ErrNeverHadAccess            = errors.New("never had access to workspace")
	ErrRecipientRevoked          = errors.New("recipient user is revoked")
	ErrSync                      = errors.New("sync error")

	// Trust and message errors.
	ErrTrustResolution = errors.New("trust resolution error")
	ErrInvalidMessage  = errors.New("invalid message")
)

// Error carries the context of a failed engine operation.
//
// Kind is one of the sentinel errors of this package and Err the underlying
// cause (transport or storage error), which may be nil. Both are reachable
// with errors.Is.
type Error struct {
	Op        string
	Workspace string
	Item      string
	Kind      error
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Workspace != "" {
		b.WriteString(": workspace ")
		b.WriteString(e.Workspace)
	}
	if e.Item != "" {
		b.WriteString(": ")
		b.WriteString(e.Item)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
