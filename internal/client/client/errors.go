package client

import "errors"

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrBadVersion            = errors.New("bad version")
	ErrInMaintenance         = errors.New("in maintenance")
	ErrNotInMaintenance      = errors.New("not in maintenance")
	ErrBadEncryptionRevision = errors.New("bad encryption revision")
	ErrNotAllowed            = errors.New("not allowed")
	ErrRoleAlreadyGranted    = errors.New("role already granted")
	ErrParticipantsMismatch  = errors.New("participants mismatch")
	ErrBadResponse           = errors.New("bad response")
)
