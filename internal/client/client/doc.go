// Package client is the transport boundary of the sync engine.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Backend interface) covering the
//     vlob, realm, maintenance, message and user commands the engine needs.
//  2. A concrete gRPC implementation (see GRPCClient) that sends JSON-encoded
//     requests, authenticates every call with a device-signed bearer token
//     and maps gRPC status codes to sentinel errors.
//
// An in-process implementation lives in the inmemory subpackage.
//
// # Error Handling
//
// Backend outcomes are exposed as sentinel errors that callers match with
// errors.Is: ErrUnavailable for an unreachable backend, ErrAlreadyExists and
// ErrBadVersion for write conflicts, ErrInMaintenance, ErrNotInMaintenance,
// ErrBadEncryptionRevision, ErrNotAllowed, ErrRoleAlreadyGranted,
// ErrParticipantsMismatch and ErrNotFound for the remaining statuses.
//
// # Concurrency & Contexts
//
// Implementations are safe for concurrent use. All operations accept
// context.Context and honour cancellation and timeouts.
package client
