package engine

import "errors"

var (
	// ErrUnresolvedConflict is recorded when a mutation keeps conflicting
	// after repeated merges within one cycle.
	ErrUnresolvedConflict = errors.New("conflict not resolved after repeated merges")

	// ErrLeaseHeld means another process drives sync for the tenant.
	ErrLeaseHeld = errors.New("sync lease held by another driver")

	// ErrLeaseLost means the lease expired or was taken during a cycle.
	ErrLeaseLost = errors.New("sync lease lost")

	ErrInvalidHandlers = errors.New("invalid table handlers")
)
