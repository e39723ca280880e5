package nitree

import (
	"errors"
)

var (
	// ErrCycle is returned when a node would be moved under itself or one
	// of its own descendants.  Nothing has been written when it is returned.
	ErrCycle = errors.New("nitree: move would create a cycle")

	// ErrInvariant marks a stored bound that is not a valid lowest-terms
	// fraction in [0, 1), or a transform that produced one.  It indicates
	// corruption or a write that bypassed this package.
	ErrInvariant = errors.New("nitree: interval invariant violated")

	// ErrConflict is returned when a lock could not be acquired in time or
	// the store aborted a transaction because of a concurrent writer.  The
	// whole operation can be retried.
	ErrConflict = errors.New("nitree: concurrent modification")

	// ErrLimitExceeded is returned when a numerator or denominator no longer
	// fits in an int64.
	ErrLimitExceeded = errors.New("nitree: interval bounds exceed int64")

	ErrNotFound      = errors.New("nitree: node not found")
	ErrHasChildren   = errors.New("nitree: node has children")
	ErrScopeOccupied = errors.New("nitree: scope already has a root")
	ErrScopeMismatch = errors.New("nitree: parent belongs to a different scope")
)
