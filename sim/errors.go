package sim

import "errors"

var (
	// ErrCapacityExceeded reports an addition dropped because the queue,
	// the population ceiling or the ID space was full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidIndex reports interactive access to a slot outside the
	// current cell count, or to a dead cell where a live one is required.
	ErrInvalidIndex = errors.New("invalid cell index")

	// ErrConfiguration reports a configuration that cannot produce a usable
	// simulation. It is only returned by New.
	ErrConfiguration = errors.New("invalid configuration")
)
