package engine

import "errors"

var (
	// ErrConfiguration aborts a run whose generators can never produce a
	// valid value, such as an unsatisfiable bound.
	ErrConfiguration = errors.New("engine: configuration error")

	// ErrPredicateFalse is the failure returned by a [Predicate] test.
	ErrPredicateFalse = errors.New("engine: predicate returned false")

	// errStop cancels sibling workers once a failure is found.
	errStop = errors.New("engine: stop")
)
