package estimator

import "errors"

var (
	// ErrNoComparableData means the geo fallback pooled no transactions.
	ErrNoComparableData = errors.New("no comparable data")

	ErrInvalidArea = errors.New("exclusive area must be positive")
)
