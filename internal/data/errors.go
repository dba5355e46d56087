package data

import "errors"

// Shared sentinel errors for data-layer repositories. Model-level sentinels
// (ErrPOINotFound and friends) live in the domain package; these cover
// conditions only the data layer can detect.
var (
	// ErrCacheUnavailable indicates the cache backend could not be reached.
	// Callers treat it as a miss and fall back to the database.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrBatchSizeRequired indicates a maintenance operation was invoked
	// without a positive batch size.
	ErrBatchSizeRequired = errors.New("batch size must be greater than zero")
)
