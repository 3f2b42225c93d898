// Package repository defines the meal stores and the error values they
// share. These sentinel values allow higher layers such as handlers to
// distinguish expected domain outcomes from infrastructure failures. For
// example, ErrSoldOut means the conditional decrement found no serving
// left, while ErrStorageUnavailable wraps anything the backend itself
// failed at.
package repository

import "errors"

// ErrMealNotFound is returned when no meal has the requested id. Handlers
// should translate this into an HTTP 404 response.
var ErrMealNotFound = errors.New("meal not found")

// ErrSoldOut is returned by DecrementServings when servings_left was not
// positive at decrement time. It is a final answer, not a lost race that
// should be retried. Handlers should translate this into an HTTP 400.
var ErrSoldOut = errors.New("sold out")

// ErrStorageUnavailable marks transient backend failures, timeouts
// included. Callers may retry reads; a decrement that failed this way must
// not be reissued because it may already have committed.
var ErrStorageUnavailable = errors.New("storage unavailable")
