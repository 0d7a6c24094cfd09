// Package source holds the error contract shared by both upstream clients.
package source

import (
	"errors"
	"fmt"
)

// FetchError reports a whole-batch fetch failure from an upstream source.
// It retains the HTTP status, a response body excerpt and, for query
// interpreters, the query string, so a sustained failure can be diagnosed
// from logs alone.
type FetchError struct {
	Source string // "btcmap" or "overpass"
	Status int    // 0 when the failure happened below HTTP
	Body   string
	Query  string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: fetch failed with status %d: %s", e.Source, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: fetch failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err (or anything it wraps) is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
