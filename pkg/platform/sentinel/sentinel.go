// Package sentinel holds the storage outcomes shared by every store
// backend. Stores wrap them with the record they were looking for; services
// match them with errors.Is and turn them into domain error codes.
package sentinel

import "errors"

var (
	// ErrNotFound means the record with the requested key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a write collided with an existing key, such as a
	// duplicate application id or a second certificate for one attempt.
	ErrConflict = errors.New("conflict")
)
