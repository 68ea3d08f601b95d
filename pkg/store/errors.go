package store

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/agnivade/levenshtein"
)

var (
	// ErrUnregisteredKey is matched by every *MissingKeyError.
	ErrUnregisteredKey = errors.New("store: key is not registered")

	// ErrEmptyKey is returned when registering a slice without a key.
	ErrEmptyKey = errors.New("store: key must not be empty")

	// ErrNotMergeable is returned when merging into a value that is not a
	// record (string-keyed map, struct or pointer to struct).
	ErrNotMergeable = errors.New("store: value is not a mergeable record")

	// ErrInvalidPatch is returned when a patch field does not exist on the
	// record or its value cannot be assigned to it.
	ErrInvalidPatch = errors.New("store: invalid patch")

	// ErrInvalidUpdate is returned when an update action carries no
	// UpdateFunc.
	ErrInvalidUpdate = errors.New("store: invalid update")

	// ErrNotSerializable is returned by a strict SerializableCheck.
	ErrNotSerializable = errors.New("store: value is not serializable")

	// ErrNoProvider is raised by hooks rendered outside a Provider.
	ErrNoProvider = errors.New("store: no registry provider in component tree")

	// ErrStoreClosed is returned when dispatching to a store torn down by
	// Registry.Clear.
	ErrStoreClosed = errors.New("store: store is closed")

	// ErrUnknownAction is returned for actions a slice cannot reduce.
	ErrUnknownAction = errors.New("store: unknown action kind")
)

// MissingKeyError reports access to a key that has no registered slice.
type MissingKeyError struct {
	Key string

	// Suggestion is the closest registered key, if any is close enough.
	Suggestion string
}

// Error implements the error interface.
func (e *MissingKeyError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("store: key %q is not registered (did you mean %q?)", e.Key, e.Suggestion)
	}
	return fmt.Sprintf("store: key %q is not registered", e.Key)
}

// Unwrap returns ErrUnregisteredKey.
func (e *MissingKeyError) Unwrap() error {
	return ErrUnregisteredKey
}

// TypeMismatchError reports a key read or written with a type other than the
// one its slice was registered with.
type TypeMismatchError struct {
	Key        string
	Registered reflect.Type
	Requested  reflect.Type
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("store: key %q holds %v, not %v", e.Key, e.Registered, e.Requested)
}

// SuggestKey returns the key closest to key by edit distance, or "" when
// none is within a third of the key's length (minimum 2 edits).
func SuggestKey(key string, keys []string) string {
	limit := len(key) / 3
	if limit < 2 {
		limit = 2
	}

	best, bestDist := "", limit+1
	for _, k := range keys {
		if d := levenshtein.ComputeDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
