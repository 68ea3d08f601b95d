package store

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies what an Action does to the store.
type ActionKind uint8

const (
	// KindSet replaces a slice's value.
	KindSet ActionKind = iota + 1
	// KindMerge shallow-merges a Patch into a record value.
	KindMerge
	// KindReset restores a slice's initial value.
	KindReset
	// KindRestore rehydrates persisted values for many keys at once.
	KindRestore
	// KindReplace announces that a slice was added to the store. It is
	// published to subscribers and never dispatched.
	KindReplace
	// KindUpdate replaces a slice's value with a function of the current
	// value, computed under the dispatch lock.
	KindUpdate
)

// Action types that are not tied to a single key.
const (
	TypeRehydrate = "persist/REHYDRATE"
	TypeReplace   = "@@slices/REPLACE"
)

var kindNames = map[ActionKind]string{
	KindSet:     "set",
	KindMerge:   "merge",
	KindReset:   "reset",
	KindRestore: "restore",
	KindReplace: "replace",
	KindUpdate:  "update",
}

// String returns the kind's name.
func (k ActionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind as its name.
func (k ActionKind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("store: cannot marshal action kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ActionKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, text)
}

// UpdateFunc computes a slice's next value from its current one.
type UpdateFunc func(current any) (any, error)

// Patch holds fields to merge into a record value. Keys are field names,
// json tag names, or map keys.
type Patch map[string]any

// Action describes one mutation dispatched to a Store.
type Action struct {
	// Type is "<key>/<kind>" for per-key actions.
	Type string `json:"type"`

	// Key is the slice the action targets. Empty for restore and replace.
	Key string `json:"key,omitempty"`

	Kind ActionKind `json:"kind"`

	// Payload is the new value for set, a Patch for merge, an UpdateFunc
	// for update, map[string]json.RawMessage for restore, nil otherwise.
	Payload any `json:"payload,omitempty"`
}

// SetAction replaces key's value with value.
func SetAction(key string, value any) Action {
	return Action{Type: key + "/set", Key: key, Kind: KindSet, Payload: value}
}

// MergeAction shallow-merges patch into key's value.
func MergeAction(key string, patch Patch) Action {
	return Action{Type: key + "/merge", Key: key, Kind: KindMerge, Payload: patch}
}

// UpdateAction replaces key's value with fn applied to the current value.
func UpdateAction(key string, fn UpdateFunc) Action {
	return Action{Type: key + "/update", Key: key, Kind: KindUpdate, Payload: fn}
}

// ResetAction restores key's initial value.
func ResetAction(key string) Action {
	return Action{Type: key + "/reset", Key: key, Kind: KindReset}
}

// RestoreAction rehydrates persisted JSON values. Keys without a registered
// slice are kept until their slice registers.
func RestoreAction(state map[string]json.RawMessage) Action {
	return Action{Type: TypeRehydrate, Kind: KindRestore, Payload: state}
}

func replaceAction(key string) Action {
	return Action{Type: TypeReplace, Key: key, Kind: KindReplace}
}
