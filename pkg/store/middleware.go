package store

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strings"
)

// Next applies an action. Middleware call it to continue the chain.
type Next func(ctx context.Context, a Action) error

// Middleware wraps dispatch for the store s. It is called once when the
// store is built.
//
//	func Audit(log *slog.Logger) store.Middleware {
//	    return func(s *store.Store, next store.Next) store.Next {
//	        return func(ctx context.Context, a store.Action) error {
//	            log.Info("dispatch", "type", a.Type)
//	            return next(ctx, a)
//	        }
//	    }
//	}
type Middleware func(s *Store, next Next) Next

// SerializableCheckConfig configures the serializability middleware.
type SerializableCheckConfig struct {
	// Disabled turns the check off.
	Disabled bool

	// Strict rejects offending actions with ErrNotSerializable instead of
	// logging a warning.
	Strict bool

	// IgnoredKinds skips the check for these action kinds.
	IgnoredKinds []ActionKind

	// IgnoredTypes skips the check for these action types.
	IgnoredTypes []string

	// IgnoredKeys skips the check for these slice keys.
	IgnoredKeys []string
}

// DefaultSerializableCheckConfig returns the default configuration:
// warnings only, with rehydration exempt.
func DefaultSerializableCheckConfig() SerializableCheckConfig {
	return SerializableCheckConfig{
		IgnoredKinds: []ActionKind{KindRestore},
		IgnoredTypes: []string{TypeRehydrate},
	}
}

func (c SerializableCheckConfig) ignores(a Action) bool {
	for _, k := range c.IgnoredKinds {
		if a.Kind == k {
			return true
		}
	}
	for _, t := range c.IgnoredTypes {
		if a.Type == t {
			return true
		}
	}
	for _, k := range c.IgnoredKeys {
		if a.Key == k {
			return true
		}
	}
	return false
}

// SerializableCheck reports actions whose payload, or whose resulting state,
// holds values that cannot be written as JSON: functions, channels, complex
// numbers or maps with unsupported key types. The resulting state is checked
// before it is committed, so a strict check leaves the store unchanged.
// Update payloads are functions and only their result is checked.
func SerializableCheck(cfg SerializableCheckConfig) Middleware {
	return func(s *Store, next Next) Next {
		if cfg.Disabled {
			return next
		}

		report := func(a Action, where, path string) error {
			if cfg.Strict {
				return fmt.Errorf("%w: %s in %s of %s", ErrNotSerializable, path, where, a.Type)
			}
			s.logger.Warn("non-serializable value",
				"action", a.Type,
				"key", a.Key,
				"in", where,
				"path", path,
			)
			return nil
		}

		s.checks = append(s.checks, func(a Action, value any) error {
			if cfg.ignores(a) {
				return nil
			}
			if path, bad := findNonSerializable(value); bad {
				return report(a, "state", path)
			}
			return nil
		})

		return func(ctx context.Context, a Action) error {
			if cfg.ignores(a) || a.Kind == KindUpdate {
				return next(ctx, a)
			}
			if path, bad := findNonSerializable(a.Payload); bad {
				if err := report(a, "payload", path); err != nil {
					return err
				}
			}
			return next(ctx, a)
		}
	}
}

const maxCheckDepth = 32

var textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

// findNonSerializable returns the path of the first value v holds that
// encoding/json cannot write.
func findNonSerializable(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	return walkSerializable(reflect.ValueOf(v), "$", 0)
}

func walkSerializable(v reflect.Value, path string, depth int) (string, bool) {
	if depth > maxCheckDepth || !v.IsValid() {
		return "", false
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return path, true

	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return "", false
		}
		return walkSerializable(v.Elem(), path, depth+1)

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return "", false
		}
		for i := 0; i < v.Len(); i++ {
			if p, bad := walkSerializable(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); bad {
				return p, true
			}
		}

	case reflect.Map:
		switch v.Type().Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			if !v.Type().Key().Implements(textMarshalerType) {
				return path, true
			}
		}
		iter := v.MapRange()
		for iter.Next() {
			p := fmt.Sprintf("%s.%v", path, iter.Key().Interface())
			if p, bad := walkSerializable(iter.Value(), p, depth+1); bad {
				return p, true
			}
		}

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			if p, bad := walkSerializable(v.Field(i), path+"."+name, depth+1); bad {
				return p, true
			}
		}
	}
	return "", false
}
