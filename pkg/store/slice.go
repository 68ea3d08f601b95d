package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Slice is an independently addressable cell of global state: a key, the
// value captured when it was registered, and the transitions applied by its
// actions. Its current value lives in the Store.
type Slice struct {
	key     string
	initial any
	typ     reflect.Type
	decode  func([]byte) (any, error)
}

func newSlice[T any](key string, initial T) *Slice {
	return &Slice{
		key:     key,
		initial: initial,
		typ:     typeOf[T](),
		decode: func(data []byte) (any, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Key returns the slice's key.
func (s *Slice) Key() string {
	return s.key
}

// Initial returns the value recorded when the slice was registered.
func (s *Slice) Initial() any {
	return s.initial
}

// Type returns the value type the slice was registered with.
func (s *Slice) Type() reflect.Type {
	return s.typ
}

// Decode parses JSON into the slice's value type.
func (s *Slice) Decode(data []byte) (any, error) {
	v, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode %q: %w", s.key, err)
	}
	return v, nil
}

// accepts reports whether v can be stored in this slice.
func (s *Slice) accepts(v any) bool {
	if v == nil {
		switch s.typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(s.typ)
}

func (s *Slice) mismatch(v any) error {
	return &TypeMismatchError{Key: s.key, Registered: s.typ, Requested: reflect.TypeOf(v)}
}

// reduce computes the next value for action a.
func (s *Slice) reduce(state any, a Action) (any, error) {
	switch a.Kind {
	case KindSet:
		if !s.accepts(a.Payload) {
			return nil, s.mismatch(a.Payload)
		}
		return a.Payload, nil
	case KindMerge:
		patch, ok := a.Payload.(Patch)
		if !ok {
			m, isMap := a.Payload.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%w: merge payload is %T", ErrInvalidPatch, a.Payload)
			}
			patch = m
		}
		return mergeValue(state, patch)
	case KindUpdate:
		fn, ok := a.Payload.(UpdateFunc)
		if !ok || fn == nil {
			return nil, fmt.Errorf("%w: update payload is %T", ErrInvalidUpdate, a.Payload)
		}
		next, err := fn(state)
		if err != nil {
			return nil, err
		}
		if !s.accepts(next) {
			return nil, s.mismatch(next)
		}
		return next, nil
	case KindReset:
		return s.initial, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, a.Kind)
	}
}

// mergeValue returns a copy of state with patch applied one level deep.
// state is never modified, so the slice's initial value stays intact.
func mergeValue(state any, patch Patch) (any, error) {
	v := reflect.ValueOf(state)
	if !v.IsValid() {
		return nil, ErrNotMergeable
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: %v", ErrNotMergeable, v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len()+len(patch))
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		for name, pv := range patch {
			val, err := assignValue(pv, v.Type().Elem())
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidPatch, name, err)
			}
			out.SetMapIndex(reflect.ValueOf(name).Convert(v.Type().Key()), val)
		}
		return out.Interface(), nil

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for name, pv := range patch {
			field, ok := fieldByName(out, name)
			if !ok {
				return nil, fmt.Errorf("%w: %v has no field %q", ErrInvalidPatch, v.Type(), name)
			}
			val, err := assignValue(pv, field.Type())
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidPatch, name, err)
			}
			field.Set(val)
		}
		return out.Interface(), nil

	case reflect.Pointer:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %v", ErrNotMergeable, v.Type())
		}
		merged, err := mergeValue(v.Elem().Interface(), patch)
		if err != nil {
			return nil, err
		}
		p := reflect.New(v.Elem().Type())
		p.Elem().Set(reflect.ValueOf(merged))
		return p.Interface(), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrNotMergeable, v.Type())
	}
}

// fieldByName finds an exported field by Go name or json tag name.
func fieldByName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if f.Name == name || tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// assignValue converts pv to t: directly when assignable, by numeric
// conversion, or by a JSON round trip for decoded request bodies.
func assignValue(pv any, t reflect.Type) (reflect.Value, error) {
	if pv == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(pv)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return rv.Convert(t), nil
	}

	data, err := json.Marshal(pv)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot assign %T to %v", pv, t)
	}
	return ptr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
