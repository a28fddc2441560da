package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// MaxSegmentLength is the longest serialized segment kept verbatim. Longer
// segments, and segments containing KeySeparator, are replaced by a digest.
const MaxSegmentLength = 128

const digestPrefix = "xxh:"

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Keys are namespace first, so every key a namespace produces can be matched
// by a prefix of its leading segments.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from a namespace and args using reflection.
// It produces stable keys across runs by handling various Go types deterministically.
func (s *defaultKeySerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)

	for _, arg := range args {
		parts = append(parts, segment(s.serializeValue(arg)))
	}

	return strings.Join(parts, KeySeparator)
}

func segment(raw string) string {
	if len(raw) <= MaxSegmentLength && !strings.Contains(raw, KeySeparator) {
		return raw
	}
	return digestPrefix + strconv.FormatUint(xxhash.Sum64String(raw), 16)
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Func:
		// stable within a process only
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.serializeElems(rv)
	case reflect.Array:
		return "array" + s.serializeElems(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeElems(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeNested(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", length, strings.Join(parts, ","))
}

// serializeNested serializes a value inside a collection or struct. String
// leaves are quoted so a value cannot spell out a separator or another field.
func (s *defaultKeySerializer) serializeNested(v any) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.IsValid() && rv.Kind() == reflect.String {
		return strconv.Quote(rv.String())
	}
	return s.serializeValue(v)
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeNested(iter.Key().Interface())+"="+s.serializeNested(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct writes exported, non-zero fields in declaration order. Zero
// fields are skipped so that adding an unset field to a filter type does not
// change the keys of existing queries. A nil pointer is zero, a pointer to
// false is not.
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fv := rv.Field(i)
		if fv.IsZero() || !fv.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+":"+s.serializeNested(fv.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// Segments splits a key into its segments.
func Segments(key string) []string {
	return strings.Split(key, KeySeparator)
}

// Matches reports whether prefix is a segment-wise prefix of key. An empty
// prefix matches every key; "recipes::saved::u1" does not match
// "recipes::saved::u10".
func Matches(key, prefix string) bool {
	if prefix == "" || key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+KeySeparator)
}

// Prefix returns a key predicate matching every key under prefix.
func Prefix(prefix string) func(key string) bool {
	return func(key string) bool { return Matches(key, prefix) }
}

// Exact returns a key predicate matching only key.
func Exact(key string) func(string) bool {
	return func(k string) bool { return k == key }
}
