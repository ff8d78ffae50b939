package cache

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer renders arguments into a deterministic key. Map entries
// are sorted, struct fields follow declaration order, and anything it cannot
// walk falls back to JSON.
type defaultKeySerializer struct {
	namespace string
}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// NewNamespacedKeySerializer prefixes every key with namespace, e.g. "residents".
func NewNamespacedKeySerializer(namespace string) KeySerializer {
	return &defaultKeySerializer{namespace: namespace}
}

// SerializeKey joins method and the serialized args with KeySeparator.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	parts := make([]string, 0, len(args)+2)
	if s.namespace != "" {
		parts = append(parts, s.namespace)
	}
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, s.value(arg))
	}
	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) value(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return t
	case bool:
		return "bool:" + strconv.FormatBool(t)
	case int:
		return "int:" + strconv.Itoa(t)
	case int64:
		return "int64:" + strconv.FormatInt(t, 10)
	case float64:
		return "float64:" + strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case fmt.Stringer:
		// uuid.UUID and friends; pointers are handled below so a nil
		// *T never reaches String()
		if rv := reflect.ValueOf(v); rv.Kind() != reflect.Ptr {
			return t.String()
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.value(rv.Elem().Interface())
	case reflect.Func:
		// function identity is not stable; callers that need caching for
		// criteria must supply a query key instead
		return "func:" + rv.Type().String()
	case reflect.Chan:
		return "chan:" + rv.Type().String()
	case reflect.Slice:
		if rv.IsNil() {
			return "[]nil"
		}
		return s.list(rv)
	case reflect.Array:
		return s.list(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "{}nil"
		}
		return s.mapping(rv)
	case reflect.Struct:
		return s.structure(rv)
	case reflect.String:
		return rv.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Type().String() + ":" + fmt.Sprint(v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "type:" + rv.Type().String()
	}
	return string(data)
}

func (s *defaultKeySerializer) list(rv reflect.Value) string {
	items := make([]string, rv.Len())
	for i := range items {
		items[i] = s.value(rv.Index(i).Interface())
	}
	return "[" + strings.Join(items, ",") + "]"
}

func (s *defaultKeySerializer) mapping(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.value(iter.Key().Interface())+"="+s.value(iter.Value().Interface()))
	}
	slices.Sort(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func (s *defaultKeySerializer) structure(rv reflect.Value) string {
	rt := rv.Type()
	fields := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fields = append(fields, field.Name+":"+s.value(rv.Field(i).Interface()))
	}
	return rt.Name() + "{" + strings.Join(fields, ",") + "}"
}
