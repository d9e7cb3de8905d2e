// Package querykey turns query objects into canonical cache keys.
//
// Two queries that are deeply equal, ignoring key order, always encode to the
// same string. Any difference in a key or value produces a different string.
// The encoding is canonical JSON: object keys are sorted at every level and
// HTML escaping is disabled, so {"status":"draft","page":1} encodes as
// {"page":1,"status":"draft"}.
package querykey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Query is an ordered-by-encoding mapping of filter and paging parameters
// such as status, page, per_page or _fields.
type Query map[string]any

// ErrUnencodable is returned for values that have no canonical form:
// functions, channels, complex numbers, non-string map keys, NaN/Inf and
// reference cycles.
var ErrUnencodable = errors.New("querykey: value cannot be encoded")

type undefined struct{}

// Undefined marks a key as absent. A key holding Undefined encodes exactly
// like a key that is not present at all. An explicit nil is kept as null.
var Undefined any = undefined{}

// Empty is the encoding of an empty or nil query.
const Empty = "{}"

// Encode returns the canonical Resource Name for q.
func Encode(q Query) (string, error) {
	if len(q) == 0 {
		return Empty, nil
	}
	var buf bytes.Buffer
	e := encoder{buf: &buf, seen: make(map[uintptr]bool)}
	if err := e.encode(reflect.ValueOf(map[string]any(q)), "$"); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustEncode is like Encode but panics on error. Unencodable queries are
// programmer errors, so callers that build queries from literals use this.
func MustEncode(q Query) string {
	key, err := Encode(q)
	if err != nil {
		panic(err)
	}
	return key
}

// Equal reports whether a and b encode to the same key.
func Equal(a, b Query) bool {
	ka, err := Encode(a)
	if err != nil {
		return false
	}
	kb, err := Encode(b)
	if err != nil {
		return false
	}
	return ka == kb
}

type encoder struct {
	buf  *bytes.Buffer
	seen map[uintptr]bool
}

var (
	jsonNumberType = reflect.TypeOf(json.Number(""))
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
	marshalerType  = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func unencodable(path string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrUnencodable, path, fmt.Sprintf(format, args...))
}

func isUndefined(v reflect.Value) bool {
	if !v.IsValid() || !v.CanInterface() {
		return false
	}
	_, ok := v.Interface().(undefined)
	return ok
}

func (e *encoder) encode(v reflect.Value, path string) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	if v.Type() == jsonNumberType {
		return e.number(v.String(), path)
	}
	if v.Type() == rawMessageType || (v.Kind() != reflect.Interface && v.Kind() != reflect.Pointer && v.Type().Implements(marshalerType)) {
		return e.viaJSON(v, path)
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encode(v.Elem(), path)

	case reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		ptr := v.Pointer()
		if e.seen[ptr] {
			return unencodable(path, "reference cycle")
		}
		e.seen[ptr] = true
		defer delete(e.seen, ptr)
		return e.encode(v.Elem(), path)

	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(v.Bool()))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return unencodable(path, "non-finite number %v", f)
		}
		e.buf.WriteString(formatFloat(f, v.Type().Bits()))
		return nil

	case reflect.String:
		return e.str(v.String())

	case reflect.Map:
		return e.object(v, path)

	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		ptr := v.Pointer()
		if ptr != 0 && v.Len() > 0 {
			if e.seen[ptr] {
				return unencodable(path, "reference cycle")
			}
			e.seen[ptr] = true
			defer delete(e.seen, ptr)
		}
		return e.array(v, path)

	case reflect.Array:
		return e.array(v, path)

	case reflect.Struct:
		return e.viaJSON(v, path)

	default:
		return unencodable(path, "unsupported kind %s", v.Kind())
	}
}

func (e *encoder) object(v reflect.Value, path string) error {
	if v.Type().Key().Kind() != reflect.String {
		return unencodable(path, "map key type %s is not a string", v.Type().Key())
	}
	if v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	ptr := v.Pointer()
	if e.seen[ptr] {
		return unencodable(path, "reference cycle")
	}
	e.seen[ptr] = true
	defer delete(e.seen, ptr)

	keys := make([]string, 0, v.Len())
	vals := make(map[string]reflect.Value, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		val := iter.Value()
		if isUndefined(val) {
			continue
		}
		k := iter.Key().String()
		keys = append(keys, k)
		vals[k] = val
	}
	sort.Strings(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(k); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(vals[k], path+"."+k); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) array(v reflect.Value, path string) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		elem := v.Index(i)
		// Undefined inside arrays becomes null, the same as JSON.stringify.
		if isUndefined(elem) {
			e.buf.WriteString("null")
			continue
		}
		if err := e.encode(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) str(s string) error {
	enc := json.NewEncoder(e.buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder terminates every value with a newline.
	e.buf.Truncate(e.buf.Len() - 1)
	return nil
}

func (e *encoder) number(s string, path string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return unencodable(path, "invalid number %q", s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return unencodable(path, "non-finite number %q", s)
	}
	e.buf.WriteString(formatFloat(f, 64))
	return nil
}

// viaJSON canonicalizes structs and json.Marshaler values through their JSON
// form so field order and tags follow encoding/json.
func (e *encoder) viaJSON(v reflect.Value, path string) error {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return unencodable(path, "%v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return unencodable(path, "%v", err)
	}
	return e.encode(reflect.ValueOf(generic), path)
}

// formatFloat renders integral floats without a fraction so 1 and 1.0 share a
// key, matching JSON number semantics.
func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
