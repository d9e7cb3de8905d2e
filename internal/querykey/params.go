package querykey

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Params flattens q into REST query-string parameters using the bracket
// convention the WordPress REST API understands:
//
//	{"include": [1, 2]}        -> include[]=1&include[]=2
//	{"meta": {"color": "red"}} -> meta[color]=red
//
// Undefined and nil values are dropped. Nested values that Encode would
// reject are rejected here too.
func Params(q Query) (url.Values, error) {
	if _, err := Encode(q); err != nil {
		return nil, err
	}
	params := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := flatten(params, k, reflect.ValueOf(q[k])); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// Path appends the encoded parameters of q to base.
func Path(base string, q Query) (string, error) {
	params, err := Params(q)
	if err != nil {
		return "", err
	}
	if encoded := params.Encode(); encoded != "" {
		return base + "?" + encoded, nil
	}
	return base, nil
}

func flatten(params url.Values, name string, v reflect.Value) error {
	if !v.IsValid() || isUndefined(v) {
		return nil
	}
	if v.Type() == jsonNumberType {
		params.Add(name, v.String())
		return nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return flatten(params, name, v.Elem())
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flatten(params, name+"["+k+"]", v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key()))); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := flatten(params, name+"[]", v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Bool:
		params.Add(name, strconv.FormatBool(v.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		params.Add(name, strconv.FormatInt(v.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		params.Add(name, strconv.FormatUint(v.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		params.Add(name, formatFloat(v.Float(), v.Type().Bits()))
		return nil
	case reflect.String:
		params.Add(name, v.String())
		return nil
	default:
		params.Add(name, fmt.Sprint(v.Interface()))
		return nil
	}
}

// FromValues builds a Query from query-string parameters, reversing the
// bracket convention of Params. Decimal integers become ints so that
// "page=1" and Query{"page": 1} share a Resource Name; everything else
// stays a string.
func FromValues(values url.Values) Query {
	q := make(Query, len(values))
	for name, vs := range values {
		base, sub, list := splitBracket(name)
		switch {
		case sub == "" && list:
			q[base] = appendScalars(q[base], vs)
		case sub == "":
			q[base] = scalar(vs[len(vs)-1])
		default:
			m, _ := q[base].(map[string]any)
			if m == nil {
				m = make(map[string]any)
				q[base] = m
			}
			if list {
				m[sub] = appendScalars(m[sub], vs)
			} else {
				m[sub] = scalar(vs[len(vs)-1])
			}
		}
	}
	return q
}

// splitBracket parses "name", "name[]", "name[key]" and "name[key][]".
func splitBracket(name string) (base, sub string, list bool) {
	if strings.HasSuffix(name, "[]") {
		list = true
		name = strings.TrimSuffix(name, "[]")
	}
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return name, "", list
	}
	return name[:open], name[open+1 : len(name)-1], list
}

func appendScalars(prev any, vs []string) []any {
	out, _ := prev.([]any)
	for _, v := range vs {
		out = append(out, scalar(v))
	}
	return out
}

func scalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil && strconv.Itoa(i) == s {
		return i
	}
	return s
}
