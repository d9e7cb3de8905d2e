// Package cache holds the normalized client-side cache of remote CRUD
// resources: the state snapshot, the closed set of actions that change it,
// the reducer that applies them and the selectors that read it.
//
// A State is immutable. Reduce never mutates its input; it returns a new
// snapshot, or the same pointer when an action changes nothing, so callers
// can skip work with a plain pointer comparison.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/kalambet/wcdata/internal/querykey"
)

// ErrInvalidID is returned by NewID for values that cannot identify an item.
var ErrInvalidID = errors.New("invalid item id")

// ID identifies an item within its resource type. Integer ids and their
// decimal strings are the same ID.
type ID string

// NewID converts a string or integer id into an ID.
func NewID(v any) (ID, error) {
	switch id := v.(type) {
	case ID:
		if id == "" {
			return "", ErrInvalidID
		}
		return id, nil
	case string:
		if id == "" {
			return "", ErrInvalidID
		}
		return ID(id), nil
	case int:
		return ID(strconv.FormatInt(int64(id), 10)), nil
	case int8:
		return ID(strconv.FormatInt(int64(id), 10)), nil
	case int16:
		return ID(strconv.FormatInt(int64(id), 10)), nil
	case int32:
		return ID(strconv.FormatInt(int64(id), 10)), nil
	case int64:
		return ID(strconv.FormatInt(id, 10)), nil
	case uint:
		return ID(strconv.FormatUint(uint64(id), 10)), nil
	case uint8:
		return ID(strconv.FormatUint(uint64(id), 10)), nil
	case uint16:
		return ID(strconv.FormatUint(uint64(id), 10)), nil
	case uint32:
		return ID(strconv.FormatUint(uint64(id), 10)), nil
	case uint64:
		return ID(strconv.FormatUint(id, 10)), nil
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) {
			return "", fmt.Errorf("%w: %v is not an integer", ErrInvalidID, id)
		}
		return ID(strconv.FormatFloat(id, 'f', -1, 64)), nil
	case json.Number:
		if i, err := id.Int64(); err == nil {
			return ID(strconv.FormatInt(i, 10)), nil
		}
		return "", fmt.Errorf("%w: %s is not an integer", ErrInvalidID, id)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}
}

// MustID is NewID for literals; it panics on invalid input.
func MustID(v any) ID {
	id, err := NewID(v)
	if err != nil {
		panic(err)
	}
	return id
}

// IDField is the item field that carries the id.
const IDField = "id"

// Item is a single resource record: an arbitrary field map with an id.
type Item map[string]any

// ID returns the item's id read from its "id" field.
func (it Item) ID() (ID, bool) {
	v, ok := it[IDField]
	if !ok {
		return "", false
	}
	id, err := NewID(v)
	if err != nil {
		return "", false
	}
	return id, true
}

// Clone returns a deep copy of the item. Nested maps and slices are copied
// too; other values are shared.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case Item:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			out[i], _ = cloneValue(e).(map[string]any)
		}
		return out
	default:
		return v
	}
}

// QueryResult is the normalized result of a list fetch: ordered item ids
// plus the total count reported by the server.
type QueryResult struct {
	IDs        []ID
	TotalCount int
	// HasTotal is false until a total count was written for the query.
	HasTotal bool
	// Listed is true once a list fetch wrote IDs. A result created only by
	// SetItemsTotalCount has a total but no known membership.
	Listed bool
}

// ErrorEntry is a cached request failure.
type ErrorEntry struct {
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"` // 0 for network errors
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e ErrorEntry) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// ErrorKey addresses an error entry: either a Resource Name or an item id.
type ErrorKey struct {
	kind errorKind
	name string
}

type errorKind uint8

const (
	queryErrorKind errorKind = iota + 1
	itemErrorKind
)

// QueryKey returns the error key for a list query. It panics if q cannot be
// encoded, which is a programmer error.
func QueryKey(q querykey.Query) ErrorKey {
	return ErrorKey{kind: queryErrorKind, name: querykey.MustEncode(q)}
}

// ResourceNameKey returns the error key for an already encoded Resource Name.
func ResourceNameKey(name string) ErrorKey {
	return ErrorKey{kind: queryErrorKind, name: name}
}

// ItemKey returns the error key for a single item.
func ItemKey(id ID) ErrorKey {
	return ErrorKey{kind: itemErrorKind, name: string(id)}
}

// IsItem reports whether k addresses an item.
func (k ErrorKey) IsItem() bool { return k.kind == itemErrorKind }

func (k ErrorKey) String() string {
	if k.kind == itemErrorKind {
		return "item:" + k.name
	}
	return "query:" + k.name
}

// State is an immutable snapshot of the cache. Read it with the selectors.
type State struct {
	items       map[ID]Item
	queries     map[string]QueryResult
	queryErrors map[string]ErrorEntry
	itemErrors  map[ID]ErrorEntry
}

var emptyState = &State{}

// NewState returns an empty snapshot.
func NewState() *State {
	return emptyState
}

// Stats summarizes a snapshot for diagnostics.
type Stats struct {
	Items   int `json:"items"`
	Queries int `json:"queries"`
	Errors  int `json:"errors"`
}

// Stats counts the entries in s.
func (s *State) Stats() Stats {
	return Stats{
		Items:   len(s.items),
		Queries: len(s.queries),
		Errors:  len(s.queryErrors) + len(s.itemErrors),
	}
}
