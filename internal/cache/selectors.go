package cache

import (
	"github.com/kalambet/wcdata/internal/querykey"
)

// GetItem returns a copy of the cached item with id. The second result is
// false when the item is not cached.
func GetItem(s *State, id ID) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// GetItemError returns the recorded failure for id, if any.
func GetItemError(s *State, id ID) (ErrorEntry, bool) {
	e, ok := s.itemErrors[id]
	return e, ok
}

// GetItems returns the items of query q in result order. Ids whose item is
// no longer cached are skipped. The items are copies. The result is never
// nil.
func GetItems(s *State, q querykey.Query) []Item {
	return GetItemsByName(s, querykey.MustEncode(q))
}

// GetItemsByName is GetItems for an already encoded Resource Name.
func GetItemsByName(s *State, name string) []Item {
	res, ok := s.queries[name]
	if !ok {
		return []Item{}
	}
	out := make([]Item, 0, len(res.IDs))
	for _, id := range res.IDs {
		if it, ok := s.items[id]; ok {
			out = append(out, it.Clone())
		}
	}
	return out
}

// GetItemIDs returns the ids stored for q, including ids of deleted items.
func GetItemIDs(s *State, q querykey.Query) ([]ID, bool) {
	res, ok := s.queries[querykey.MustEncode(q)]
	if !ok || !res.Listed {
		return nil, false
	}
	return append([]ID(nil), res.IDs...), true
}

// GetItemsTotalCount returns the total count recorded for q.
func GetItemsTotalCount(s *State, q querykey.Query) (int, bool) {
	res, ok := s.queries[querykey.MustEncode(q)]
	if !ok || !res.HasTotal {
		return 0, false
	}
	return res.TotalCount, true
}

// GetItemsError returns the recorded failure for q, if any.
func GetItemsError(s *State, q querykey.Query) (ErrorEntry, bool) {
	e, ok := s.queryErrors[querykey.MustEncode(q)]
	return e, ok
}

// HasQuery reports whether a list fetch for q has completed.
func HasQuery(s *State, q querykey.Query) bool {
	res, ok := s.queries[querykey.MustEncode(q)]
	return ok && res.Listed
}

// IsQueryStale reports whether the result of q references items that are no
// longer cached.
func IsQueryStale(s *State, q querykey.Query) bool {
	res, ok := s.queries[querykey.MustEncode(q)]
	if !ok {
		return false
	}
	for _, id := range res.IDs {
		if _, ok := s.items[id]; !ok {
			return true
		}
	}
	return false
}
