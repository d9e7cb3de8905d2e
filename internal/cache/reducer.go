package cache

import (
	"maps"
	"reflect"
	"slices"
)

// Reduce applies a to s and returns the resulting snapshot. It never mutates
// s. When a changes nothing, Reduce returns s itself.
func Reduce(s *State, a Action) *State {
	if s == nil {
		s = emptyState
	}
	switch a := a.(type) {
	case SetItem:
		return reduceSetItem(s, a)
	case SetItems:
		return reduceSetItems(s, a)
	case SetItemsTotalCount:
		return reduceSetItemsTotalCount(s, a)
	case SetError:
		return reduceSetError(s, a)
	case ClearError:
		return reduceClearError(s, a)
	case DeleteItem:
		return reduceDeleteItem(s, a)
	default:
		return s
	}
}

func reduceSetItem(s *State, a SetItem) *State {
	if old, ok := s.items[a.ID]; ok && reflect.DeepEqual(old, a.Item) {
		return s
	}
	next := *s
	next.items = cloneOrMake(s.items, 1)
	next.items[a.ID] = a.Item.Clone()
	return &next
}

func reduceSetItems(s *State, a SetItems) *State {
	next := *s
	next.items = cloneOrMake(s.items, len(a.Items))
	ids := make([]ID, 0, len(a.Items))
	for _, item := range a.Items {
		id, ok := item.ID()
		if !ok {
			continue
		}
		next.items[id] = item.Clone()
		ids = append(ids, id)
	}

	// Items are written above, in the same snapshot as the ids that point at them.
	next.queries = cloneOrMake(s.queries, 1)
	next.queries[a.ResourceName] = QueryResult{
		IDs:        ids,
		TotalCount: a.TotalCount,
		HasTotal:   true,
		Listed:     true,
	}

	if _, ok := s.queryErrors[a.ResourceName]; ok {
		next.queryErrors = maps.Clone(s.queryErrors)
		delete(next.queryErrors, a.ResourceName)
	}
	return &next
}

func reduceSetItemsTotalCount(s *State, a SetItemsTotalCount) *State {
	old, ok := s.queries[a.ResourceName]
	if ok && old.HasTotal && old.TotalCount == a.TotalCount {
		return s
	}
	result := old
	result.TotalCount = a.TotalCount
	result.HasTotal = true

	next := *s
	next.queries = cloneOrMake(s.queries, 1)
	next.queries[a.ResourceName] = result
	return &next
}

func reduceSetError(s *State, a SetError) *State {
	next := *s
	if a.Key.IsItem() {
		id := ID(a.Key.name)
		if old, ok := s.itemErrors[id]; ok && equalErrors(old, a.Error) {
			return s
		}
		next.itemErrors = cloneOrMake(s.itemErrors, 1)
		next.itemErrors[id] = a.Error
		return &next
	}
	if old, ok := s.queryErrors[a.Key.name]; ok && equalErrors(old, a.Error) {
		return s
	}
	next.queryErrors = cloneOrMake(s.queryErrors, 1)
	next.queryErrors[a.Key.name] = a.Error
	return &next
}

func reduceClearError(s *State, a ClearError) *State {
	next := *s
	if a.Key.IsItem() {
		id := ID(a.Key.name)
		if _, ok := s.itemErrors[id]; !ok {
			return s
		}
		next.itemErrors = maps.Clone(s.itemErrors)
		delete(next.itemErrors, id)
		return &next
	}
	if _, ok := s.queryErrors[a.Key.name]; !ok {
		return s
	}
	next.queryErrors = maps.Clone(s.queryErrors)
	delete(next.queryErrors, a.Key.name)
	return &next
}

// reduceDeleteItem leaves stale ids in query results on purpose; selectors
// skip them and IsQueryStale reports them.
func reduceDeleteItem(s *State, a DeleteItem) *State {
	if _, ok := s.items[a.ID]; !ok {
		return s
	}
	next := *s
	next.items = maps.Clone(s.items)
	delete(next.items, a.ID)
	return &next
}

func cloneOrMake[K comparable, V any](m map[K]V, extra int) map[K]V {
	out := make(map[K]V, len(m)+extra)
	maps.Copy(out, m)
	return out
}

func equalErrors(a, b ErrorEntry) bool {
	return a.Message == b.Message && a.Status == b.Status && a.Code == b.Code && slices.Equal(a.Data, b.Data)
}
