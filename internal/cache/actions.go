package cache

import (
	"github.com/kalambet/wcdata/internal/querykey"
)

// Action is a description of one cache mutation. The set of actions is
// closed: only the types in this file implement it.
type Action interface {
	// Type names the action for logging.
	Type() string
	action()
}

// SetItem upserts one item. Queries and errors are untouched.
type SetItem struct {
	ID   ID
	Item Item
}

// SetItems upserts every item, records their ids in order as the result of
// the query named ResourceName, and clears that query's error.
type SetItems struct {
	ResourceName string
	Items        []Item
	TotalCount   int
}

// SetItemsTotalCount updates only the total count of a query result,
// creating the result if needed.
type SetItemsTotalCount struct {
	ResourceName string
	TotalCount   int
}

// SetError records a failure for a query or an item. Cached data stays.
type SetError struct {
	Key   ErrorKey
	Error ErrorEntry
}

// ClearError removes a recorded failure.
type ClearError struct {
	Key ErrorKey
}

// DeleteItem removes an item. Query results that reference it keep the id.
type DeleteItem struct {
	ID ID
}

func (SetItem) Type() string            { return "SET_ITEM" }
func (SetItems) Type() string           { return "SET_ITEMS" }
func (SetItemsTotalCount) Type() string { return "SET_ITEMS_TOTAL_COUNT" }
func (SetError) Type() string           { return "SET_ERROR" }
func (ClearError) Type() string         { return "CLEAR_ERROR" }
func (DeleteItem) Type() string         { return "DELETE_ITEM" }

func (SetItem) action()            {}
func (SetItems) action()           {}
func (SetItemsTotalCount) action() {}
func (SetError) action()           {}
func (ClearError) action()         {}
func (DeleteItem) action()         {}

// SetItemAction builds a SetItem for item, reading the id from the item.
// It panics if the item has no usable id.
func SetItemAction(item Item) SetItem {
	id, ok := item.ID()
	if !ok {
		panic("cache: SetItemAction: item has no id")
	}
	return SetItem{ID: id, Item: item}
}

// SetItemsAction builds a SetItems for the result of q.
func SetItemsAction(q querykey.Query, items []Item, totalCount int) SetItems {
	return SetItems{ResourceName: querykey.MustEncode(q), Items: items, TotalCount: totalCount}
}

// SetItemsTotalCountAction builds a SetItemsTotalCount for q.
func SetItemsTotalCountAction(q querykey.Query, totalCount int) SetItemsTotalCount {
	return SetItemsTotalCount{ResourceName: querykey.MustEncode(q), TotalCount: totalCount}
}

// SetQueryErrorAction records err for the list query q.
func SetQueryErrorAction(q querykey.Query, err ErrorEntry) SetError {
	return SetError{Key: QueryKey(q), Error: err}
}

// SetItemErrorAction records err for the item id.
func SetItemErrorAction(id ID, err ErrorEntry) SetError {
	return SetError{Key: ItemKey(id), Error: err}
}

// ClearItemErrorAction removes the recorded failure for the item id.
func ClearItemErrorAction(id ID) ClearError {
	return ClearError{Key: ItemKey(id)}
}

// DeleteItemAction builds a DeleteItem for id.
func DeleteItemAction(id ID) DeleteItem {
	return DeleteItem{ID: id}
}
