package resolver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/wcapi"
)

// Mutations are never coalesced and never invalidate cached lists: a list
// that should reflect a write has to be fetched again.

// CreateItem creates an item from fields and stores the server's copy. A
// failure is stored under the Resource Name of fields.
func (r *Resolver) CreateItem(ctx context.Context, fields map[string]any) (cache.Item, error) {
	resp, err := r.client.Do(ctx, wcapi.Request{Method: http.MethodPost, Path: r.res.Path, Data: fields})
	if err != nil {
		if name, encErr := querykey.Encode(fields); encErr == nil {
			r.fail(cache.ResourceNameKey(name), err)
		}
		return nil, err
	}
	item, err := r.decodeItem(resp)
	if err != nil {
		return nil, fmt.Errorf("decoding created %s: %w", r.res.Name, err)
	}
	id, ok := item.ID()
	if !ok {
		return nil, fmt.Errorf("created %s has no id", r.res.Name)
	}
	r.store.Dispatch(cache.SetItem{ID: id, Item: item})
	return item, nil
}

// UpdateItem applies fields to the item id and stores the server's copy.
func (r *Resolver) UpdateItem(ctx context.Context, id cache.ID, fields map[string]any) (cache.Item, error) {
	resp, err := r.client.Do(ctx, wcapi.Request{Method: http.MethodPut, Path: r.itemPath(id), Data: fields})
	if err != nil {
		r.failItem(id, err)
		return nil, err
	}
	item, err := r.decodeItem(resp)
	if err != nil {
		err = fmt.Errorf("decoding updated %s %s: %w", r.res.Name, id, err)
		r.failItem(id, err)
		return nil, err
	}
	r.store.Dispatch(cache.SetItem{ID: id, Item: item}, cache.ClearItemErrorAction(id))
	return item, nil
}

// DeleteItem deletes the item id. Resources without trash support need
// force. When the server reports the item as already gone it is dropped
// from the cache as well, and the error is still returned.
func (r *Resolver) DeleteItem(ctx context.Context, id cache.ID, force bool) (cache.Item, error) {
	path := r.itemPath(id)
	if force {
		path += "?force=true"
	}
	resp, err := r.client.Do(ctx, wcapi.Request{Method: http.MethodDelete, Path: path})
	if err != nil {
		if isGone(err) {
			r.store.Dispatch(cache.DeleteItemAction(id))
		}
		r.failItem(id, err)
		return nil, err
	}

	var item cache.Item
	if len(resp.Body) > 0 {
		if item, err = r.decodeItem(resp); err != nil {
			r.logger.Debug("delete returned an unreadable body", "resource", r.res.Name, "id", id, "error", err)
			item = nil
		}
	}
	r.store.Dispatch(cache.DeleteItemAction(id), cache.ClearItemErrorAction(id))
	return item, nil
}
