// Package resolver bridges cache selectors to REST fetches. A Resolver issues
// at most one request per (resource, key) at a time, writes the outcome into
// its cache.Store and hands the same outcome to every coalesced caller.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/wcapi"
)

const (
	// DefaultTotalHeader is where the WordPress REST API reports list totals.
	DefaultTotalHeader = "X-WP-Total"

	prefetchLimit = 4
)

// Resource describes one remote resource type.
type Resource struct {
	// Name identifies the resource, e.g. "products".
	Name string
	// Path is the collection endpoint, e.g. "/wc/v3/products".
	Path string
	// IDField is the field holding the id in server responses. Defaults to "id".
	IDField string
	// TotalHeader is the response header carrying a list's total count.
	// Defaults to X-WP-Total.
	TotalHeader string
}

// WooCommerce returns the Resource for a wc/v3 collection such as "orders".
func WooCommerce(name string) Resource {
	return Resource{Name: name, Path: "/wc/v3/" + name}
}

// Resolver fetches one resource type into a cache.Store.
type Resolver struct {
	res    Resource
	store  *cache.Store
	client wcapi.Client
	logger *slog.Logger

	group    singleflight.Group
	inflight atomic.Int64
}

// New creates a Resolver for res that writes into store.
func New(res Resource, store *cache.Store, client wcapi.Client) *Resolver {
	if res.IDField == "" {
		res.IDField = cache.IDField
	}
	if res.TotalHeader == "" {
		res.TotalHeader = DefaultTotalHeader
	}
	res.Path = strings.TrimRight(res.Path, "/")
	return &Resolver{
		res:    res,
		store:  store,
		client: client,
		logger: slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (r *Resolver) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Resource returns the resolver's resource description.
func (r *Resolver) Resource() Resource { return r.res }

// Store returns the store the resolver writes into.
func (r *Resolver) Store() *cache.Store { return r.store }

// InFlight reports how many requests are outstanding right now.
func (r *Resolver) InFlight() int { return int(r.inflight.Load()) }

// GetItem fetches the item id and stores it. Concurrent calls for the same id
// share one request. On failure the error is stored under the item and also
// returned.
func (r *Resolver) GetItem(ctx context.Context, id cache.ID) (cache.Item, error) {
	v, err := r.share(ctx, "item:"+string(id), func(fctx context.Context) (any, error) {
		return r.fetchItem(fctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(cache.Item), nil
}

// GetItems fetches the list for q and stores it under q's Resource Name.
// Concurrent calls for equal queries share one request.
func (r *Resolver) GetItems(ctx context.Context, q querykey.Query) ([]cache.Item, error) {
	name, err := querykey.Encode(q)
	if err != nil {
		return nil, err
	}
	v, err := r.share(ctx, "query:"+name, func(fctx context.Context) (any, error) {
		return r.fetchItems(fctx, name, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]cache.Item), nil
}

// share runs fn once per key for all concurrent callers. The request is
// detached from the cancellation of whichever caller started it: a caller
// whose ctx ends gets ctx.Err() back while the request completes and lands
// in the store for everyone else. The client's own timeout still applies.
func (r *Resolver) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return fn(fctx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("coalesced fetch", "resource", r.res.Name, "key", key)
		}
		return res.Val, res.Err
	case <-ctx.Done():
		r.logger.Debug("caller left before fetch completed", "resource", r.res.Name, "key", key)
		return nil, ctx.Err()
	}
}

// SelectItem returns the cached item, fetching it only when it is missing.
func (r *Resolver) SelectItem(ctx context.Context, id cache.ID) (cache.Item, error) {
	if it, ok := cache.GetItem(r.store.State(), id); ok {
		return it, nil
	}
	return r.GetItem(ctx, id)
}

// SelectItems returns the cached list for q, fetching it when it was never
// fetched or references items that are no longer cached.
func (r *Resolver) SelectItems(ctx context.Context, q querykey.Query) ([]cache.Item, error) {
	if _, err := querykey.Encode(q); err != nil {
		return nil, err
	}
	st := r.store.State()
	if cache.HasQuery(st, q) && !cache.IsQueryStale(st, q) {
		return cache.GetItems(st, q), nil
	}
	return r.GetItems(ctx, q)
}

// Prefetch resolves every query concurrently. All fetches run to completion;
// the first error is returned.
func (r *Resolver) Prefetch(ctx context.Context, queries ...querykey.Query) error {
	var g errgroup.Group
	g.SetLimit(prefetchLimit)
	for _, q := range queries {
		g.Go(func() error {
			_, err := r.GetItems(ctx, q)
			return err
		})
	}
	return g.Wait()
}

func (r *Resolver) fetchItem(ctx context.Context, id cache.ID) (cache.Item, error) {
	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	resp, err := wcapi.Get(ctx, r.client, r.itemPath(id))
	if err != nil {
		r.failItem(id, err)
		return nil, err
	}
	item, err := r.decodeItem(resp)
	if err != nil {
		err = fmt.Errorf("decoding %s %s: %w", r.res.Name, id, err)
		r.failItem(id, err)
		return nil, err
	}

	r.store.Dispatch(cache.SetItem{ID: id, Item: item}, cache.ClearItemErrorAction(id))
	return item, nil
}

func (r *Resolver) fetchItems(ctx context.Context, name string, q querykey.Query) ([]cache.Item, error) {
	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	key := cache.ResourceNameKey(name)
	path, err := querykey.Path(r.res.Path, q)
	if err != nil {
		return nil, err
	}

	resp, err := wcapi.Get(ctx, r.client, path)
	if err != nil {
		r.fail(key, err)
		return nil, err
	}
	items, err := r.decodeItems(resp)
	if err != nil {
		err = fmt.Errorf("decoding %s list: %w", r.res.Name, err)
		r.fail(key, err)
		return nil, err
	}

	total := len(items)
	if h := resp.Header.Get(r.res.TotalHeader); h != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && n >= 0 {
			total = n
		}
	}

	r.store.Dispatch(cache.SetItems{ResourceName: name, Items: items, TotalCount: total})
	r.logger.Debug("resolved list", "resource", r.res.Name, "key", name, "items", len(items), "total", total)
	return items, nil
}

func (r *Resolver) fail(key cache.ErrorKey, err error) {
	if errors.Is(err, context.Canceled) {
		r.logger.Debug("request cancelled", "resource", r.res.Name, "key", key.String())
		return
	}
	r.logger.Warn("resolve failed", "resource", r.res.Name, "key", key.String(), "error", err)
	r.store.Dispatch(cache.SetError{Key: key, Error: ErrorEntry(err)})
}

func (r *Resolver) failItem(id cache.ID, err error) {
	r.fail(cache.ItemKey(id), err)
}

func (r *Resolver) itemPath(id cache.ID) string {
	return r.res.Path + "/" + url.PathEscape(string(id))
}

func (r *Resolver) decodeItem(resp *wcapi.Response) (cache.Item, error) {
	var item cache.Item
	if err := resp.Decode(&item); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("null item")
	}
	return r.normalize(item), nil
}

func (r *Resolver) decodeItems(resp *wcapi.Response) ([]cache.Item, error) {
	items := []cache.Item{}
	if len(resp.Body) == 0 {
		return items, nil
	}
	if err := resp.Decode(&items); err != nil {
		return nil, err
	}
	for i, it := range items {
		items[i] = r.normalize(it)
	}
	return items, nil
}

// normalize copies a custom id field into "id" so the cache can index it.
func (r *Resolver) normalize(item cache.Item) cache.Item {
	if r.res.IDField == cache.IDField {
		return item
	}
	if v, ok := item[r.res.IDField]; ok {
		if _, has := item[cache.IDField]; !has {
			item[cache.IDField] = v
		}
	}
	return item
}

// ErrorEntry converts a request failure into its cached form. HTTP errors
// keep their status, code and JSON body; anything else keeps only a message.
func ErrorEntry(err error) cache.ErrorEntry {
	var he *wcapi.HTTPError
	if errors.As(err, &he) {
		e := cache.ErrorEntry{Message: he.Message, Status: he.Status, Code: he.Code}
		if len(he.Body) > 0 && json.Valid(he.Body) {
			e.Data = bytes.Clone(he.Body)
		}
		return e
	}
	var ne *wcapi.NetworkError
	if errors.As(err, &ne) {
		return cache.ErrorEntry{Message: ne.Err.Error()}
	}
	return cache.ErrorEntry{Message: err.Error()}
}

func isGone(err error) bool {
	if wcapi.IsNotFound(err) {
		return true
	}
	var he *wcapi.HTTPError
	return errors.As(err, &he) && he.Status == http.StatusGone
}
