package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
	"github.com/kalambet/wcdata/internal/storage"
	"github.com/kalambet/wcdata/internal/wcapi"
)

// testStack is a dev REST server on a real listener with a registry whose
// resolvers talk to it over HTTP.
type testStack struct {
	store    *storage.Store
	registry *resolver.Registry
	requests atomic.Int32
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	h, store := setupRESTHandler(t, RESTDeps{Credentials: Credentials{Token: testToken}})

	st := &testStack{store: store}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st.requests.Add(1)
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	reg, err := resolver.NewRegistry(wcapi.New(srv.URL, wcapi.Options{Token: testToken}),
		resolver.WooCommerce("products"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	st.registry = reg
	return st
}

func (st *testStack) products(t *testing.T) *resolver.Resolver {
	t.Helper()
	r, ok := st.registry.Get("products")
	if !ok {
		t.Fatal("products not registered")
	}
	return r
}

func TestResolverOverHTTP_List(t *testing.T) {
	st := newTestStack(t)
	seed(t, st.store, "products",
		map[string]any{"name": "A", "status": "publish"},
		map[string]any{"name": "B", "status": "draft"},
		map[string]any{"name": "C", "status": "publish"},
	)
	r := st.products(t)
	ctx := context.Background()

	q := querykey.Query{"per_page": 1, "status": "publish", "orderby": "id", "order": "asc"}
	items, err := r.GetItems(ctx, q)
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if len(items) != 1 || items[0]["name"] != "A" {
		t.Fatalf("items = %v", items)
	}

	state := r.Store().State()
	if total, ok := cache.GetItemsTotalCount(state, q); !ok || total != 2 {
		t.Errorf("total = %d, %v; want 2 from X-WP-Total", total, ok)
	}
	if got := cache.GetItems(state, querykey.Query{"order": "asc", "orderby": "id", "status": "publish", "per_page": 1}); len(got) != 1 {
		t.Errorf("reordered query got %d items, want the same list", len(got))
	}
}

func TestResolverOverHTTP_IncludeBrackets(t *testing.T) {
	st := newTestStack(t)
	seed(t, st.store, "products", map[string]any{"name": "A"}, map[string]any{"name": "B"}, map[string]any{"name": "C"})

	items, err := st.products(t).GetItems(context.Background(),
		querykey.Query{"include": []int{1, 3}, "orderby": "id", "order": "asc"})
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if len(items) != 2 || items[0]["name"] != "A" || items[1]["name"] != "C" {
		t.Errorf("items = %v", items)
	}
}

func TestResolverOverHTTP_ItemErrorCached(t *testing.T) {
	st := newTestStack(t)
	r := st.products(t)

	_, err := r.GetItem(context.Background(), cache.MustID(42))
	var he *wcapi.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *wcapi.HTTPError", err)
	}
	if he.Status != http.StatusNotFound || he.Code != "woocommerce_rest_invalid_id" {
		t.Errorf("HTTPError = %+v", he)
	}

	e, ok := cache.GetItemError(r.Store().State(), cache.MustID(42))
	if !ok {
		t.Fatal("item error not cached")
	}
	if e.Status != http.StatusNotFound || e.Code != "woocommerce_rest_invalid_id" || e.Message != "Invalid ID." {
		t.Errorf("cached error = %+v", e)
	}
}

func TestResolverOverHTTP_Unauthorized(t *testing.T) {
	st := newTestStack(t)
	srv := httptest.NewServer(NewRESTHandler(RESTDeps{Store: st.store, Credentials: Credentials{Token: testToken}}))
	t.Cleanup(srv.Close)

	r := resolver.New(resolver.WooCommerce("products"), cache.NewStore(), wcapi.New(srv.URL, wcapi.Options{Token: "wrong"}))
	_, err := r.GetItems(context.Background(), nil)
	var he *wcapi.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
	if _, ok := cache.GetItemsError(r.Store().State(), nil); !ok {
		t.Error("query error not cached")
	}
}

func TestResolverOverHTTP_Mutations(t *testing.T) {
	st := newTestStack(t)
	r := st.products(t)
	ctx := context.Background()

	created, err := r.CreateItem(ctx, map[string]any{"name": "Hat", "status": "draft"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	id, ok := created.ID()
	if !ok || id != cache.MustID(1) {
		t.Fatalf("created id = %q, %v", id, ok)
	}

	updated, err := r.UpdateItem(ctx, id, map[string]any{"status": "publish"})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if updated["status"] != "publish" || updated["name"] != "Hat" {
		t.Errorf("updated = %v", updated)
	}
	if it, _ := cache.GetItem(r.Store().State(), id); it["status"] != "publish" {
		t.Errorf("cached = %v", it)
	}

	if _, err := r.DeleteItem(ctx, id, false); err == nil {
		t.Fatal("delete without force should fail")
	}
	if _, ok := cache.GetItem(r.Store().State(), id); !ok {
		t.Error("item dropped after a refused delete")
	}

	if _, err := r.DeleteItem(ctx, id, true); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, ok := cache.GetItem(r.Store().State(), id); ok {
		t.Error("item still cached after delete")
	}
	if _, err := st.store.GetRecord(ctx, "products", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record still stored: %v", err)
	}
}

func TestResolverOverHTTP_CachedSelectsSkipRequests(t *testing.T) {
	st := newTestStack(t)
	seed(t, st.store, "products", map[string]any{"name": "A"})
	r := st.products(t)
	ctx := context.Background()

	if _, err := r.SelectItems(ctx, nil); err != nil {
		t.Fatalf("SelectItems: %v", err)
	}
	if _, err := r.SelectItems(ctx, querykey.Query{}); err != nil {
		t.Fatalf("SelectItems: %v", err)
	}
	if _, err := r.SelectItem(ctx, cache.MustID(1)); err != nil {
		t.Fatalf("SelectItem: %v", err)
	}
	if got := st.requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}
