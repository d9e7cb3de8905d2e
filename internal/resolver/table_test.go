package resolver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/wcapi"
)

func TestTable_Register(t *testing.T) {
	tbl := NewTable()
	noop := func(context.Context, ...any) error { return nil }

	require.NoError(t, tbl.Register("orders.getItems", noop))
	assert.ErrorIs(t, tbl.Register("orders.getItems", noop), ErrDuplicateSelector)
	assert.ErrorIs(t, tbl.Register("", noop), ErrEmptySelector)
	assert.ErrorIs(t, tbl.Resolve(context.Background(), "orders.getItem"), ErrUnknownSelector)
	assert.NoError(t, tbl.Resolve(context.Background(), "orders.getItems"))
}

func TestTable_ResolvePassesArgs(t *testing.T) {
	tbl := NewTable()
	var got []any
	require.NoError(t, tbl.Register("x", func(_ context.Context, args ...any) error {
		got = args
		return nil
	}))

	require.NoError(t, tbl.Resolve(context.Background(), "x", 1, "two"))
	assert.Equal(t, []any{1, "two"}, got)
}

func TestRegisterResource(t *testing.T) {
	api := &fakeAPI{fn: func(req wcapi.Request) (*wcapi.Response, error) {
		if req.Path == "/wc/v3/orders/5" {
			return jsonResponse(`{"id":5,"status":"processing"}`), nil
		}
		return jsonResponse(`[{"id":5,"status":"processing"}]`, "X-WP-Total", "1"), nil
	}}
	r := New(WooCommerce("orders"), cache.NewStore(), api)
	tbl := NewTable()
	require.NoError(t, RegisterResource(tbl, r))
	assert.Equal(t, []string{"orders.getItem", "orders.getItems"}, tbl.Selectors())
	assert.ErrorIs(t, RegisterResource(tbl, r), ErrDuplicateSelector)

	ctx := context.Background()
	require.NoError(t, tbl.Resolve(ctx, "orders.getItem", 5))
	_, ok := cache.GetItem(r.Store().State(), cache.MustID(5))
	assert.True(t, ok)

	require.NoError(t, tbl.Resolve(ctx, "orders.getItems", map[string]any{"status": "processing"}))
	assert.True(t, cache.HasQuery(r.Store().State(), querykey.Query{"status": "processing"}))

	require.NoError(t, tbl.Resolve(ctx, "orders.getItems"))
	assert.True(t, cache.HasQuery(r.Store().State(), nil))

	assert.ErrorIs(t, tbl.Resolve(ctx, "orders.getItem"), ErrBadArgs)
	assert.ErrorIs(t, tbl.Resolve(ctx, "orders.getItem", 1.5), ErrBadArgs)
	assert.ErrorIs(t, tbl.Resolve(ctx, "orders.getItems", "status=processing"), ErrBadArgs)
	assert.ErrorIs(t, tbl.Resolve(ctx, "orders.getItems", nil, nil), ErrBadArgs)
}

func TestMutations(t *testing.T) {
	api := &fakeAPI{}
	api.fn = func(req wcapi.Request) (*wcapi.Response, error) {
		switch {
		case req.Method == http.MethodPost:
			return &wcapi.Response{Body: []byte(`{"id":11,"name":"Hat"}`), Status: http.StatusCreated}, nil
		case req.Method == http.MethodPut:
			return jsonResponse(`{"id":11,"name":"Cap"}`), nil
		case req.Method == http.MethodDelete && req.Path == "/wc/v3/products/11?force=true":
			return jsonResponse(`{"id":11,"name":"Cap"}`), nil
		case req.Method == http.MethodDelete:
			return nil, &wcapi.HTTPError{Status: http.StatusNotImplemented, Code: "woocommerce_rest_trash_not_supported", Message: "not supported"}
		}
		return jsonResponse(`[{"id":11,"name":"Hat"}]`), nil
	}
	r := newProducts(api)
	ctx := context.Background()
	id := cache.MustID(11)

	_, err := r.GetItems(ctx, nil)
	require.NoError(t, err)

	created, err := r.CreateItem(ctx, map[string]any{"name": "Hat"})
	require.NoError(t, err)
	assert.Equal(t, "Hat", created["name"])

	updated, err := r.UpdateItem(ctx, id, map[string]any{"name": "Cap"})
	require.NoError(t, err)
	assert.Equal(t, "Cap", updated["name"])
	assert.Equal(t, map[string]any{"name": "Cap"}, api.lastRequest().Data)
	assert.Equal(t, "Cap", cache.GetItems(r.Store().State(), nil)[0]["name"])

	_, err = r.DeleteItem(ctx, id, false)
	require.Error(t, err)
	e, ok := cache.GetItemError(r.Store().State(), id)
	require.True(t, ok)
	assert.Equal(t, "woocommerce_rest_trash_not_supported", e.Code)
	_, ok = cache.GetItem(r.Store().State(), id)
	assert.True(t, ok)

	deleted, err := r.DeleteItem(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, "Cap", deleted["name"])

	st := r.Store().State()
	_, ok = cache.GetItem(st, id)
	assert.False(t, ok)
	_, ok = cache.GetItemError(st, id)
	assert.False(t, ok)
	assert.True(t, cache.IsQueryStale(st, nil), "lists are not invalidated by writes")
}

func TestDeleteItem_AlreadyGone(t *testing.T) {
	api := &fakeAPI{fn: func(req wcapi.Request) (*wcapi.Response, error) {
		if req.Method == http.MethodDelete {
			return nil, &wcapi.HTTPError{Status: http.StatusNotFound, Message: "Invalid ID."}
		}
		return jsonResponse(`{"id":4}`), nil
	}}
	r := newProducts(api)
	ctx := context.Background()

	_, err := r.GetItem(ctx, cache.MustID(4))
	require.NoError(t, err)

	_, err = r.DeleteItem(ctx, cache.MustID(4), true)
	require.True(t, wcapi.IsNotFound(err))
	_, ok := cache.GetItem(r.Store().State(), cache.MustID(4))
	assert.False(t, ok)
}

func TestCreateItem_FailureCachedUnderPayload(t *testing.T) {
	api := &fakeAPI{fn: func(req wcapi.Request) (*wcapi.Response, error) {
		return nil, &wcapi.HTTPError{Status: http.StatusBadRequest, Code: "rest_invalid_param", Message: "Invalid parameter(s): name"}
	}}
	r := newProducts(api)
	fields := map[string]any{"name": ""}

	_, err := r.CreateItem(context.Background(), fields)
	require.Error(t, err)

	e, ok := cache.GetItemsError(r.Store().State(), querykey.Query(fields))
	require.True(t, ok)
	assert.Equal(t, "rest_invalid_param", e.Code)
}
