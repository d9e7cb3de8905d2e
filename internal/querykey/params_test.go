package querykey

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Brackets(t *testing.T) {
	params, err := Params(Query{
		"status":   "draft",
		"page":     2,
		"include":  []int{4, 7},
		"meta":     map[string]any{"color": "red"},
		"search":   Undefined,
		"category": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "draft", params.Get("status"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, []string{"4", "7"}, params["include[]"])
	assert.Equal(t, "red", params.Get("meta[color]"))
	assert.NotContains(t, params, "search")
	assert.NotContains(t, params, "category")
}

func TestPath(t *testing.T) {
	p, err := Path("/wc/v3/products", Query{"per_page": 5, "status": "publish"})
	require.NoError(t, err)
	assert.Equal(t, "/wc/v3/products?per_page=5&status=publish", p)

	p, err = Path("/wc/v3/products", nil)
	require.NoError(t, err)
	assert.Equal(t, "/wc/v3/products", p)
}

func TestParams_RejectsUnencodable(t *testing.T) {
	_, err := Params(Query{"cb": func() {}})
	require.ErrorIs(t, err, ErrUnencodable)
}

func TestFromValues(t *testing.T) {
	values := url.Values{
		"status":      {"draft"},
		"page":        {"2"},
		"sku":         {"007"},
		"include[]":   {"4", "7"},
		"meta[color]": {"red"},
		"meta[size]":  {"L"},
	}
	q := FromValues(values)

	assert.Equal(t, Query{
		"status":  "draft",
		"page":    2,
		"sku":     "007",
		"include": []any{4, 7},
		"meta":    map[string]any{"color": "red", "size": "L"},
	}, q)
	assert.Equal(t, MustEncode(Query{"status": "draft", "page": 2, "sku": "007", "include": []int{4, 7}, "meta": map[string]string{"size": "L", "color": "red"}}), MustEncode(q))
}

func TestFromValues_RoundTripsParams(t *testing.T) {
	q := Query{"per_page": 5, "include": []int{1, 2}, "orderby": "date"}
	params, err := Params(q)
	require.NoError(t, err)
	assert.Equal(t, MustEncode(q), MustEncode(FromValues(params)))
}
