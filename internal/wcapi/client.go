// Package wcapi is the HTTP boundary of the data store: a narrow request
// contract plus a net/http implementation for WooCommerce-style REST APIs.
package wcapi

import (
	"context"
	"encoding/json"
	"net/http"
)

// Request is a single REST call. Path is relative to the API root and may
// carry a query string. Data, when set, is sent as the JSON body.
type Request struct {
	Method string
	Path   string
	Data   any
}

// Response is a successful (2xx) reply.
type Response struct {
	Body   json.RawMessage
	Header http.Header
	Status int
}

// Client issues REST requests. Non-2xx replies are returned as *HTTPError and
// transport failures as *NetworkError.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Client interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Get is shorthand for a GET request.
func Get(ctx context.Context, c Client, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}
