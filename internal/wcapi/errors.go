package wcapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errEmptyBody = errors.New("empty response body")

// HTTPError is a non-2xx reply. Code and Message come from the WordPress
// error body {"code","message","data":{"status"}} when the server sent one.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Body    json.RawMessage
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// NetworkError is a transport failure: no response was received. Timeouts
// end up here too.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

type wpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Message: http.StatusText(status)}
	if len(body) == 0 {
		return e
	}
	e.Body = json.RawMessage(body)
	var wp wpError
	if err := json.Unmarshal(body, &wp); err == nil {
		e.Code = wp.Code
		if wp.Message != "" {
			e.Message = wp.Message
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return e
}
