package domain

import (
	"net/http"
	"net/url"
)

// Request is the already-parsed representation of an incoming HTTP request
// that the processing core operates on. The transport layer owns wire
// parsing; by the time a Request reaches the dispatcher every field is
// fully materialized.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	Headers    http.Header
	Body       []byte
	RemoteAddr string
}

// Header returns the first value for the named header, or "".
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Response is the canonical response produced by handlers and middleware.
// The dispatcher converts it back to the transport representation.
type Response struct {
	Status      int
	Headers     http.Header
	Body        []byte
	ContentType string
}

// NewResponse creates a response with an initialized header map.
func NewResponse(status int, body []byte, contentType string) *Response {
	return &Response{
		Status:      status,
		Headers:     make(http.Header),
		Body:        body,
		ContentType: contentType,
	}
}

// SetHeader sets a header, allocating the map if needed.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	r.Headers.Set(name, value)
}
