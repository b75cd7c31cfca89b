package service

import (
	"strings"
)

// Header is a single header line. A Response keeps them in arrival order so
// repeated names form an ordered multimap.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Response is a read-only snapshot of the last HTTP response seen by the
// fixture. The bridge never modifies it.
type Response struct {
	Resource      string   `json:"resource"`
	StatusCode    int      `json:"statusCode"`
	StatusText    string   `json:"statusText"`
	TransactionID int64    `json:"transactionId"`
	Body          string   `json:"body"`
	ContentType   string   `json:"contentType,omitempty"`
	Headers       []Header `json:"headers,omitempty"`
}

// AddHeader appends a header value. It is meant for callers assembling a
// snapshot before handing it to an Evaluator.
func (r *Response) AddHeader(name, value string) *Response {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

// HeaderValues returns every value recorded for name, in order. Names are
// matched exactly.
func (r *Response) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if h.Name == name {
			values = append(values, h.Value)
		}
	}
	return values
}

// MediaType returns the declared content type: the ContentType field when
// set, otherwise the first Content-Type header in any letter case.
func (r *Response) MediaType() string {
	if r.ContentType != "" {
		return r.ContentType
	}
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			return h.Value
		}
	}
	return ""
}

// FormatHeaderList renders header values the way scripts see them when a
// header list is turned into a string: "[v1, v2]".
func FormatHeaderList(values []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v)
	}
	b.WriteByte(']')
	return b.String()
}
