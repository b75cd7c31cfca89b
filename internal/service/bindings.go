package service

import (
	"errors"
	"sync"
)

// Bindings is the engine-neutral namespace of one evaluation. Response is
// nil when there is no previous response; scripts then see null.
type Bindings struct {
	Symbols  VariableSource
	Response *ResponseBinding
}

// ResponseBinding is what scripts reach through "response". It is built per
// call and derives the JSON view lazily, at most once.
type ResponseBinding struct {
	snapshot    *Response // nil for body-only evaluations
	body        string
	contentType string
	strict      bool

	once         sync.Once
	view         *BodyView
	parseErr     error
	onParseError func(error)
}

func newResponseBinding(resp *Response, strict bool) *ResponseBinding {
	return &ResponseBinding{
		snapshot:    resp,
		body:        resp.Body,
		contentType: resp.MediaType(),
		strict:      strict,
	}
}

func newBodyBinding(body string, strict bool) *ResponseBinding {
	return &ResponseBinding{body: body, strict: strict}
}

// HasMetadata is false for body-only bindings, which carry no status,
// resource, transaction id or headers.
func (rb *ResponseBinding) HasMetadata() bool {
	return rb.snapshot != nil
}

func (rb *ResponseBinding) Body() string        { return rb.body }
func (rb *ResponseBinding) ContentType() string { return rb.contentType }

func (rb *ResponseBinding) Resource() string {
	if rb.snapshot == nil {
		return ""
	}
	return rb.snapshot.Resource
}

func (rb *ResponseBinding) StatusCode() int {
	if rb.snapshot == nil {
		return 0
	}
	return rb.snapshot.StatusCode
}

func (rb *ResponseBinding) StatusText() string {
	if rb.snapshot == nil {
		return ""
	}
	return rb.snapshot.StatusText
}

func (rb *ResponseBinding) TransactionID() int64 {
	if rb.snapshot == nil {
		return 0
	}
	return rb.snapshot.TransactionID
}

// Header returns the value at index in the list recorded for name.
func (rb *ResponseBinding) Header(name string, index int) (string, bool) {
	values := rb.HeaderValues(name)
	if index < 0 || index >= len(values) {
		return "", false
	}
	return values[index], true
}

func (rb *ResponseBinding) HeaderValues(name string) []string {
	if rb.snapshot == nil {
		return nil
	}
	return rb.snapshot.HeaderValues(name)
}

func (rb *ResponseBinding) HeaderListSize(name string) int {
	return len(rb.HeaderValues(name))
}

// JSONBody returns the structured view, or nil when the body is not JSON.
// A malformed body yields an error only in strict mode and only when the
// content type declared JSON; otherwise the failure is reported to
// onParseError and the body stays available as a raw string.
func (rb *ResponseBinding) JSONBody() (*BodyView, error) {
	rb.once.Do(func() {
		view, err := ParseBody(rb.contentType, rb.body)
		if err == nil {
			rb.view = view
			return
		}
		if rb.onParseError != nil {
			rb.onParseError(err)
		}
		var pe *BodyParseError
		if errors.As(err, &pe) && pe.Declared && rb.strict {
			rb.parseErr = err
		}
	})
	return rb.view, rb.parseErr
}

// JSONPath queries the structured view. It reports false when there is no
// view or the path does not resolve.
func (rb *ResponseBinding) JSONPath(path string) (interface{}, bool) {
	view, err := rb.JSONBody()
	if err != nil || view == nil {
		return nil, false
	}
	v, err := view.Query(path)
	if err != nil {
		return nil, false
	}
	return v, true
}
