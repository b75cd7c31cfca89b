package service

import (
	"encoding/json"
	"fmt"
	"mime"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PaesslerAG/jsonpath"
)

// Kind tags the node type of a BodyView.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// BodyView is a read-only node of a parsed JSON body. Objects support field
// access, arrays index access and Len.
type BodyView struct {
	v interface{}
}

func (b BodyView) Kind() Kind {
	switch b.v.(type) {
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []interface{}:
		return KindArray
	case map[string]interface{}:
		return KindObject
	default:
		return KindNull
	}
}

func (b BodyView) Field(name string) (BodyView, bool) {
	obj, ok := b.v.(map[string]interface{})
	if !ok {
		return BodyView{}, false
	}
	v, ok := obj[name]
	return BodyView{v: v}, ok
}

// Keys lists the field names of an object in sorted order; nil otherwise.
func (b BodyView) Keys() []string {
	obj, ok := b.v.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b BodyView) Index(i int) (BodyView, bool) {
	arr, ok := b.v.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return BodyView{}, false
	}
	return BodyView{v: arr[i]}, true
}

// Len is the element count of arrays, the field count of objects and the
// character count of strings. Scalars report 0.
func (b BodyView) Len() int {
	switch v := b.v.(type) {
	case []interface{}:
		return len(v)
	case map[string]interface{}:
		return len(v)
	case string:
		return utf8.RuneCountInString(v)
	default:
		return 0
	}
}

// Value returns the underlying tree made of map[string]interface{},
// []interface{}, string, float64, bool and nil.
func (b BodyView) Value() interface{} {
	return b.v
}

// Query evaluates a JSONPath expression against the view.
func (b BodyView) Query(path string) (interface{}, error) {
	return jsonpath.Get(path, b.v)
}

// BodyParseError reports a body that was expected to hold JSON but did not.
type BodyParseError struct {
	// Declared is true when the content type announced JSON, false when the
	// body was only sniffed as JSON.
	Declared bool
	Err      error
}

func (e *BodyParseError) Error() string {
	if e.Declared {
		return fmt.Sprintf("body declared as JSON is malformed: %v", e.Err)
	}
	return fmt.Sprintf("body looks like JSON but is malformed: %v", e.Err)
}

func (e *BodyParseError) Unwrap() error { return e.Err }

type bodyShape int

const (
	bodyRaw bodyShape = iota
	bodyDeclaredJSON
	bodySniffedJSON
)

func classifyBody(contentType, body string) bodyShape {
	if IsJSONContentType(contentType) {
		return bodyDeclaredJSON
	}
	if LooksLikeJSON(body) {
		return bodySniffedJSON
	}
	return bodyRaw
}

// IsJSONContentType reports whether a Content-Type value announces JSON:
// application/json, text/json or any +json structured suffix.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		mt = strings.ToLower(strings.TrimSpace(mt))
	}
	switch {
	case mt == "application/json", mt == "text/json":
		return true
	case strings.HasSuffix(mt, "+json"):
		return true
	}
	return false
}

// LooksLikeJSON reports whether the first character of body, after any
// whitespace and byte-order mark, opens an object or an array.
func LooksLikeJSON(body string) bool {
	trimmed := strings.TrimLeftFunc(body, isBodyPadding)
	if trimmed == "" {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

func isBodyPadding(r rune) bool {
	return r == '\uFEFF' || unicode.IsSpace(r)
}

// ParseBody derives the structured view of a body. It returns (nil, nil)
// when the body should stay a raw string and a *BodyParseError when a parse
// was attempted and failed.
func ParseBody(contentType, body string) (*BodyView, error) {
	shape := classifyBody(contentType, body)
	if shape == bodyRaw {
		return nil, nil
	}
	// the decoder accepts only the four JSON whitespace characters
	var v interface{}
	if err := json.Unmarshal([]byte(strings.TrimFunc(body, isBodyPadding)), &v); err != nil {
		return nil, &BodyParseError{Declared: shape == bodyDeclaredJSON, Err: err}
	}
	return &BodyView{v: v}, nil
}
