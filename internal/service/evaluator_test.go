package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"scriptbridge/internal/config"
	"scriptbridge/internal/logging"
)

func newTestEvaluator(symbols VariableSource, opts config.Options) *Evaluator {
	if opts == nil {
		opts = config.Options{}
	}
	return NewEvaluator("test", symbols, opts, logging.Discard())
}

func createResponse(contentType, body string) *Response {
	r := &Response{
		Resource:      "/resources",
		StatusCode:    200,
		StatusText:    "OK",
		Body:          body,
		TransactionID: 123456789,
	}
	r.AddHeader("Content-Type", contentType)
	r.AddHeader("Bespoke-Header", "jolly")
	r.AddHeader("Bespoke-Header", "good")
	r.AddHeader("Content-Length", "7")
	return r
}

func createXMLResponse() *Response {
	return createResponse("application/xml", "<xml />")
}

const personJSON = `{ "person" : { "name" : "Rokko", "age" : "30" } }`

func mustEvaluate(t *testing.T, e *Evaluator, resp *Response, expression string) interface{} {
	t.Helper()
	res, err := e.Evaluate(context.Background(), resp, expression)
	if err != nil {
		t.Fatalf("evaluate %q: %v", expression, err)
	}
	return res.Value
}

func mustScriptError(t *testing.T, err error) *ScriptError {
	t.Helper()
	if err == nil {
		t.Fatal("expected a script error, got nil")
	}
	var se *ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ScriptError, got %T: %v", err, err)
	}
	return se
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

func TestEvaluator_SymbolMap(t *testing.T) {
	symbols := NewSymbolTable()
	if err := symbols.Put("my_sym", "98"); err != nil {
		t.Fatalf("put symbol: %v", err)
	}
	e := newTestEvaluator(symbols, nil)

	got := mustEvaluate(t, e, &Response{}, "'my sym is: ' + symbols.get('my_sym')")
	if got != "my sym is: 98" {
		t.Errorf("got %v", got)
	}
}

func TestEvaluator_UnboundSymbolIsNull(t *testing.T) {
	e := newTestEvaluator(MapSource{"k": "v"}, nil)

	if got := mustEvaluate(t, e, nil, "symbols.get('k')"); got != "v" {
		t.Errorf("expected v, got %v", got)
	}
	if got := mustEvaluate(t, e, nil, "symbols.get('missing') === null"); got != true {
		t.Errorf("expected unbound symbol to be null, got %v", got)
	}
	if got := mustEvaluate(t, e, nil, "symbols.has('k') && !symbols.has('missing')"); got != true {
		t.Errorf("expected has() to reflect bindings, got %v", got)
	}
}

func TestEvaluator_SymbolsReadAtCallTime(t *testing.T) {
	symbols := NewSymbolTable()
	e := newTestEvaluator(symbols, nil)

	if got := mustEvaluate(t, e, nil, "symbols.get('late')"); got != nil {
		t.Fatalf("expected null before put, got %v", got)
	}
	symbols.Put("late", "arrived")
	if got := mustEvaluate(t, e, nil, "symbols.get('late')"); got != "arrived" {
		t.Errorf("expected symbol put after construction to be visible, got %v", got)
	}
	symbols.Clear()
	if got := mustEvaluate(t, e, nil, "symbols.get('late')"); got != nil {
		t.Errorf("expected null after clear, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Body and JSON body
// ---------------------------------------------------------------------------

func TestEvaluator_ResponseBody(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createXMLResponse()

	got := mustEvaluate(t, e, resp, "'my last response body is: ' + response.body")
	if got != "my last response body is: <xml />" {
		t.Errorf("got %v", got)
	}
	if got := mustEvaluate(t, e, resp, "typeof response.jsonbody"); got != "undefined" {
		t.Errorf("expected no jsonbody for xml, got %v", got)
	}
}

func TestEvaluator_JSONBodyForJSONContentType(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("application/json", personJSON)

	got := mustEvaluate(t, e, resp, "'My friend ' + response.jsonbody.person.name + ' is ' + response.jsonbody.person.age + ' years old.'")
	if got != "My friend Rokko is 30 years old." {
		t.Errorf("got %v", got)
	}
}

func TestEvaluator_JSONBodyForContentThatLooksLikeJSON(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("text/plain", personJSON)

	got := mustEvaluate(t, e, resp, "'My friend ' + response.jsonbody.person.name + ' is ' + response.jsonbody.person.age + ' years old.'")
	if got != "My friend Rokko is 30 years old." {
		t.Errorf("got %v", got)
	}
}

func TestEvaluator_JSONBodyArrays(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("text/plain", "  \n[{\"id\": 1}, {\"id\": 2}, {\"id\": 3}]")

	if got := mustEvaluate(t, e, resp, "response.jsonbody.length"); fmt.Sprint(got) != "3" {
		t.Errorf("expected length 3, got %v", got)
	}
	if got := mustEvaluate(t, e, resp, "response.jsonbody[2].id"); fmt.Sprint(got) != "3" {
		t.Errorf("expected id 3, got %v", got)
	}
}

func TestEvaluator_LargeJSONBody(t *testing.T) {
	const size = 1024 * 1024 * 10
	var sb strings.Builder
	sb.Grow(size + 32)
	sb.WriteString(`{ "content" : "`)
	sb.WriteString(strings.Repeat("A", size))
	sb.WriteString(`"}`)

	e := newTestEvaluator(nil, nil)
	res, err := e.Evaluate(context.Background(), createResponse("application/json", sb.String()), "response.jsonbody.content.length")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fmt.Sprint(res.Value) != strconv.Itoa(size) {
		t.Errorf("expected %d, got %v", size, res.Value)
	}
	if res.Optimization != OptimizationInterpreted {
		t.Errorf("expected optimization disabled for a 10M body, got %v", res.Optimization)
	}
}

func TestEvaluator_JSONPath(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("application/json", personJSON)

	if got := mustEvaluate(t, e, resp, "response.jsonpath('$.person.name')"); got != "Rokko" {
		t.Errorf("expected Rokko, got %v", got)
	}
	if got := mustEvaluate(t, e, resp, "response.jsonpath('$.person.missing')"); got != nil {
		t.Errorf("expected null for unresolved path, got %v", got)
	}
	if got := mustEvaluate(t, e, createXMLResponse(), "response.jsonpath('$.a')"); got != nil {
		t.Errorf("expected null without a json body, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Malformed JSON policy
// ---------------------------------------------------------------------------

func TestEvaluator_MalformedJSONFallsBackToRawBody(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("application/json", `{"person": `)

	res, err := e.Evaluate(context.Background(), resp, "typeof response.jsonbody + ':' + response.body")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Value != `undefined:{"person": ` {
		t.Errorf("got %v", res.Value)
	}
	if !res.BodyParseFailed {
		t.Error("expected BodyParseFailed to be reported")
	}
}

func TestEvaluator_MalformedJSONStrictFails(t *testing.T) {
	e := newTestEvaluator(nil, config.Options{config.StrictJSONBody: "true"})
	resp := createResponse("application/json", `{"person": `)

	// the raw body is still usable when jsonbody is not touched
	if got := mustEvaluate(t, e, resp, "response.body.length"); fmt.Sprint(got) != "11" {
		t.Errorf("expected raw body length 11, got %v", got)
	}

	_, err := e.Evaluate(context.Background(), resp, "response.jsonbody.person")
	se := mustScriptError(t, err)
	if !strings.Contains(se.Message, "malformed") {
		t.Errorf("expected message to mention malformed JSON, got %q", se.Message)
	}
}

func TestEvaluator_MalformedSniffedJSONStrictFallsBack(t *testing.T) {
	e := newTestEvaluator(nil, config.Options{config.StrictJSONBody: "true"})
	resp := createResponse("text/plain", "{not json at all")

	if got := mustEvaluate(t, e, resp, "response.jsonbody === undefined"); got != true {
		t.Errorf("expected sniffed malformed body to fall back, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Null handling
// ---------------------------------------------------------------------------

func TestEvaluator_NullResponse(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	got := mustEvaluate(t, e, nil, "'response is null: ' + (response == null)")
	if got != "response is null: true" {
		t.Errorf("got %v", got)
	}
}

func TestEvaluator_NullResponseBodyAccessIsScriptError(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	_, err := e.Evaluate(context.Background(), nil, "response.body")
	se := mustScriptError(t, err)
	if !strings.Contains(se.Message, "TypeError") {
		t.Errorf("expected a TypeError, got %q", se.Message)
	}
}

func TestEvaluator_NullResult(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	res, err := e.Evaluate(context.Background(), nil, "null")
	if err != nil {
		t.Fatalf("expected null to be a successful result, got %v", err)
	}
	if res.Value != nil {
		t.Errorf("expected nil value, got %v", res.Value)
	}

	res, err = e.EvaluateBody(context.Background(), "", "null")
	if err != nil {
		t.Fatalf("expected null to be a successful body-only result, got %v", err)
	}
	if res.Value != nil {
		t.Errorf("expected nil value, got %v", res.Value)
	}
}

// ---------------------------------------------------------------------------
// Response fields and headers
// ---------------------------------------------------------------------------

func TestEvaluator_ResponseFields(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createXMLResponse()

	tests := []struct {
		expression string
		want       string
	}{
		{"'my last response resource is: ' + response.resource", "my last response resource is: /resources"},
		{"'my last response statusText is: ' + response.statusText", "my last response statusText is: OK"},
		{"'my last response transactionId is: ' + response.transactionId", "my last response transactionId is: 123456789"},
		{"'my last response statusCode is: ' + response.statusCode", "my last response statusCode is: 200"},
		{"response.contentType", "application/xml"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			if got := mustEvaluate(t, e, resp, tt.expression); got != tt.want {
				t.Errorf("got %v, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluator_Headers(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createXMLResponse()

	tests := []struct {
		expression string
		want       string
	}{
		{"'my last response Content-Type is: ' + response.header('Content-Type')", "my last response Content-Type is: application/xml"},
		{"'my last response Content-Length is: ' + response.header0('Content-Length')", "my last response Content-Length is: 7"},
		{"'my last response Bespoke-Header[0] is: ' + response.header('Bespoke-Header', 0)", "my last response Bespoke-Header[0] is: jolly"},
		{"'my last response Bespoke-Header[1] is: ' + response.header('Bespoke-Header', 1)", "my last response Bespoke-Header[1] is: good"},
		{"'my last response Bespoke-Header size is: ' + response.headerListSize('Bespoke-Header')", "my last response Bespoke-Header size is: 2"},
		{"'my last response Bespoke-Header: ' + response.headers('Bespoke-Header')", "my last response Bespoke-Header: [jolly, good]"},
		{"'my last response does not have Ciccio header: ' + response.header0('Ciccio')", "my last response does not have Ciccio header: null"},
		{"'out of range: ' + response.header('Bespoke-Header', 2)", "out of range: null"},
		{"'negative: ' + response.header('Bespoke-Header', -1)", "negative: null"},
		{"'missing list: ' + response.headers('Ciccio')", "missing list: []"},
		{"'missing size: ' + response.headerListSize('Ciccio')", "missing size: 0"},
		{"'case sensitive: ' + response.header('bespoke-header')", "case sensitive: null"},
		{"response.headers('Bespoke-Header')[1]", "good"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			if got := mustEvaluate(t, e, resp, tt.expression); got != tt.want {
				t.Errorf("got %v, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluator_BodyOnlyMode(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	res, err := e.EvaluateBody(context.Background(), personJSON, "response.jsonbody.person.name")
	if err != nil {
		t.Fatalf("evaluate body: %v", err)
	}
	if res.Value != "Rokko" {
		t.Errorf("expected Rokko, got %v", res.Value)
	}

	res, err = e.EvaluateBody(context.Background(), "plain", "[response.body, response.statusCode, response.resource, response.header('X'), response.headerListSize('X')].join('|')")
	if err != nil {
		t.Fatalf("evaluate body: %v", err)
	}
	// join renders null as an empty string
	if res.Value != "plain||||0" {
		t.Errorf("got %v", res.Value)
	}
}

// ---------------------------------------------------------------------------
// Script errors
// ---------------------------------------------------------------------------

func TestEvaluator_SyntaxErrorIsScriptError(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	_, err := e.Evaluate(context.Background(), createXMLResponse(), "some erroneous javascript")
	se := mustScriptError(t, err)
	if se.Expression != "some erroneous javascript" {
		t.Errorf("expected expression to be recorded, got %q", se.Expression)
	}
	if !strings.Contains(err.Error(), "some erroneous javascript") {
		t.Errorf("expected error text to name the expression, got %q", err.Error())
	}
}

func TestEvaluator_RuntimeErrors(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	tests := []struct {
		name       string
		expression string
		contains   string
	}{
		{"reference", "notDefinedAnywhere + 1", "ReferenceError"},
		{"thrown error", "throw new Error('boom')", "boom"},
		{"thrown string", "throw 'plain'", "plain"},
		{"eval disabled", "eval('1')", "TypeError"},
		{"Function disabled", "Function('return 1')()", "TypeError"},
		{"Function unavailable to instanceof", "({}) instanceof Function", "TypeError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(context.Background(), nil, tt.expression)
			se := mustScriptError(t, err)
			if !strings.Contains(se.Message, tt.contains) {
				t.Errorf("expected message to contain %q, got %q", tt.contains, se.Message)
			}
		})
	}
}

func TestEvaluator_SloppyModeAssignment(t *testing.T) {
	for _, opts := range []config.Options{nil, {config.ThresholdSizeBytes: "1"}} {
		e := newTestEvaluator(nil, opts)

		if got := mustEvaluate(t, e, nil, "x = 1; x"); fmt.Sprint(got) != "1" {
			t.Errorf("options %v: expected 1, got %v", opts, got)
		}
		// globals do not outlive the call
		if got := mustEvaluate(t, e, nil, "typeof x"); got != "undefined" {
			t.Errorf("options %v: expected undefined, got %v", opts, got)
		}
	}
}

func TestEvaluator_JSONBodyIsPlainObject(t *testing.T) {
	e := newTestEvaluator(nil, nil)
	resp := createResponse("application/json", `{"n": [1, 2], "person": {"name": "Rokko", "age": "30"}}`)

	if got := mustEvaluate(t, e, resp, "Array.isArray(response.jsonbody.n)"); got != true {
		t.Errorf("expected an array, got %v", got)
	}
	want := `{"age":"30","name":"Rokko"}`
	if got := mustEvaluate(t, e, resp, "JSON.stringify(response.jsonbody.person)"); got != want {
		t.Errorf("expected %s, got %v", want, got)
	}
	if got := mustEvaluate(t, e, resp, "Object.keys(response.jsonbody).join(',')"); got != "n,person" {
		t.Errorf("expected sorted keys, got %v", got)
	}
}

func TestEvaluator_SniffedBodyWithPadding(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	for _, body := range []string{"\ufeff" + personJSON, "\f" + personJSON, "\ufeff \v" + personJSON} {
		res, err := e.EvaluateBody(context.Background(), body, "response.jsonbody.person.name")
		if err != nil {
			t.Fatalf("evaluate %q: %v", body[:3], err)
		}
		if res.Value != "Rokko" {
			t.Errorf("body %q: expected Rokko, got %v", body[:3], res.Value)
		}
	}
}

func TestEvaluator_ErrorLocation(t *testing.T) {
	e := newTestEvaluator(nil, nil)

	_, err := e.Evaluate(context.Background(), nil, "var a = 1;\nthrow new Error('second line')")
	se := mustScriptError(t, err)
	if se.Line != 2 {
		t.Errorf("expected line 2, got %d (%s)", se.Line, se.Message)
	}
}

func TestEvaluator_Timeout(t *testing.T) {
	e := newTestEvaluator(nil, config.Options{config.ScriptTimeout: "50ms"})

	start := time.Now()
	_, err := e.Evaluate(context.Background(), nil, "while (true) {}")
	se := mustScriptError(t, err)
	if !se.Interrupted {
		t.Errorf("expected interrupted error, got %+v", se)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestEvaluator_ContextCancel(t *testing.T) {
	e := newTestEvaluator(nil, config.Options{config.ScriptTimeout: "0s"})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := e.Evaluate(ctx, nil, "for (;;) {}")
	se := mustScriptError(t, err)
	if !strings.Contains(se.Message, "cancelled") {
		t.Errorf("expected cancellation message, got %q", se.Message)
	}
}

// ---------------------------------------------------------------------------
// Optimization governance
// ---------------------------------------------------------------------------

type recordingPort struct {
	mu     sync.Mutex
	levels []OptimizationLevel
}

func (p *recordingPort) Run(_ context.Context, _ *Bindings, _ string, level OptimizationLevel) (interface{}, error) {
	p.mu.Lock()
	p.levels = append(p.levels, level)
	p.mu.Unlock()
	return nil, nil
}

func TestEvaluator_RemovesOptimisationIfResponseLargerThanThreshold(t *testing.T) {
	port := &recordingPort{}
	e := newEvaluatorWithPort("foo", nil, config.Options{config.ThresholdSizeBytes: "10"}, port, logging.Discard())

	res, err := e.Evaluate(context.Background(), &Response{Body: "0123456789010"}, "xxx")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Optimization != OptimizationInterpreted {
		t.Errorf("expected interpreted level, got %v", res.Optimization)
	}
}

func TestEvaluator_RemovesOptimisationIfExpressionLargerThanThreshold(t *testing.T) {
	port := &recordingPort{}
	e := newEvaluatorWithPort("foo", nil, config.Options{config.ThresholdSizeBytes: "10"}, port, logging.Discard())

	res, err := e.Evaluate(context.Background(), &Response{Body: "xxx"}, "0123456789010")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Optimization != OptimizationInterpreted {
		t.Errorf("expected interpreted level, got %v", res.Optimization)
	}
}

func TestEvaluator_OptimizationLevelIsPerCall(t *testing.T) {
	port := &recordingPort{}
	e := newEvaluatorWithPort("foo", nil, config.Options{config.ThresholdSizeBytes: "10"}, port, logging.Discard())

	e.Evaluate(context.Background(), &Response{Body: strings.Repeat("x", 20)}, "1")
	e.Evaluate(context.Background(), &Response{Body: "x"}, "1")
	e.EvaluateBody(context.Background(), strings.Repeat("y", 11), "")
	e.Evaluate(context.Background(), nil, "1")

	want := []OptimizationLevel{OptimizationInterpreted, OptimizationDefault, OptimizationInterpreted, OptimizationDefault}
	if len(port.levels) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(port.levels))
	}
	for i := range want {
		if port.levels[i] != want[i] {
			t.Errorf("call %d: expected %v, got %v", i, want[i], port.levels[i])
		}
	}
}

func TestEvaluator_ThresholdConfiguration(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"12345", 12345},
		{"zz", 65535},
		{"-1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e := newTestEvaluator(nil, nil)
			e.Configure(config.Options{config.ThresholdSizeBytes: tt.raw})
			if got := e.Threshold(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}

	if got := newTestEvaluator(nil, nil).Threshold(); got != 65535 {
		t.Errorf("expected default threshold 65535, got %d", got)
	}
}

func TestJSEngine_ProgramCache(t *testing.T) {
	engine := NewJSEngine(config.Options{})
	e := newEvaluatorWithPort("cache", nil, config.Options{config.ThresholdSizeBytes: "20"}, engine, logging.Discard())

	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate(context.Background(), nil, "1 + 1"); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if got := engine.CachedPrograms(); got != 1 {
		t.Errorf("expected 1 cached program, got %d", got)
	}

	// oversized expressions are never cached
	long := "'" + strings.Repeat("z", 40) + "'"
	if _, err := e.Evaluate(context.Background(), nil, long); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := engine.CachedPrograms(); got != 1 {
		t.Errorf("expected oversized program to bypass the cache, got %d cached", got)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestEvaluator_ConcurrentEvaluations(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Put("prefix", "item-")
	e := newTestEvaluator(symbols, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := createResponse("application/json", fmt.Sprintf(`{"id": %d}`, i))
			res, err := e.Evaluate(context.Background(), resp, "symbols.get('prefix') + response.jsonbody.id")
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("item-%d", i); res.Value != want {
				errs <- fmt.Errorf("expected %s, got %v", want, res.Value)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Configure(config.Options{config.ThresholdSizeBytes: strconv.Itoa(i * 10)})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
