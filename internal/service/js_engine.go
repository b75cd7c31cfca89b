package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	lru "github.com/hashicorp/golang-lru/v2"

	"scriptbridge/internal/config"
)

const programName = "expression"

// JSEngine is the goja implementation of ScriptingPort. Every call gets its
// own runtime; compiled programs are shared between calls through an LRU
// cache when the optimization level allows it.
type JSEngine struct {
	timeout  atomic.Int64
	programs *lru.Cache[string, *goja.Program]
}

func NewJSEngine(opts config.Options) *JSEngine {
	programs, _ := lru.New[string, *goja.Program](opts.ProgramCacheSize())
	e := &JSEngine{programs: programs}
	e.timeout.Store(int64(opts.ScriptTimeout()))
	return e
}

// Configure applies the execution budget and cache size from opts.
func (e *JSEngine) Configure(opts config.Options) {
	e.timeout.Store(int64(opts.ScriptTimeout()))
	e.programs.Resize(opts.ProgramCacheSize())
}

func (e *JSEngine) Timeout() time.Duration {
	return time.Duration(e.timeout.Load())
}

// CachedPrograms reports how many compiled programs are retained.
func (e *JSEngine) CachedPrograms() int {
	return e.programs.Len()
}

func (e *JSEngine) Run(ctx context.Context, b *Bindings, expression string, level OptimizationLevel) (result interface{}, err error) {
	prog, err := e.compile(expression, level)
	if err != nil {
		return nil, newScriptError(expression, err)
	}

	vm := goja.New()
	setupSandbox(vm)
	if err := bind(vm, b); err != nil {
		return nil, newScriptError(expression, err)
	}

	stop := e.watchBudget(ctx, vm)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ScriptError{Expression: expression, Message: fmt.Sprintf("script panicked: %v", r)}
		}
	}()

	v, err := vm.RunProgram(prog)
	if err != nil {
		return nil, newScriptError(expression, err)
	}
	return export(v), nil
}

// compile honours the optimization level: the default level goes through
// the cache, the interpreted level parses without source maps and leaves
// the cache untouched. Expressions run in sloppy mode, so assignments to
// undeclared names create globals.
func (e *JSEngine) compile(expression string, level OptimizationLevel) (*goja.Program, error) {
	if level == OptimizationInterpreted {
		ast, err := goja.Parse(programName, expression, parser.WithDisableSourceMaps)
		if err != nil {
			return nil, err
		}
		return goja.CompileAST(ast, false)
	}

	if prog, ok := e.programs.Get(expression); ok {
		return prog, nil
	}
	prog, err := goja.Compile(programName, expression, false)
	if err != nil {
		return nil, err
	}
	e.programs.Add(expression, prog)
	return prog, nil
}

// watchBudget interrupts vm when ctx ends or the configured timeout expires.
func (e *JSEngine) watchBudget(ctx context.Context, vm *goja.Runtime) func() {
	var cancel context.CancelFunc
	if d := e.Timeout(); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			vm.Interrupt("script execution timed out")
			return
		}
		vm.Interrupt("script execution cancelled")
	})
	return func() {
		stop()
		cancel()
	}
}

// setupSandbox disables dynamic code generation.
func setupSandbox(vm *goja.Runtime) {
	vm.Set("eval", goja.Undefined())
	vm.Set("Function", goja.Undefined())
}

func bind(vm *goja.Runtime, b *Bindings) error {
	symbols := b.Symbols
	if symbols == nil {
		symbols = emptySource{}
	}
	if err := vm.Set("symbols", symbolsObject(vm, symbols)); err != nil {
		return err
	}
	if b.Response == nil {
		return vm.Set("response", goja.Null())
	}
	resp, err := responseObject(vm, b.Response)
	if err != nil {
		return err
	}
	return vm.Set("response", resp)
}

func symbolsObject(vm *goja.Runtime, src VariableSource) *goja.Object {
	obj := vm.NewObject()

	// symbols.get(name) - null when unbound
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		if v, ok := src.Lookup(call.Arguments[0].String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})

	obj.Set("has", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return vm.ToValue(false)
		}
		_, ok := src.Lookup(call.Arguments[0].String())
		return vm.ToValue(ok)
	})

	return obj
}

func responseObject(vm *goja.Runtime, rb *ResponseBinding) (*goja.Object, error) {
	obj := vm.NewObject()

	obj.Set("body", rb.Body())
	obj.Set("contentType", nullIfEmpty(rb.ContentType()))

	if rb.HasMetadata() {
		obj.Set("resource", rb.Resource())
		obj.Set("statusCode", rb.StatusCode())
		obj.Set("statusText", rb.StatusText())
		obj.Set("transactionId", rb.TransactionID())
	} else {
		obj.Set("resource", goja.Null())
		obj.Set("statusCode", goja.Null())
		obj.Set("statusText", goja.Null())
		obj.Set("transactionId", goja.Null())
	}

	// response.jsonbody - parsed on first access
	var jsonBody goja.Value
	getter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if jsonBody != nil {
			return jsonBody
		}
		view, err := rb.JSONBody()
		if err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		if view == nil {
			jsonBody = goja.Undefined()
		} else {
			jsonBody = bodyValue(vm, *view)
		}
		return jsonBody
	})
	if err := obj.DefineAccessorProperty("jsonbody", getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}

	// response.jsonpath(path)
	obj.Set("jsonpath", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		if _, err := rb.JSONBody(); err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		v, ok := rb.JSONPath(call.Arguments[0].String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})

	// response.header(name[, index])
	obj.Set("header", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		index := 0
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			index = int(call.Arguments[1].ToInteger())
		}
		return headerValue(vm, rb, call.Arguments[0].String(), index)
	})

	// response.header0(name)
	obj.Set("header0", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		return headerValue(vm, rb, call.Arguments[0].String(), 0)
	})

	// response.headers(name) - array rendered as "[v1, v2]"
	obj.Set("headers", func(call goja.FunctionCall) goja.Value {
		var values []string
		if len(call.Arguments) > 0 {
			values = rb.HeaderValues(call.Arguments[0].String())
		}
		items := make([]interface{}, len(values))
		for i, v := range values {
			items[i] = v
		}
		arr := vm.NewArray(items...)
		display := FormatHeaderList(values)
		arr.Set("toString", func(goja.FunctionCall) goja.Value {
			return vm.ToValue(display)
		})
		return arr
	})

	obj.Set("headerListSize", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return vm.ToValue(0)
		}
		return vm.ToValue(rb.HeaderListSize(call.Arguments[0].String()))
	})

	return obj, nil
}

// bodyValue materialises a parsed body as plain script objects and arrays.
func bodyValue(vm *goja.Runtime, view BodyView) goja.Value {
	switch view.Kind() {
	case KindNull:
		return goja.Null()
	case KindArray:
		items := make([]interface{}, view.Len())
		for i := range items {
			child, _ := view.Index(i)
			items[i] = bodyValue(vm, child)
		}
		return vm.NewArray(items...)
	case KindObject:
		obj := vm.NewObject()
		for _, name := range view.Keys() {
			child, _ := view.Field(name)
			obj.Set(name, bodyValue(vm, child))
		}
		return obj
	default:
		return vm.ToValue(view.Value())
	}
}

func headerValue(vm *goja.Runtime, rb *ResponseBinding, name string, index int) goja.Value {
	v, ok := rb.Header(name, index)
	if !ok {
		return goja.Null()
	}
	return vm.ToValue(v)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return goja.Null()
	}
	return s
}

// export converts the completion value into plain Go data. null and
// undefined both become nil; functions are returned as their source text.
func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if _, ok := goja.AssertFunction(v); ok {
		return v.String()
	}
	return v.Export()
}

var (
	syntaxLocation = regexp.MustCompile(`Line (\d+):(\d+)`)
	stackLocation  = regexp.MustCompile(`at \S*?:(\d+):(\d+)`)
)

func newScriptError(expression string, err error) *ScriptError {
	se := &ScriptError{Expression: expression, Message: err.Error()}

	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	switch {
	case errors.As(err, &interrupted):
		se.Interrupted = true
		se.Message = fmt.Sprintf("%v", interrupted.Value())
		return se
	case errors.As(err, &exception):
		if val := exception.Value(); val != nil {
			se.Message = val.String()
		}
	}

	se.Line, se.Column = parseGojaErrorLocation(err.Error())
	return se
}

// parseGojaErrorLocation extracts the first line/column pair from a goja
// error string. Both are 0 when none is present.
func parseGojaErrorLocation(msg string) (line, col int) {
	m := syntaxLocation.FindStringSubmatch(msg)
	if m == nil {
		m = stackLocation.FindStringSubmatch(msg)
	}
	if m == nil {
		return 0, 0
	}
	line, _ = strconv.Atoi(m[1])
	col, _ = strconv.Atoi(m[2])
	return line, col
}
