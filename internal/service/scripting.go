package service

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// ScriptingPort runs one expression against one set of bindings. Any
// failure must be returned as a *ScriptError.
type ScriptingPort interface {
	Run(ctx context.Context, b *Bindings, expression string, level OptimizationLevel) (interface{}, error)
}

// ScriptError is the single failure kind returned by evaluations: syntax
// errors, runtime exceptions, reference errors and interrupts.
type ScriptError struct {
	Expression  string `json:"-"`
	Message     string `json:"message"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error in %q: %s", abbreviate(e.Expression, 80), e.Message)
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
