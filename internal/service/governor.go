package service

import (
	"sync/atomic"
	"unicode/utf8"
)

// OptimizationLevel tells the scripting port how much work it may spend
// preparing a program.
type OptimizationLevel int

const (
	// OptimizationDefault compiles through the program cache with full
	// source position data.
	OptimizationDefault OptimizationLevel = 0
	// OptimizationInterpreted skips caching and source maps. It is chosen
	// for oversized inputs.
	OptimizationInterpreted OptimizationLevel = -1
)

func (l OptimizationLevel) String() string {
	if l == OptimizationInterpreted {
		return "interpreted"
	}
	return "default"
}

// Governor picks the optimization level for a call from the combined size
// of the body and the expression.
type Governor struct {
	threshold atomic.Int64
}

func NewGovernor(threshold int64) *Governor {
	g := &Governor{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold stores a new threshold; negative values clamp to 0. Calls
// already running keep the level they were given.
func (g *Governor) SetThreshold(n int64) {
	if n < 0 {
		n = 0
	}
	g.threshold.Store(n)
}

func (g *Governor) Threshold() int64 {
	return g.threshold.Load()
}

// Level sizes body and expression in characters. A combined size equal to
// the threshold keeps the default level.
func (g *Governor) Level(body, expression string) OptimizationLevel {
	threshold := g.threshold.Load()
	// byte length bounds the rune count, so small inputs skip counting
	if int64(len(body))+int64(len(expression)) <= threshold {
		return OptimizationDefault
	}
	size := int64(utf8.RuneCountInString(body)) + int64(utf8.RuneCountInString(expression))
	return levelFor(size, threshold)
}

func (g *Governor) LevelForSize(size int64) OptimizationLevel {
	return levelFor(size, g.threshold.Load())
}

func levelFor(size, threshold int64) OptimizationLevel {
	if size > threshold {
		return OptimizationInterpreted
	}
	return OptimizationDefault
}
