// Package requestid produces per-attempt correlation identifiers for
// request logging and tracing.
package requestid

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Generator produces identifiers that are unique within a process lifetime.
// Each identifier combines a wall-clock millisecond sample with a strictly
// increasing counter; uniqueness across process restarts is not guaranteed.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next correlation identifier.
func (g *Generator) Next() string {
	seq := g.counter.Add(1)
	return fmt.Sprintf("req-%d-%d", time.Now().UnixMilli(), seq)
}
