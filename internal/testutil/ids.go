package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates UUID-shaped identifiers from a counter:
// 00000000-0000-4000-8000-000000000001, ...002 and so on. They pass UUID
// validation and sort in creation order.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix uint32
	n      uint64
}

// NewSequentialIDs creates a generator. prefix fills the first UUID group
// so separate generators (cids, reference ids) never collide.
func NewSequentialIDs(prefix uint32) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next identifier.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", g.prefix, g.n)
}
