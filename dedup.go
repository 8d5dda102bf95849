package main

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DedupGate rejects a request whose normalized (query, row count, refinement)
// key already has a run in flight. Check-and-insert is one atomic operation;
// this registry is the only state shared across runs.
type DedupGate struct {
	mu     sync.Mutex
	active map[string]time.Time
}

func NewDedupGate() *DedupGate {
	return &DedupGate{active: make(map[string]time.Time)}
}

// DedupKey derives the registry key: lower-cased, trimmed query and
// refinement plus the row target.
func DedupKey(query string, rowCount int, refinement string) string {
	return fmt.Sprintf("%s|%d|%s",
		strings.ToLower(strings.TrimSpace(query)),
		rowCount,
		strings.ToLower(strings.TrimSpace(refinement)),
	)
}

// Acquire registers the key. Returns false if an identical run is already in
// flight — callers fail fast, requests are never queued.
func (g *DedupGate) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, inFlight := g.active[key]; inFlight {
		return false
	}
	g.active[key] = time.Now()
	return true
}

// Release frees the key. Callers release unconditionally, success or failure,
// so a later identical request can proceed.
func (g *DedupGate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// InFlight reports the number of active runs.
func (g *DedupGate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
