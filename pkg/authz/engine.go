// Package authz stores role relations as tuples and answers membership checks.
package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RelationTuple represents a directed edge in the relationship graph.
// (principal:alice) -> [member] -> (council:main)
type RelationTuple struct {
	Object   string `json:"object"`   // namespace:id (e.g., "council:main")
	Relation string `json:"relation"` // e.g., "member", "fulfiller"
	Subject  string `json:"subject"`  // principal or group (e.g., "principal:alice", "group:ops")
}

// Engine is an in-memory relation graph.
type Engine struct {
	mu     sync.RWMutex
	graph  map[string]RelationTuple // "object#relation@subject" -> tuple
	byEdge map[string]map[string]struct{}
}

func NewEngine() *Engine {
	return &Engine{
		graph:  make(map[string]RelationTuple),
		byEdge: make(map[string]map[string]struct{}),
	}
}

// WriteTuple adds a relationship. Returns false if it already existed.
func (e *Engine) WriteTuple(ctx context.Context, tuple RelationTuple) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := tupleKey(tuple)
	if _, exists := e.graph[key]; exists {
		return false
	}
	e.graph[key] = tuple

	edge := edgeKey(tuple.Object, tuple.Relation)
	if e.byEdge[edge] == nil {
		e.byEdge[edge] = make(map[string]struct{})
	}
	e.byEdge[edge][tuple.Subject] = struct{}{}
	return true
}

// DeleteTuple removes a relationship. Returns false if it did not exist.
func (e *Engine) DeleteTuple(ctx context.Context, tuple RelationTuple) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := tupleKey(tuple)
	if _, exists := e.graph[key]; !exists {
		return false
	}
	delete(e.graph, key)
	edge := edgeKey(tuple.Object, tuple.Relation)
	delete(e.byEdge[edge], tuple.Subject)
	if len(e.byEdge[edge]) == 0 {
		delete(e.byEdge, edge)
	}
	return true
}

// Check verifies if subject has relation on object, directly or through a group.
func (e *Engine) Check(ctx context.Context, object, relation, subject string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkRecursive(object, relation, subject, make(map[string]bool))
}

func (e *Engine) checkRecursive(object, relation, subject string, visited map[string]bool) bool {
	edge := edgeKey(object, relation)
	subjects := e.byEdge[edge]
	if _, ok := subjects[subject]; ok {
		return true
	}

	if visited[edge] {
		return false
	}
	visited[edge] = true

	for s := range subjects {
		if isGroup(s) && e.checkRecursive(s, "member", subject, visited) {
			return true
		}
	}
	return false
}

// Subjects lists the direct subjects of object#relation in sorted order.
func (e *Engine) Subjects(ctx context.Context, object, relation string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	subjects := e.byEdge[edgeKey(object, relation)]
	out := make([]string, 0, len(subjects))
	for s := range subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of direct subjects of object#relation.
func (e *Engine) Count(ctx context.Context, object, relation string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byEdge[edgeKey(object, relation)])
}

func tupleKey(t RelationTuple) string {
	return fmt.Sprintf("%s#%s@%s", t.Object, t.Relation, t.Subject)
}

func edgeKey(object, relation string) string {
	return object + "#" + relation
}

func isGroup(subject string) bool {
	return strings.HasPrefix(subject, "group:")
}
