// Package bktree implements a BK-tree over the Hamming distance between
// fingerprints. Nodes live in a flat arena and reference children by index.
package bktree

import (
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
)

// Match is a search hit: an indexed item and its distance to the query.
type Match[T any] struct {
	Item     T
	Distance int
}

type node[T any] struct {
	hash     fingerprint.Hash
	items    []T         // every item whose hash equals this node's hash
	children map[int]int // edge distance -> arena index
}

// Tree indexes items by the fingerprint returned from its key function.
// It is not safe for concurrent mutation.
type Tree[T any] struct {
	key   func(T) fingerprint.Hash
	nodes []node[T]
	count int
}

// New creates an empty tree.
func New[T any](key func(T) fingerprint.Hash) *Tree[T] {
	return &Tree[T]{key: key}
}

// Len returns the number of inserted items.
func (t *Tree[T]) Len() int {
	return t.count
}

// Nodes returns the number of distinct fingerprints in the tree.
func (t *Tree[T]) Nodes() int {
	return len(t.nodes)
}

// Insert adds an item. Items with an identical fingerprint share a node.
func (t *Tree[T]) Insert(item T) {
	t.count++
	h := t.key(item)
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node[T]{hash: h, items: []T{item}})
		return
	}

	cur := 0
	for {
		d := fingerprint.HammingDistance(t.nodes[cur].hash, h)
		if d == 0 {
			t.nodes[cur].items = append(t.nodes[cur].items, item)
			return
		}
		next, ok := t.nodes[cur].children[d]
		if !ok {
			t.nodes = append(t.nodes, node[T]{hash: h, items: []T{item}})
			if t.nodes[cur].children == nil {
				t.nodes[cur].children = make(map[int]int)
			}
			t.nodes[cur].children[d] = len(t.nodes) - 1
			return
		}
		cur = next
	}
}

// Search returns every item within maxDistance of target.
//
// Nodes are visited depth first and children in ascending edge distance, so
// the result order depends only on insertion order. Only children whose edge
// lies in [d-maxDistance, d+maxDistance] are visited.
func (t *Tree[T]) Search(target fingerprint.Hash, maxDistance int) []Match[T] {
	if len(t.nodes) == 0 || maxDistance < 0 {
		return nil
	}

	var results []Match[T]
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[idx]

		d := fingerprint.HammingDistance(n.hash, target)
		if d <= maxDistance {
			for _, item := range n.items {
				results = append(results, Match[T]{Item: item, Distance: d})
			}
		}
		if len(n.children) == 0 {
			continue
		}

		lower := max(1, d-maxDistance)
		upper := min(d+maxDistance, 64*max(len(n.hash), len(target)))
		// Push in reverse so the smallest edge is popped first.
		for edge := upper; edge >= lower; edge-- {
			if child, ok := n.children[edge]; ok {
				stack = append(stack, child)
			}
		}
	}
	return results
}
