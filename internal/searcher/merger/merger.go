// Package merger combines per-category rankings into one global top-N.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/internal/searcher/ranker"
)

// Merge keeps the best limit references across all lists, ordered by
// ranker.Less. A non-positive limit defaults to 10.
func Merge(lists [][]ranker.ScoredRef, limit int) []ranker.ScoredRef {
	if limit <= 0 {
		limit = 10
	}
	h := &refHeap{}
	for _, refs := range lists {
		for _, ref := range refs {
			heap.Push(h, ref)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]ranker.ScoredRef, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredRef)
	}
	return result
}

// refHeap is a min-heap: the root is the worst reference kept so far.
type refHeap []ranker.ScoredRef

func (h refHeap) Len() int { return len(h) }

func (h refHeap) Less(i, j int) bool { return ranker.Less(h[j], h[i]) }

func (h refHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *refHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredRef))
}

func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
