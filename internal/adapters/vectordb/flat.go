// Package vectordb provides index and snapshot-storage adapters.
// FlatIndex implements ports.Index as an exact brute-force scan; the SQLite
// repository implements ports.SnapshotRepository.
package vectordb

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/domain/vecmath"
)

// FlatIndex is an immutable exact inner-product index.
// For the tens-to-thousands of entries this system targets a linear scan
// is both exact and fast enough.
type FlatIndex struct {
	dim     int
	ids     []string
	vectors [][]float32
}

var _ ports.Index = (*FlatIndex)(nil)

// NewFlatIndex copies records into a new index. Records are stored in
// ascending entry ID order so tie-breaking needs no extra work per query.
func NewFlatIndex(dimension int, records []entities.EmbeddingRecord) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", entities.ErrDimensionMismatch, dimension)
	}

	sorted := make([]entities.EmbeddingRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EntryID < sorted[j].EntryID })

	idx := &FlatIndex{
		dim:     dimension,
		ids:     make([]string, len(sorted)),
		vectors: make([][]float32, len(sorted)),
	}
	for i, r := range sorted {
		if len(r.Vector) != dimension {
			return nil, fmt.Errorf("%w: entry %s has %d dims, want %d",
				entities.ErrDimensionMismatch, r.EntryID, len(r.Vector), dimension)
		}
		if i > 0 && sorted[i-1].EntryID == r.EntryID {
			return nil, fmt.Errorf("%w: duplicate entry id %s", entities.ErrInvalidEntry, r.EntryID)
		}
		v := make([]float32, dimension)
		copy(v, r.Vector)
		idx.ids[i] = r.EntryID
		idx.vectors[i] = v
	}
	return idx, nil
}

// BuildFlat adapts NewFlatIndex to ports.IndexBuilder.
func BuildFlat(dimension int, records []entities.EmbeddingRecord) (ports.Index, error) {
	return NewFlatIndex(dimension, records)
}

// Search returns the k highest inner products, descending, ties by
// ascending entry ID. Empty index or wrong query dimension returns nil.
func (f *FlatIndex) Search(query []float32, k int) []entities.Match {
	if len(f.ids) == 0 || len(query) != f.dim {
		return nil
	}
	if k <= 0 {
		k = 1
	}
	if k > len(f.ids) {
		k = len(f.ids)
	}

	h := make(minHeap, 0, k)
	for i, v := range f.vectors {
		m := entities.Match{EntryID: f.ids[i], Score: vecmath.Dot(query, v)}
		if len(h) < k {
			heap.Push(&h, m)
			continue
		}
		if better(m, h[0]) {
			h[0] = m
			heap.Fix(&h, 0)
		}
	}

	out := make([]entities.Match, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(entities.Match)
	}
	return out
}

// Len returns the number of indexed vectors.
func (f *FlatIndex) Len() int { return len(f.ids) }

// Dimension returns the vector dimension.
func (f *FlatIndex) Dimension() int { return f.dim }

// better orders matches by score descending, then entry ID ascending.
func better(a, b entities.Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.EntryID < b.EntryID
}

// minHeap keeps the worst retained match at the root.
type minHeap []entities.Match

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(entities.Match)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
