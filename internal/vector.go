package internal

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
)

type SearchResult struct {
	Chunk Chunk
	Score float32 // 0-1, higher is better
}

type IndexEntry struct {
	ID     uint32
	Vector []float32
	Chunk  Chunk
}

// minTreeItems is the smallest index that gets annoy trees. goannoy faults
// while saving a tree over a single item; smaller indexes are scanned exactly.
const minTreeItems = 2

// annTree is an immutable snapshot of angular trees over the stored vectors.
// Annoy cannot take new items after Build, so writers build a fresh tree and
// swap it in.
type annTree struct {
	idx       interfaces.AnnoyIndex[float32, uint32]
	dimension int
	trees     int
	ids       []uint32 // annoy item i holds entry ids[i]
}

func newAnnoy(dimension int) interfaces.AnnoyIndex[float32, uint32] {
	return builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()
}

func buildAnnTree(entries []IndexEntry, dimension, trees int) (*annTree, error) {
	if len(entries) < minTreeItems {
		return nil, fmt.Errorf("need at least %d entries for trees, got %d", minTreeItems, len(entries))
	}

	idx := newAnnoy(dimension)

	ids := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return nil, fmt.Errorf("dimension mismatch on entry %d: expected %d, got %d", e.ID, dimension, len(e.Vector))
		}
		idx.AddItem(uint32(i), e.Vector)
		ids[i] = e.ID
	}

	idx.Build(trees, -1)

	return &annTree{idx: idx, dimension: dimension, trees: trees, ids: ids}, nil
}

// loadAnnTree maps a saved tree file back onto entries, which must be in the
// order the tree was built from.
func loadAnnTree(path string, entries []IndexEntry, dimension, trees int) (*annTree, error) {
	if len(entries) < minTreeItems {
		return nil, fmt.Errorf("need at least %d entries for trees, got %d", minTreeItems, len(entries))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	idx := newAnnoy(dimension)
	if err := idx.Load(path); err != nil {
		return nil, fmt.Errorf("load trees: %w", err)
	}

	ids := make([]uint32, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	return &annTree{idx: idx, dimension: dimension, trees: trees, ids: ids}, nil
}

func (t *annTree) save(path string) error {
	if err := t.idx.Save(path); err != nil {
		return fmt.Errorf("save trees: %w", err)
	}
	return nil
}

// nearest returns ids and similarity scores, most similar first.
func (t *annTree) nearest(vec []float32, k int) ([]uint32, []float32, error) {
	if len(vec) != t.dimension {
		return nil, nil, fmt.Errorf("dimension mismatch: expected %d, got %d", t.dimension, len(vec))
	}

	if k > len(t.ids) {
		k = len(t.ids)
	}
	if k <= 0 {
		return nil, nil, nil
	}

	// Visit every item of every tree so results are exact.
	searchK := len(t.ids) * max(t.trees, 1)
	items, distances := t.idx.GetNnsByVector(vec, k, searchK, t.idx.CreateContext())

	ids := make([]uint32, 0, len(items))
	scores := make([]float32, 0, len(items))
	for i, item := range items {
		if int(item) >= len(t.ids) {
			continue
		}
		// Angular distance is in [0, 2]; rounding can turn a zero distance
		// into NaN.
		var score float32
		if i < len(distances) {
			d := distances[i]
			if math.IsNaN(float64(d)) {
				d = 0
			}
			score = 1.0 - d/2.0
		}
		ids = append(ids, t.ids[item])
		scores = append(scores, score)
	}

	return ids, scores, nil
}

// scanNearest ranks entries by exact angular distance, scored the same way as
// the trees. Ties keep entry order.
func scanNearest(entries []IndexEntry, vec []float32, k int) ([]uint32, []float32, error) {
	type scored struct {
		id    uint32
		score float32
	}

	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != len(vec) {
			return nil, nil, fmt.Errorf("dimension mismatch on entry %d: expected %d, got %d", e.ID, len(e.Vector), len(vec))
		}
		ranked = append(ranked, scored{id: e.ID, score: angularScore(vec, e.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	ids := make([]uint32, 0, k)
	scores := make([]float32, 0, k)
	for _, r := range ranked[:max(k, 0)] {
		ids = append(ids, r.id)
		scores = append(scores, r.score)
	}
	return ids, scores, nil
}

func angularScore(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	var cos float64
	if na > 0 && nb > 0 {
		cos = dot / math.Sqrt(na*nb)
	}
	dist := math.Sqrt(math.Max(2-2*cos, 0))
	return float32(1 - dist/2)
}
