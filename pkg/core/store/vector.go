package store

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is empty, zero or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

type indexEntry struct {
	doc    Document
	vector []float64
}

// VectorIndex ranks documents by cosine similarity in memory.
type VectorIndex struct {
	entries []indexEntry
}

func (ix *VectorIndex) Add(doc Document, vector []float32) {
	ix.entries = append(ix.entries, indexEntry{doc: doc, vector: toFloat64(vector)})
}

func (ix *VectorIndex) Len() int { return len(ix.entries) }

// Search returns the topK most similar documents, best first. Score is the
// cosine distance (1 - similarity) so lower is closer, matching pgvector order.
func (ix *VectorIndex) Search(query []float32, topK int) []Document {
	q := toFloat64(query)
	ranked := make([]Document, 0, len(ix.entries))
	for _, e := range ix.entries {
		if len(e.vector) != len(q) {
			continue
		}
		d := e.doc
		d.Score = 1 - CosineSimilarity(q, e.vector)
		if math.IsNaN(d.Score) {
			continue
		}
		ranked = append(ranked, d)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
