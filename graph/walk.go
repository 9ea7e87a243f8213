package graph

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankByCosine scores every entity that has an embedding and returns the
// topK best, highest first. Ties keep name order.
func RankByCosine(entities []EntityNode, query []float32, topK int) []ScoredNode {
	scored := make([]ScoredNode, 0, len(entities))
	for _, e := range entities {
		if len(e.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredNode{Entity: e, Score: Cosine(query, e.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entity.Name < scored[j].Entity.Name
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Walk collects relations reachable from start within depth hops, breadth
// first, stopping at limit relations. Only relations whose endpoints are both
// entities are followed. Relations are visited in Key order for stable output.
func Walk(relations []Relation, isEntity func(name string) bool, start []string, depth, limit int) []Relation {
	if depth <= 0 {
		depth = 1
	}

	adjacent := make(map[string][]Relation)
	sorted := append([]Relation(nil), relations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })
	for _, r := range sorted {
		if !isEntity(r.SourceID) || !isEntity(r.TargetID) {
			continue
		}
		adjacent[r.SourceID] = append(adjacent[r.SourceID], r)
		if r.TargetID != r.SourceID {
			adjacent[r.TargetID] = append(adjacent[r.TargetID], r)
		}
	}

	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var out []Relation

	frontier := make([]string, 0, len(start))
	for _, name := range start {
		if !visited[name] {
			visited[name] = true
			frontier = append(frontier, name)
		}
	}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, name := range frontier {
			for _, r := range adjacent[name] {
				if seen[r.Key()] {
					continue
				}
				seen[r.Key()] = true
				out = append(out, r)
				if limit > 0 && len(out) >= limit {
					return out
				}

				other := r.TargetID
				if other == name {
					other = r.SourceID
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return out
}
