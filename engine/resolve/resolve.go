// Package resolve implements conceptual deduplication (entity resolution)
// over a raw concept graph: near-synonym concept_ids are merged via
// semantic embeddings and agglomerative clustering, producing the id_map
// consumed by engine/graph's Build.
package resolve

import (
	"context"
	"math"
	"sort"

	"github.com/corpusforge/corpusgraph/engine/embedder"
)

// DefaultThreshold is the cosine-similarity cutoff above which two
// concept_ids are considered the same entity.
const DefaultThreshold = 0.85

// Resolver clusters near-synonym concept_ids using embedding similarity.
type Resolver struct {
	embed     embedder.Embedder
	threshold float64
}

// New constructs a Resolver. threshold is a cosine-similarity cutoff in
// (0, 1]; callers normally pass DefaultThreshold.
func New(embed embedder.Embedder, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{embed: embed, threshold: threshold}
}

// IDMap computes the mapping from every raw concept_id to its resolved
// canonical id. rawIDs may contain duplicates; counts are used to break
// ties when canonicalizing a cluster (the most frequent id wins).
func (r *Resolver) IDMap(ctx context.Context, rawIDs []string) (map[string]string, error) {
	if len(rawIDs) == 0 {
		return map[string]string{}, nil
	}

	counts := make(map[string]int, len(rawIDs))
	for _, id := range rawIDs {
		counts[id]++
	}

	unique := make([]string, 0, len(counts))
	for id := range counts {
		unique = append(unique, id)
	}
	sort.Strings(unique)

	if len(unique) < 2 {
		out := make(map[string]string, len(unique))
		for _, id := range unique {
			out[id] = id
		}
		return out, nil
	}

	vectors, err := r.embed.EmbedBatch(ctx, unique)
	if err != nil {
		return nil, err
	}
	normalized := make([][]float64, len(vectors))
	for i, v := range vectors {
		normalized[i] = l2Normalize(v)
	}

	// distance_threshold = sqrt(2*(1-cosine_threshold)): the Euclidean
	// distance between two unit vectors at the target cosine similarity.
	distThreshold := math.Sqrt(2 * (1 - r.threshold))

	labels := agglomerativeCluster(normalized, distThreshold)

	clusters := make(map[int][]string)
	for i, id := range unique {
		clusters[labels[i]] = append(clusters[labels[i]], id)
	}

	idMap := make(map[string]string, len(unique))
	for _, group := range clusters {
		canonical := group[0]
		for _, id := range group[1:] {
			if counts[id] > counts[canonical] || (counts[id] == counts[canonical] && id < canonical) {
				canonical = id
			}
		}
		for _, id := range group {
			idMap[id] = canonical
		}
	}
	return idMap, nil
}

func l2Normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i, x := range v {
		out[i] = float64(x) / norm
	}
	return out
}

// agglomerativeCluster runs average-linkage hierarchical clustering with a
// distance-threshold stopping rule: clusters merge, closest pair first,
// until the minimum inter-cluster distance exceeds distThreshold. There is
// no library for this anywhere in the reference set, so it is hand-rolled
// directly from the distance_threshold + average-linkage contract.
func agglomerativeCluster(points [][]float64, distThreshold float64) []int {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = euclidean(points[i], points[j])
		}
	}

	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	for len(clusters) > 1 {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := averageLinkage(clusters[i], clusters[j], dist)
				if d < best {
					best, bi, bj = d, i, j
				}
			}
		}
		if best > distThreshold {
			break
		}
		merged := append(append([]int{}, clusters[bi]...), clusters[bj]...)
		next := make([][]int, 0, len(clusters)-1)
		for k, c := range clusters {
			if k == bi || k == bj {
				continue
			}
			next = append(next, c)
		}
		next = append(next, merged)
		clusters = next
	}

	labels := make([]int, n)
	for label, c := range clusters {
		for _, idx := range c {
			labels[idx] = label
		}
	}
	return labels
}

func averageLinkage(a, b []int, dist [][]float64) float64 {
	var sum float64
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
