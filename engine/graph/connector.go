package graph

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/embedder"
)

// connectorBridgeThreshold is the minimum cosine similarity required to
// bridge an orphan component to the main one. Deliberately lenient: a weak
// link is preferred over leaving islands disconnected.
const connectorBridgeThreshold = 0.25

const (
	mainRepLimit   = 50
	orphanRepLimit = 10
)

// Connector bridges orphan connected components into the main graph using
// embedding similarity between degree-selected representatives.
type Connector struct {
	embed embedder.Embedder
	log   *slog.Logger
}

// NewConnector constructs a Connector.
func NewConnector(embed embedder.Embedder, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{embed: embed, log: log}
}

// ConnectOrphans bridges every non-main connected component to the main
// one with the single highest-similarity representative pair found,
// mutating g in place. Bridging is best-effort: a component that can't
// clear the similarity threshold remains disconnected and the pipeline
// still succeeds.
func (c *Connector) ConnectOrphans(ctx context.Context, g *domain.Graph) error {
	components := connectedComponents(g)
	if len(components) <= 1 {
		return nil
	}

	sort.Slice(components, func(i, j int) bool { return len(components[i]) > len(components[j]) })
	main := components[0]
	orphans := components[1:]

	degree := undirectedDegree(g)

	mainReps := representatives(main, degree, mainRepLimit)
	if len(mainReps) == 0 {
		return nil
	}
	mainEmb, err := embedAll(ctx, c.embed, mainReps)
	if err != nil {
		c.log.Error("connector: failed to embed main representatives", "error", err)
		return nil
	}

	for _, orphan := range orphans {
		orphanReps := representatives(orphan, degree, orphanRepLimit)
		if len(orphanReps) == 0 {
			continue
		}
		orphanEmb, err := embedAll(ctx, c.embed, orphanReps)
		if err != nil {
			c.log.Error("connector: failed to embed orphan representatives", "error", err)
			continue
		}

		bestOrphan, bestMain, bestScore := bestPair(orphanReps, orphanEmb, mainReps, mainEmb)
		if bestScore <= connectorBridgeThreshold {
			c.log.Warn("connector: orphan has no close semantic match", "representative", bestOrphan, "score", bestScore)
			continue
		}

		c.log.Info("connector: bridging orphan to main", "orphan", bestOrphan, "main", bestMain, "score", bestScore)
		orphanNode := g.Nodes[bestOrphan]
		mainNode := g.Nodes[bestMain]
		if !orphanNode.HasOutbound(bestMain) {
			orphanNode.OutboundLinks = append(orphanNode.OutboundLinks, bestMain)
		}
		if !mainNode.HasInboundFrom(bestOrphan) {
			mainNode.InboundLinks = append(mainNode.InboundLinks, bestOrphan)
		}
	}
	return nil
}

// connectedComponents computes undirected connected components over the
// outbound-link edges of g.
func connectedComponents(g *domain.Graph) [][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		adj[id] = nil
	}
	for id, n := range g.Nodes {
		for _, target := range n.OutboundLinks {
			if _, ok := g.Nodes[target]; !ok {
				continue
			}
			adj[id] = append(adj[id], target)
			adj[target] = append(adj[target], id)
		}
	}

	seen := make(map[string]bool, len(adj))
	var components [][]string
	ids := make([]string, 0, len(adj))
	for id := range adj {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, start := range ids {
		if seen[start] {
			continue
		}
		var comp []string
		queue := []string{start}
		seen[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, next := range adj[cur] {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}
	return components
}

func undirectedDegree(g *domain.Graph) map[string]int {
	degree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		for _, target := range n.OutboundLinks {
			if _, ok := g.Nodes[target]; !ok {
				continue
			}
			degree[id]++
			degree[target]++
		}
	}
	return degree
}

// representatives returns up to limit members of component sorted by
// descending undirected degree, ties broken by concept_id for determinism.
func representatives(component []string, degree map[string]int, limit int) []string {
	ranked := make([]string, len(component))
	copy(ranked, component)
	sort.Slice(ranked, func(i, j int) bool {
		if degree[ranked[i]] != degree[ranked[j]] {
			return degree[ranked[i]] > degree[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func embedAll(ctx context.Context, e embedder.Embedder, ids []string) ([][]float32, error) {
	return e.EmbedBatch(ctx, ids)
}

// bestPair finds the (orphan, main) representative pair with maximum
// cosine similarity.
func bestPair(orphanIDs []string, orphanEmb [][]float32, mainIDs []string, mainEmb [][]float32) (string, string, float64) {
	bestScore := math.Inf(-1)
	var bestO, bestM string
	for i, ov := range orphanEmb {
		for j, mv := range mainEmb {
			score := cosineSimilarity(ov, mv)
			if score > bestScore {
				bestScore = score
				bestO = orphanIDs[i]
				bestM = mainIDs[j]
			}
		}
	}
	if bestO == "" && len(orphanIDs) > 0 {
		bestO = orphanIDs[0]
	}
	if bestM == "" && len(mainIDs) > 0 {
		bestM = mainIDs[0]
	}
	return bestO, bestM, bestScore
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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
