package graph

import "github.com/corpusforge/corpusgraph/engine/domain"

// Build merges a set of extraction fragments into one deduplicated,
// bidirectionally-consistent Graph, following §4.10 of the design: entity
// resolution, alias union, outbound remap, then a separate global inbound
// recomputation pass so the backlink invariant holds regardless of
// fragment order.
func Build(fragments []domain.GraphFragment, idMap map[string]string) *domain.Graph {
	var rawNodes []domain.FragmentNode
	for _, f := range fragments {
		rawNodes = append(rawNodes, f.Nodes...)
	}

	g := domain.NewGraph()

	canonicalOf := func(id string) string {
		if c, ok := idMap[id]; ok {
			return c
		}
		return id
	}

	ensure := func(id string) *domain.GraphNode {
		if n, ok := g.Nodes[id]; ok {
			return n
		}
		n := &domain.GraphNode{ConceptID: id}
		g.Nodes[id] = n
		return n
	}

	for _, n := range rawNodes {
		canonical := canonicalOf(n.ID)
		target := ensure(canonical)

		aliasSet := make(map[string]struct{}, len(target.Aliases)+len(n.Aliases)+1)
		for _, a := range target.Aliases {
			aliasSet[a] = struct{}{}
		}
		for _, a := range n.Aliases {
			aliasSet[a] = struct{}{}
		}
		if n.ID != canonical {
			aliasSet[n.ID] = struct{}{}
		}
		target.Aliases = setToSortedSlice(aliasSet)

		for _, rawLink := range n.OutboundLinks {
			remapped := canonicalOf(rawLink)
			if remapped == canonical || target.HasOutbound(remapped) {
				continue
			}
			target.OutboundLinks = append(target.OutboundLinks, remapped)
			// Every outbound target must exist as a node in the graph.
			ensure(remapped)
		}

		// A raw node's inbound_links name sources that claim to point at
		// it; materialize each as an outbound edge on that remapped source
		// rather than trusting it directly — inbound is always recomputed
		// from outbound in the pass below.
		for _, rawSource := range n.InboundLinks {
			remappedSource := canonicalOf(rawSource)
			if remappedSource == canonical {
				continue
			}
			src := ensure(remappedSource)
			if !src.HasOutbound(canonical) {
				src.OutboundLinks = append(src.OutboundLinks, canonical)
			}
		}
	}

	recomputeInbound(g)
	return g
}

// recomputeInbound derives every node's inbound_links from the full set of
// outbound_links, discarding whatever was there before. This is the only
// source of truth for inbound edges.
func recomputeInbound(g *domain.Graph) {
	for _, n := range g.Nodes {
		n.InboundLinks = nil
	}
	for id, n := range g.Nodes {
		for _, target := range n.OutboundLinks {
			tn, ok := g.Nodes[target]
			if !ok {
				continue
			}
			found := false
			for _, existing := range tn.InboundLinks {
				if existing == id {
					found = true
					break
				}
			}
			if !found {
				tn.InboundLinks = append(tn.InboundLinks, id)
			}
		}
	}
}

func setToSortedSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return domain.SortStrings(out)
}
