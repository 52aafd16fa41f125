package domain

import "sort"

func sortNodesByConceptID(nodes []*GraphNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ConceptID < nodes[j].ConceptID
	})
}

// SortStrings sorts a copy of ss and returns it, leaving the input untouched.
func SortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
