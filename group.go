package racedns

import "strings"

// domainTree is a compiled set of domain suffix patterns. It is built as a
// graph of maps over reversed labels, so a lookup costs one map access per
// label of the query name regardless of the number of patterns.
//
// A pattern "example.com" matches example.com and every name below it.
// Matching happens at label boundaries only, "notexample.com" does not
// match the pattern "example.com".
type domainTree struct {
	root node

	// An empty pattern set matches every name (the catch-all group).
	all bool
}

type node map[string]node

func newDomainTree(patterns ...string) *domainTree {
	if len(patterns) == 0 {
		return &domainTree{all: true}
	}
	root := make(node)
	for _, pattern := range patterns {
		// Break the pattern into its labels and iterate backwards over
		// them, building a graph of maps.
		parts := strings.Split(normalizeName(pattern), ".")
		n := root
		for i := len(parts) - 1; i >= 0; i-- {
			part := parts[i]
			subNode, ok := n[part]
			if !ok {
				subNode = make(node)
				n[part] = subNode
			}
			n = subNode
		}
		// Terminal marker, the name itself and everything under it match.
		n[""] = nil
	}
	return &domainTree{root: root}
}

func (t *domainTree) match(name string) bool {
	if t.all {
		return true
	}
	parts := strings.Split(normalizeName(name), ".")
	n := t.root
	for i := len(parts) - 1; i >= 0; i-- {
		subNode, ok := n[parts[i]]
		if !ok {
			return false
		}
		if _, ok := subNode[""]; ok {
			return true
		}
		n = subNode
	}
	return false
}

// normalizeName lower-cases a domain name and strips the trailing dot.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
