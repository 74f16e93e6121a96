package racedns

// Router maps a query name to its candidate providers. It is compiled once
// from a validated registry at startup and read-only afterwards, shared
// without locking by all concurrent queries.
type Router struct {
	groups    []*compiledGroup
	providers []*Provider
}

type compiledGroup struct {
	name string
	tree *domainTree
}

// NewRouter compiles the routing index from a registry.
func NewRouter(reg *Registry) *Router {
	r := &Router{providers: reg.Providers()}
	for _, g := range reg.Groups() {
		r.groups = append(r.groups, &compiledGroup{
			name: g.Name,
			tree: newDomainTree(g.Patterns...),
		})
	}
	return r
}

// Route returns the candidate providers for a query name: the union of the
// members of every matching domain group, de-duplicated, in provider
// declaration order. When multiple groups match a name all their providers
// participate in the same race, there is no priority between groups.
func (r *Router) Route(name string) []*Provider {
	matched := make(map[string]struct{})
	for _, g := range r.groups {
		if g.tree.match(name) {
			matched[g.name] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	var candidates []*Provider
	for _, p := range r.providers {
		for _, g := range p.DomainGroups {
			if _, ok := matched[g]; ok {
				candidates = append(candidates, p)
				break
			}
		}
	}
	return candidates
}
