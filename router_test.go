package racedns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	providers := []*Provider{
		{Name: "corp", Addr: "10.0.0.53:443", Hostname: "dns.corp.test", DomainGroups: []string{"internal"}},
		{Name: "cloudflare", Addr: "1.1.1.1:443", Hostname: "cloudflare-dns.com", DomainGroups: []string{"default"}},
		{Name: "google", Addr: "8.8.8.8:443", Hostname: "dns.google", DomainGroups: []string{"default"}},
		{Name: "quad9", Addr: "9.9.9.9:443", Hostname: "dns.quad9.net", DomainGroups: []string{"default", "internal"}},
	}
	groups := []*DomainGroup{
		{Name: "internal", Patterns: []string{"corp.test"}},
		{Name: "default"},
	}
	reg, err := NewRegistry(providers, groups)
	require.NoError(t, err)
	return reg
}

func providerNames(providers []*Provider) []string {
	var names []string
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return names
}

func TestRouterCatchAll(t *testing.T) {
	router := NewRouter(testRegistry(t))

	// A name matching no specific group goes to the catch-all members only,
	// in declaration order.
	candidates := router.Route("www.acme.test.")
	require.Equal(t, []string{"cloudflare", "google", "quad9"}, providerNames(candidates))
}

func TestRouterGroupUnion(t *testing.T) {
	router := NewRouter(testRegistry(t))

	// corp.test matches both the internal group and the catch-all. All
	// their members race together, de-duplicated in declaration order.
	candidates := router.Route("intranet.corp.test.")
	require.Equal(t, []string{"corp", "cloudflare", "google", "quad9"}, providerNames(candidates))
}

func TestRouterLabelBoundary(t *testing.T) {
	router := NewRouter(testRegistry(t))

	// notcorp.test is not within corp.test, only the catch-all applies.
	candidates := router.Route("notcorp.test.")
	require.Equal(t, []string{"cloudflare", "google", "quad9"}, providerNames(candidates))
}

func TestRouterNormalization(t *testing.T) {
	router := NewRouter(testRegistry(t))

	candidates := router.Route("Intranet.CORP.Test.")
	require.Equal(t, []string{"corp", "cloudflare", "google", "quad9"}, providerNames(candidates))
}

func TestRouterNoMatch(t *testing.T) {
	// Routers over a validated registry always have a catch-all. Build one
	// without to exercise the no-route path.
	router := &Router{
		groups: []*compiledGroup{
			{name: "internal", tree: newDomainTree("corp.test")},
		},
		providers: []*Provider{
			{Name: "corp", DomainGroups: []string{"internal"}},
		},
	}
	require.Empty(t, router.Route("www.acme.test."))
	require.NotEmpty(t, router.Route("www.corp.test."))
}
