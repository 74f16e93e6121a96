package racedns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryValidation(t *testing.T) {
	catchAll := []*DomainGroup{{Name: "default"}}

	tests := []struct {
		name      string
		providers []*Provider
		groups    []*DomainGroup
		errString string
	}{
		{
			name:      "no providers",
			errString: "no providers configured",
		},
		{
			name: "undefined group",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default", "missing"}},
			},
			groups:    catchAll,
			errString: "undefined domain group",
		},
		{
			name: "duplicate provider",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default"}},
				{Name: "p1", Addr: "8.8.8.8:443", Hostname: "h", DomainGroups: []string{"default"}},
			},
			groups:    catchAll,
			errString: "duplicate provider",
		},
		{
			name: "duplicate group",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default"}},
			},
			groups:    []*DomainGroup{{Name: "default"}, {Name: "default"}},
			errString: "duplicate domain group",
		},
		{
			name: "hostname address",
			providers: []*Provider{
				{Name: "p1", Addr: "cloudflare-dns.com:443", Hostname: "h", DomainGroups: []string{"default"}},
			},
			groups:    catchAll,
			errString: "not ip:port",
		},
		{
			name: "missing port",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1", Hostname: "h", DomainGroups: []string{"default"}},
			},
			groups:    catchAll,
			errString: "invalid address",
		},
		{
			name: "missing hostname",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", DomainGroups: []string{"default"}},
			},
			groups:    catchAll,
			errString: "no hostname",
		},
		{
			name: "bad method",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default"}, Method: "PUT"},
			},
			groups:    catchAll,
			errString: "unsupported method",
		},
		{
			name: "bad transport",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default"}, Transport: "dtls"},
			},
			groups:    catchAll,
			errString: "unsupported transport",
		},
		{
			name: "empty pattern",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"default", "internal"}},
			},
			groups:    []*DomainGroup{{Name: "default"}, {Name: "internal", Patterns: []string{""}}},
			errString: "empty domain pattern",
		},
		{
			name: "no catch-all member",
			providers: []*Provider{
				{Name: "p1", Addr: "1.1.1.1:443", Hostname: "h", DomainGroups: []string{"internal"}},
			},
			groups:    []*DomainGroup{{Name: "internal", Patterns: []string{"corp.test"}}},
			errString: "catch-all",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewRegistry(test.providers, test.groups)
			require.Error(t, err)
			require.Contains(t, err.Error(), test.errString)
		})
	}
}

func TestRegistryValid(t *testing.T) {
	providers := []*Provider{
		{Name: "p1", Addr: "1.1.1.1:443", Hostname: "one", DomainGroups: []string{"default"}},
		{Name: "p2", Addr: "[2606:4700:4700::1111]:443", Hostname: "two", DomainGroups: []string{"default", "internal"}},
		// Valid but never selected.
		{Name: "p3", Addr: "9.9.9.9:8443", Hostname: "three"},
	}
	groups := []*DomainGroup{
		{Name: "internal", Patterns: []string{"corp.test", "lab.test"}},
		{Name: "default"},
	}
	reg, err := NewRegistry(providers, groups)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, providerNames(reg.Providers()))
	require.Len(t, reg.Groups(), 2)
}
