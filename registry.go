package racedns

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Provider is one configured upstream DNS-over-HTTPS resolver endpoint.
// Providers are immutable after loading and referenced by name everywhere
// else in the system.
type Provider struct {
	// Unique name of the provider.
	Name string

	// Network endpoint, "ip:port". Connections are made to this address
	// directly, the hostname is never resolved.
	Addr string

	// TLS server name used for SNI and certificate validation.
	Hostname string

	// Names of the domain groups this provider serves. A provider without
	// group membership is valid but never selected for any query.
	DomainGroups []string

	// DoH query method, "POST" (default) or "GET".
	Method string

	// Transport protocol to run HTTPS over, "tcp" (HTTP/2, default) or
	// "quic" (HTTP/3).
	Transport string

	// Optional TLS material, used with private resolvers.
	CAFile        string
	ClientKeyFile string
	ClientCrtFile string
}

// DomainGroup is a named, ordered set of domain suffix patterns. A pattern
// "example.com" matches example.com and all names below it at label
// boundaries. An empty pattern set is the catch-all that matches every name.
type DomainGroup struct {
	Name     string
	Patterns []string
}

// Registry holds the validated set of providers and domain groups in
// declaration order. It is read-only after construction and requires no
// locking.
type Registry struct {
	providers []*Provider
	groups    []*DomainGroup
}

// NewRegistry validates the given providers and groups and returns a
// registry. Validation failure here is the only fatal error class in the
// system; the process must not start serving with a broken configuration.
func NewRegistry(providers []*Provider, groups []*DomainGroup) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("no providers configured")
	}

	groupIndex := make(map[string]*DomainGroup, len(groups))
	for _, g := range groups {
		if g.Name == "" {
			return nil, errors.New("domain group with empty name")
		}
		if _, ok := groupIndex[g.Name]; ok {
			return nil, errors.Errorf("duplicate domain group '%s'", g.Name)
		}
		for _, pattern := range g.Patterns {
			if err := validatePattern(pattern); err != nil {
				return nil, errors.Wrapf(err, "domain group '%s'", g.Name)
			}
		}
		groupIndex[g.Name] = g
	}

	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return nil, errors.New("provider with empty name")
		}
		if _, ok := seen[p.Name]; ok {
			return nil, errors.Errorf("duplicate provider '%s'", p.Name)
		}
		seen[p.Name] = struct{}{}
		if err := validateAddr(p.Addr); err != nil {
			return nil, errors.Wrapf(err, "provider '%s'", p.Name)
		}
		if p.Hostname == "" {
			return nil, errors.Errorf("provider '%s' has no hostname", p.Name)
		}
		switch p.Method {
		case "", "GET", "POST":
		default:
			return nil, errors.Errorf("unsupported method '%s' for provider '%s'", p.Method, p.Name)
		}
		switch p.Transport {
		case "", "tcp", "quic":
		default:
			return nil, errors.Errorf("unsupported transport '%s' for provider '%s'", p.Transport, p.Name)
		}
		for _, g := range p.DomainGroups {
			if _, ok := groupIndex[g]; !ok {
				return nil, errors.Errorf("provider '%s' references undefined domain group '%s'", p.Name, g)
			}
		}
		if len(p.DomainGroups) == 0 {
			Log.WithField("provider", p.Name).Warn("provider is not in any domain group and will never be queried")
		}
	}

	// A name matching no group would have no candidates at query time.
	// Require a populated catch-all so routing can never come up empty.
	if !hasCatchAllMember(providers, groups) {
		return nil, errors.New("no provider is a member of a catch-all domain group, some names would have no route")
	}

	return &Registry{providers: providers, groups: groups}, nil
}

// Providers returns all providers in declaration order.
func (r *Registry) Providers() []*Provider {
	return r.providers
}

// Groups returns all domain groups in declaration order.
func (r *Registry) Groups() []*DomainGroup {
	return r.groups
}

func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Wrapf(err, "invalid address '%s'", addr)
	}
	if net.ParseIP(host) == nil {
		return errors.Errorf("address '%s' is not ip:port", addr)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return errors.Errorf("invalid port in address '%s'", addr)
	}
	return nil
}

func validatePattern(pattern string) error {
	p := normalizeName(pattern)
	if p == "" {
		return errors.New("empty domain pattern")
	}
	if strings.ContainsAny(p, "* /") {
		return errors.Errorf("invalid domain pattern '%s'", pattern)
	}
	return nil
}

func hasCatchAllMember(providers []*Provider, groups []*DomainGroup) bool {
	catchAll := make(map[string]struct{})
	for _, g := range groups {
		if len(g.Patterns) == 0 {
			catchAll[g.Name] = struct{}{}
		}
	}
	for _, p := range providers {
		for _, g := range p.DomainGroups {
			if _, ok := catchAll[g]; ok {
				return true
			}
		}
	}
	return false
}
